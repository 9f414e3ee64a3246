package workflow

// Document describes the uploaded file. The engine never reads the bytes;
// FileRef is whatever the upload collaborator uses to find them again.
type Document struct {
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	FileRef       string `json:"file_ref"`
	PreviewHandle string `json:"preview_handle"`
	ContentType   string `json:"content_type,omitempty"`
	SizeBytes     int64  `json:"size_bytes,omitempty"`
	// PageCount is 0 when the page count is unknown.
	PageCount int `json:"page_count,omitempty"`
}

// SameFile reports whether two documents point at the same underlying file.
func (d *Document) SameFile(other *Document) bool {
	if d == nil || other == nil {
		return d == other
	}
	return d.FileRef == other.FileRef && d.PreviewHandle == other.PreviewHandle
}

// HasPage reports whether page exists. Unknown page counts accept any page >= 1.
func (d *Document) HasPage(page int) bool {
	if d == nil || page < 1 {
		return false
	}
	return d.PageCount == 0 || page <= d.PageCount
}

// Pages returns the page count, treating unknown as a single page.
func (d *Document) Pages() int {
	if d == nil || d.PageCount < 1 {
		return 1
	}
	return d.PageCount
}

func (d *Document) clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}
