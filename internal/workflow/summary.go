package workflow

import (
	"sort"

	"github.com/kingrea/countersign/internal/signer"
)

// SignerSummary is one row of the review table.
type SignerSummary struct {
	Signer signer.Signer
	Fields int
	// Marks counts SIGNATURE and INITIALS fields.
	Marks int
}

// PageSummary counts fields on one page.
type PageSummary struct {
	Page   int
	Fields int
}

// Summary is everything the review step shows about a session.
type Summary struct {
	DocumentName   string
	Pages          int
	Signers        []SignerSummary
	PerPage        []PageSummary
	TotalFields    int
	RequiredFields int
	Blockers       []string
	Ready          bool
}

// Summarize derives the review summary. Signers keep registry order and
// pages are ascending.
func Summarize(s Session) Summary {
	out := Summary{
		TotalFields:    s.Fields.Len(),
		RequiredFields: s.Fields.RequiredCount(),
		Blockers:       s.Blockers(),
		Ready:          s.CanProceedFromFields(),
	}
	if s.Document != nil {
		out.DocumentName = s.Document.Name
		out.Pages = s.Document.Pages()
	}

	counts := s.Fields.CountBySigner()
	marks := s.Fields.MarksBySigner()
	for _, sg := range s.Signers.All() {
		out.Signers = append(out.Signers, SignerSummary{
			Signer: sg,
			Fields: counts[sg.Email],
			Marks:  marks[sg.Email],
		})
	}

	for page, n := range s.Fields.CountByPage() {
		out.PerPage = append(out.PerPage, PageSummary{Page: page, Fields: n})
	}
	sort.Slice(out.PerPage, func(i, j int) bool { return out.PerPage[i].Page < out.PerPage[j].Page })
	return out
}
