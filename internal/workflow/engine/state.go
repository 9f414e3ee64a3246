package engine

import (
	"time"

	"github.com/kingrea/countersign/internal/workflow"
)

// Status enumerates coarse engine phases.
type Status string

const (
	StatusDraft   Status = "draft"
	StatusSending Status = "sending"
	StatusFailed  Status = "failed"
	StatusSent    Status = "sent"
)

// State captures the persisted snapshot of a session.
type State struct {
	Session workflow.Session `json:"session"`
	Status  Status           `json:"status"`
	// StatusReason explains a failed status.
	StatusReason string          `json:"status_reason,omitempty"`
	LastDispatch *DispatchRecord `json:"last_dispatch,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// DispatchRecord describes the most recent dispatch attempt.
type DispatchRecord struct {
	Attempt    int       `json:"attempt"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Error      string    `json:"error,omitempty"`
	Canceled   bool      `json:"canceled,omitempty"`
}

// Finished reports whether the attempt has an outcome.
func (r DispatchRecord) Finished() bool {
	return !r.FinishedAt.IsZero()
}

func deriveStatus(s workflow.Session) (Status, string) {
	switch {
	case s.IsProcessing:
		return StatusSending, ""
	case s.Step.IsTerminal():
		return StatusSent, ""
	case s.LastError != "":
		return StatusFailed, s.LastError
	default:
		return StatusDraft, ""
	}
}

func cloneRecord(r *DispatchRecord) *DispatchRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
