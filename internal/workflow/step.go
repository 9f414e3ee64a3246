// internal/workflow/step.go
//
// The signature request moves through five strictly linear steps. Forward
// moves are guarded (see session.go); backward moves are free.

package workflow

import (
	"fmt"
	"strings"
)

// Step represents a stage in the signature request workflow
type Step int

const (
	StepUpload Step = iota
	StepSigners
	StepFields
	StepReview
	StepSent
)

// Steps lists every step in order.
var Steps = []Step{StepUpload, StepSigners, StepFields, StepReview, StepSent}

// String returns the step tag
func (s Step) String() string {
	switch s {
	case StepUpload:
		return "UPLOAD"
	case StepSigners:
		return "SIGNERS"
	case StepFields:
		return "FIELDS"
	case StepReview:
		return "REVIEW"
	case StepSent:
		return "SENT"
	default:
		return "UNKNOWN"
	}
}

// FriendlyName returns a short label suitable for headers and menus
func (s Step) FriendlyName() string {
	switch s {
	case StepUpload:
		return "Upload Document"
	case StepSigners:
		return "Add Signers"
	case StepFields:
		return "Place Fields"
	case StepReview:
		return "Review & Send"
	case StepSent:
		return "Sent"
	default:
		return s.String()
	}
}

// Next returns the following step; SENT is its own successor.
func (s Step) Next() Step {
	if s >= StepSent {
		return StepSent
	}
	return s + 1
}

// Previous returns the preceding step; UPLOAD is its own predecessor.
func (s Step) Previous() Step {
	if s <= StepUpload {
		return StepUpload
	}
	return s - 1
}

// IsTerminal returns true once the request has been dispatched
func (s Step) IsTerminal() bool {
	return s == StepSent
}

// Valid reports whether s is one of the defined steps.
func (s Step) Valid() bool {
	return s >= StepUpload && s <= StepSent
}

// Position returns the 1-based position of the step and the step count.
func (s Step) Position() (int, int) {
	return int(s) + 1, len(Steps)
}

// ParseStep reads a step tag case-insensitively.
func ParseStep(value string) (Step, error) {
	tag := strings.ToUpper(strings.TrimSpace(value))
	for _, s := range Steps {
		if s.String() == tag {
			return s, nil
		}
	}
	return StepUpload, fmt.Errorf("workflow: unknown step %q", value)
}

// MarshalText encodes the step as its tag.
func (s Step) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("workflow: invalid step %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a step tag.
func (s *Step) UnmarshalText(text []byte) error {
	parsed, err := ParseStep(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
