package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/kingrea/countersign/internal/field"
	"github.com/kingrea/countersign/internal/placement"
)

// DropKind discriminates drop payloads.
type DropKind string

const (
	DropPlace DropKind = "place"
	DropMove  DropKind = "move"
)

// DropPayload is what a drag carries: either a new field to create or an
// existing field to reposition. The concrete type is the tag.
type DropPayload interface {
	Kind() DropKind
}

// Place creates a field of Type for Signer on Page at the drop point.
type Place struct {
	Type   field.Type `json:"type"`
	Signer string     `json:"signer"`
	Page   int        `json:"page,omitempty"`
}

// Kind implements DropPayload.
func (Place) Kind() DropKind { return DropPlace }

// Move repositions the field at Index. Type, signer and page never change.
type Move struct {
	Index int `json:"index"`
}

// Kind implements DropPayload.
func (Move) Kind() DropKind { return DropMove }

// Drop is the operation form of a completed drag: payload dropped at a
// pointer position inside the page container.
type Drop struct {
	Payload DropPayload
	At      placement.Point
	Within  placement.Rect
}

func (op Drop) apply(s Session) (Session, bool) {
	x, y := placement.Locate(op.At, op.Within)
	switch p := op.Payload.(type) {
	case Place:
		return PlaceField{Signer: p.Signer, Type: p.Type, Page: p.Page, X: x, Y: y}.apply(s)
	case *Place:
		if p == nil {
			return s, false
		}
		return PlaceField{Signer: p.Signer, Type: p.Type, Page: p.Page, X: x, Y: y}.apply(s)
	case Move:
		return moveField(s, p.Index, x, y)
	case *Move:
		if p == nil {
			return s, false
		}
		return moveField(s, p.Index, x, y)
	default:
		return s, false
	}
}

func moveField(s Session, index int, x, y float64) (Session, bool) {
	return UpdateField{Index: index, Patch: field.Patch{X: &x, Y: &y}}.apply(s)
}

// HandleDrop is the single entry point for drag-and-drop: it converts the
// pointer into page percentages and places or moves a field accordingly.
func HandleDrop(s Session, payload DropPayload, at placement.Point, within placement.Rect) Session {
	return Reduce(s, Drop{Payload: payload, At: at, Within: within})
}

type dropEnvelope struct {
	Kind DropKind        `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// MarshalDropPayload encodes a payload with an explicit kind so the two
// variants can never be mistaken for each other in transit.
func MarshalDropPayload(p DropPayload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("workflow: nil drop payload")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("workflow: encode drop payload: %w", err)
	}
	return json.Marshal(dropEnvelope{Kind: p.Kind(), Data: data})
}

// ParseDropPayload decodes a payload written by MarshalDropPayload.
func ParseDropPayload(data []byte) (DropPayload, error) {
	var env dropEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("workflow: decode drop payload: %w", err)
	}
	switch env.Kind {
	case DropPlace:
		var p Place
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("workflow: decode place payload: %w", err)
		}
		return p, nil
	case DropMove:
		var m Move
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return nil, fmt.Errorf("workflow: decode move payload: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("workflow: unknown drop kind %q", env.Kind)
	}
}
