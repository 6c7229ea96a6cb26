package models

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// RecipientSelector is the untagged union `uuid | inline Recipient`. The two
// shapes are distinguished during decoding: a JSON string is a recipient (or
// group) id, a JSON object is an inline recipient.
type RecipientSelector struct {
	ID     uuid.UUID
	Inline *Recipient
}

// SelectorByID builds an id selector.
func SelectorByID(id uuid.UUID) RecipientSelector {
	return RecipientSelector{ID: id}
}

// SelectorInline builds an inline selector.
func SelectorInline(r Recipient) RecipientSelector {
	return RecipientSelector{Inline: &r}
}

// IsInline reports whether the selector carries an inline recipient.
func (s RecipientSelector) IsInline() bool { return s.Inline != nil }

// UnmarshalJSON decodes by shape.
func (s *RecipientSelector) UnmarshalJSON(data []byte) error {
	switch {
	case len(data) > 0 && data[0] == '"':
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("recipient selector is not a uuid: %w", err)
		}
		*s = RecipientSelector{ID: id}
		return nil
	case len(data) > 0 && data[0] == '{':
		var r Recipient
		if err := json.Unmarshal(data, &r); err != nil {
			return fmt.Errorf("malformed inline recipient: %w", err)
		}
		*s = RecipientSelector{Inline: &r}
		return nil
	default:
		return errors.New("recipient selector must be a uuid string or an inline recipient object")
	}
}

// MarshalJSON emits the shape it was decoded from.
func (s RecipientSelector) MarshalJSON() ([]byte, error) {
	if s.Inline != nil {
		return json.Marshal(s.Inline)
	}
	return json.Marshal(s.ID.String())
}

// TemplateSelector names a template by exactly one of: inline pre-rendered
// parts, a (project, name) lookup, or a file path under the filesystem
// template root.
type TemplateSelector struct {
	Parts map[string]string `json:"parts,omitempty"`
	Name  string            `json:"name,omitempty"`
	File  string            `json:"file,omitempty"`
}

// Validate checks that exactly one selector form is set.
func (s TemplateSelector) Validate() error {
	n := 0
	if len(s.Parts) > 0 {
		n++
	}
	if s.Name != "" {
		n++
	}
	if s.File != "" {
		n++
	}
	if n != 1 {
		return errors.New("template selector must set exactly one of parts, name, file")
	}
	return nil
}

// EventRequest is the ingest payload: trigger one named event within a
// project, optionally carrying recipients and an arbitrary JSON context.
type EventRequest struct {
	ID         uuid.UUID           `json:"id"`
	ProjectID  uuid.UUID           `json:"project_id"`
	Event      string              `json:"event"`
	Recipients []RecipientSelector `json:"recipients,omitempty"`
	Context    map[string]any      `json:"context,omitempty"`
}
