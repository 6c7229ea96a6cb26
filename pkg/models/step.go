package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrStepTagMissing is returned when a step descriptor has no "step" field.
var ErrStepTagMissing = errors.New("step descriptor is missing the \"step\" tag")

// Step is an opaque pipeline step descriptor. The executor only reads its
// "step" tag; the owning plugin decodes the full payload into its own typed
// struct. The raw JSON object is retained verbatim so that unknown fields
// survive queue round-trips byte-exact.
type Step struct {
	raw json.RawMessage
}

// NewStep builds a Step from any JSON-serialisable payload. The payload must
// encode to a JSON object carrying a "step" field.
func NewStep(payload any) (Step, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Step{}, fmt.Errorf("failed to encode step payload: %w", err)
	}
	s := Step{raw: raw}
	if _, err := s.Tag(); err != nil {
		return Step{}, err
	}
	return s, nil
}

// MustStep is NewStep for literals in tests and fixtures; panics on error.
func MustStep(payload any) Step {
	s, err := NewStep(payload)
	if err != nil {
		panic(err)
	}
	return s
}

// Tag returns the step's type tag (the "step" field).
func (s Step) Tag() (string, error) {
	var probe struct {
		Step string `json:"step"`
	}
	if err := json.Unmarshal(s.raw, &probe); err != nil {
		return "", fmt.Errorf("malformed step descriptor: %w", err)
	}
	if probe.Step == "" {
		return "", ErrStepTagMissing
	}
	return probe.Step, nil
}

// Decode unmarshals the step payload into a plugin-typed struct.
func (s Step) Decode(v any) error {
	if err := json.Unmarshal(s.raw, v); err != nil {
		return fmt.Errorf("failed to decode step payload: %w", err)
	}
	return nil
}

// MarshalJSON emits the retained raw object.
func (s Step) MarshalJSON() ([]byte, error) {
	if s.raw == nil {
		return []byte("null"), nil
	}
	return s.raw, nil
}

// UnmarshalJSON retains the raw object verbatim.
func (s *Step) UnmarshalJSON(data []byte) error {
	s.raw = append(s.raw[:0], data...)
	return nil
}

// StepList is an ordered step sequence.
type StepList []Step

// Clone returns an independent copy of the list. Step payloads are immutable
// raw JSON, so sharing the underlying bytes is safe; only the slice itself is
// copied.
func (l StepList) Clone() StepList {
	if l == nil {
		return nil
	}
	out := make(StepList, len(l))
	copy(out, l)
	return out
}
