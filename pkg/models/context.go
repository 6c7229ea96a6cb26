package models

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// PipelineContext is the state of one in-flight pipeline task. It is owned by
// exactly one worker at a time — the one that dequeued it — and is mutated in
// place by the executor and plugins. It crosses queue hops as a serialised
// JSON record and must round-trip field-exact.
type PipelineContext struct {
	ProjectID      uuid.UUID `json:"project_id"`
	EventID        uuid.UUID `json:"event_id"`
	NotificationID uuid.UUID `json:"notification_id"`
	StepNumber     int       `json:"step_number"`

	Recipient *Recipient `json:"recipient,omitempty"`
	Contact   *Contact   `json:"contact,omitempty"`

	EventName    string         `json:"event_name"`
	EventContext map[string]any `json:"event_context"`

	Messages       []Message      `json:"messages"`
	PluginContexts map[string]any `json:"plugin_contexts"`

	// Pipeline is the task's own copy of the step sequence, taken at
	// dispatch time.
	Pipeline StepList `json:"pipeline"`
}

// NewPipelineContext builds the initial context for one (event, pipeline)
// dispatch: step zero, a fresh time-ordered notification id, no recipient.
func NewPipelineContext(projectID, eventID uuid.UUID, eventName string, steps StepList, eventContext map[string]any) (*PipelineContext, error) {
	notificationID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate notification id: %w", err)
	}
	if eventContext == nil {
		eventContext = map[string]any{}
	}
	return &PipelineContext{
		ProjectID:      projectID,
		EventID:        eventID,
		NotificationID: notificationID,
		StepNumber:     0,
		EventName:      eventName,
		EventContext:   eventContext,
		Messages:       []Message{},
		PluginContexts: map[string]any{},
		Pipeline:       steps.Clone(),
	}, nil
}

// Clone deep-copies the context via a JSON round-trip — the same
// representation it takes across queue hops, so a clone is exactly what a
// remote worker would dequeue.
func (c *PipelineContext) Clone() (*PipelineContext, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to clone pipeline context: %w", err)
	}
	var out PipelineContext
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to clone pipeline context: %w", err)
	}
	return &out, nil
}

// CurrentStep returns the step at StepNumber, or ok=false past the end.
func (c *PipelineContext) CurrentStep() (Step, bool) {
	if c.StepNumber < 0 || c.StepNumber >= len(c.Pipeline) {
		return Step{}, false
	}
	return c.Pipeline[c.StepNumber], true
}
