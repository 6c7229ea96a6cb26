// Package engine is the notification pipeline core: the step-plugin registry,
// the task executor, and the event dispatcher that turns incoming event
// requests into pipeline tasks.
package engine

import (
	"context"
	"fmt"

	"github.com/notifico-tech/notifico/pkg/models"
)

// Outcome is a step's verdict on the rest of its task.
type Outcome int

const (
	// OutcomeContinue — advance to the next step.
	OutcomeContinue Outcome = iota
	// OutcomeInterrupt — stop the task cleanly without error (fan-out
	// parents, opted-out recipients).
	OutcomeInterrupt
)

// StepPlugin executes the steps it claims. Plugins mutate the pipeline
// context in place; they never panic and report all failures as errors.
type StepPlugin interface {
	// Steps returns the step tags this plugin claims.
	Steps() []string
	// Execute runs one step against the task's context.
	Execute(ctx context.Context, pctx *models.PipelineContext, step models.Step) (Outcome, error)
}

// Engine maps step tags to the plugins that execute them. The registry is
// built once at startup and read-only afterwards.
type Engine struct {
	plugins map[string]StepPlugin
}

// New creates an empty engine.
func New() *Engine {
	return &Engine{plugins: make(map[string]StepPlugin)}
}

// Register claims every tag the plugin declares. A duplicate tag is a
// programming error and panics at startup.
func (e *Engine) Register(p StepPlugin) {
	for _, tag := range p.Steps() {
		if _, exists := e.plugins[tag]; exists {
			panic(fmt.Sprintf("engine: step tag %q registered twice", tag))
		}
		e.plugins[tag] = p
	}
}

// Tags returns every registered step tag.
func (e *Engine) Tags() []string {
	tags := make([]string, 0, len(e.plugins))
	for tag := range e.plugins {
		tags = append(tags, tag)
	}
	return tags
}

// Execute dispatches one step to the plugin owning its tag.
func (e *Engine) Execute(ctx context.Context, pctx *models.PipelineContext, step models.Step) (Outcome, error) {
	tag, err := step.Tag()
	if err != nil {
		return OutcomeInterrupt, fmt.Errorf("%w: %v", ErrInvalidStepPayload, err)
	}
	plugin, ok := e.plugins[tag]
	if !ok {
		return OutcomeInterrupt, fmt.Errorf("%w: %q", ErrPluginNotFound, tag)
	}
	return plugin.Execute(ctx, pctx, step)
}
