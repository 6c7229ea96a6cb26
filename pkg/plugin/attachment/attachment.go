// Package attachment implements the attachment.attach step: it appends
// attachment metadata to an already-rendered message after validating the
// attachment URLs.
package attachment

import (
	"context"
	"fmt"
	"net/url"

	"github.com/notifico-tech/notifico/pkg/engine"
	"github.com/notifico-tech/notifico/pkg/models"
)

// StepAttach is the tag this plugin claims.
const StepAttach = "attachment.attach"

// Plugin is the attachment step plugin.
type Plugin struct {
	allowFileScheme bool
}

// New creates the plugin. allowFileScheme enables file:// attachment URLs;
// http and https are always allowed.
func New(allowFileScheme bool) *Plugin {
	return &Plugin{allowFileScheme: allowFileScheme}
}

// Steps implements engine.StepPlugin.
func (p *Plugin) Steps() []string { return []string{StepAttach} }

type attachStep struct {
	// Message indexes into the context's messages; default 0.
	Message     uint16                  `json:"message"`
	Attachments []models.AttachmentMeta `json:"attachments"`
}

// Execute validates each attachment URL and appends it to the target
// message. An out-of-bounds message index is an error.
func (p *Plugin) Execute(_ context.Context, pctx *models.PipelineContext, step models.Step) (engine.Outcome, error) {
	var payload attachStep
	if err := step.Decode(&payload); err != nil {
		return engine.OutcomeInterrupt, fmt.Errorf("%w: %v", engine.ErrInvalidStepPayload, err)
	}

	idx := int(payload.Message)
	if idx >= len(pctx.Messages) {
		return engine.OutcomeInterrupt, fmt.Errorf("%w: message index %d out of bounds (%d messages)",
			engine.ErrInvalidStepPayload, idx, len(pctx.Messages))
	}

	for _, att := range payload.Attachments {
		if err := p.validateURL(att.URL); err != nil {
			return engine.OutcomeInterrupt, err
		}
		pctx.Messages[idx].Attachments = append(pctx.Messages[idx].Attachments, att)
	}
	return engine.OutcomeContinue, nil
}

func (p *Plugin) validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: malformed attachment url %q: %v", engine.ErrInvalidStepPayload, raw, err)
	}
	switch u.Scheme {
	case "http", "https":
		return nil
	case "file":
		if p.allowFileScheme {
			return nil
		}
		return fmt.Errorf("%w: file scheme is disabled", engine.ErrInvalidStepPayload)
	default:
		return fmt.Errorf("%w: unsupported attachment scheme %q", engine.ErrInvalidStepPayload, u.Scheme)
	}
}
