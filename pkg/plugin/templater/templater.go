// Package templater implements the rendering steps: templates.load renders
// template parts through a Jinja-compatible engine (pongo2) against the
// event context, templates.load-context passes the event context through as
// a pre-rendered message.
package templater

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/flosch/pongo2/v6"
	"github.com/google/uuid"

	"github.com/notifico-tech/notifico/pkg/engine"
	"github.com/notifico-tech/notifico/pkg/models"
	"github.com/notifico-tech/notifico/pkg/store"
)

// Step tags claimed by this plugin.
const (
	StepLoad        = "templates.load"
	StepLoadContext = "templates.load-context"
)

// Plugin is the templater step plugin.
type Plugin struct {
	source store.TemplateSource
	files  *FileSource // nil when no template directory is configured
}

// New creates the plugin. files may be nil, which makes file selectors a
// configuration error.
func New(source store.TemplateSource, files *FileSource) *Plugin {
	return &Plugin{source: source, files: files}
}

// Steps implements engine.StepPlugin.
func (p *Plugin) Steps() []string { return []string{StepLoad, StepLoadContext} }

type loadStep struct {
	Templates []models.TemplateSelector `json:"templates"`
}

// Execute dispatches on the step tag.
func (p *Plugin) Execute(ctx context.Context, pctx *models.PipelineContext, step models.Step) (engine.Outcome, error) {
	tag, err := step.Tag()
	if err != nil {
		return engine.OutcomeInterrupt, fmt.Errorf("%w: %v", engine.ErrInvalidStepPayload, err)
	}
	switch tag {
	case StepLoad:
		return p.load(ctx, pctx, step)
	case StepLoadContext:
		return p.loadContext(pctx)
	default:
		return engine.OutcomeInterrupt, fmt.Errorf("%w: %q", engine.ErrPluginNotFound, tag)
	}
}

func (p *Plugin) load(ctx context.Context, pctx *models.PipelineContext, step models.Step) (engine.Outcome, error) {
	var payload loadStep
	if err := step.Decode(&payload); err != nil {
		return engine.OutcomeInterrupt, fmt.Errorf("%w: %v", engine.ErrInvalidStepPayload, err)
	}

	for _, sel := range payload.Templates {
		if err := sel.Validate(); err != nil {
			return engine.OutcomeInterrupt, fmt.Errorf("%w: %v", engine.ErrInvalidStepPayload, err)
		}

		parts, attachments, err := p.resolve(ctx, pctx.ProjectID, sel)
		if err != nil {
			return engine.OutcomeInterrupt, err
		}

		messageID, err := uuid.NewV7()
		if err != nil {
			return engine.OutcomeInterrupt, fmt.Errorf("failed to generate message id: %w", err)
		}

		rendered, err := renderParts(parts, renderContext(pctx, messageID))
		if err != nil {
			return engine.OutcomeInterrupt, err
		}

		if attachments == nil {
			attachments = []models.AttachmentMeta{}
		}
		pctx.Messages = append(pctx.Messages, models.Message{
			ID:          messageID,
			Content:     rendered,
			Attachments: attachments,
		})
	}
	return engine.OutcomeContinue, nil
}

// resolve maps a selector to its pre-rendered parts map plus attachment
// metadata. Inline templates go through the same rendering path as looked-up
// ones.
func (p *Plugin) resolve(ctx context.Context, projectID uuid.UUID, sel models.TemplateSelector) (map[string]string, []models.AttachmentMeta, error) {
	switch {
	case len(sel.Parts) > 0:
		return sel.Parts, nil, nil
	case sel.Name != "":
		tpl, err := p.source.TemplateByName(ctx, projectID, sel.Name)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, nil, fmt.Errorf("%w: %q", engine.ErrTemplateNotFound, sel.Name)
			}
			return nil, nil, fmt.Errorf("template lookup failed: %w", err)
		}
		return tpl.Parts, tpl.Attachments, nil
	default:
		if p.files == nil {
			return nil, nil, fmt.Errorf("%w: file selector %q but no template directory configured",
				engine.ErrTemplateNotFound, sel.File)
		}
		tpl, err := p.files.Load(sel.File)
		if err != nil {
			return nil, nil, err
		}
		return tpl.Parts, tpl.Attachments, nil
	}
}

// renderContext copies the event context and injects the synthetic `_`
// object carrying the message and notification ids.
func renderContext(pctx *models.PipelineContext, messageID uuid.UUID) pongo2.Context {
	out := make(pongo2.Context, len(pctx.EventContext)+1)
	for k, v := range pctx.EventContext {
		out[k] = v
	}
	out["_"] = map[string]any{
		"message_id":      messageID.String(),
		"notification_id": pctx.NotificationID.String(),
	}
	return out
}

// renderParts renders every part; any rendering error is fatal to the step.
func renderParts(parts map[string]string, rctx pongo2.Context) (map[string]string, error) {
	out := make(map[string]string, len(parts))
	for name, text := range parts {
		tpl, err := pongo2.FromString(text)
		if err != nil {
			return nil, fmt.Errorf("%w: part %q: %v", engine.ErrRenderingFailed, name, err)
		}
		rendered, err := tpl.Execute(rctx)
		if err != nil {
			return nil, fmt.Errorf("%w: part %q: %v", engine.ErrRenderingFailed, name, err)
		}
		out[name] = rendered
	}
	return out, nil
}

// loadContext bypasses the templating engine: the event context itself
// becomes a message's parts map. String values pass through bare, everything
// else as its compact JSON encoding.
func (p *Plugin) loadContext(pctx *models.PipelineContext) (engine.Outcome, error) {
	messageID, err := uuid.NewV7()
	if err != nil {
		return engine.OutcomeInterrupt, fmt.Errorf("failed to generate message id: %w", err)
	}

	content := make(map[string]string, len(pctx.EventContext))
	for k, v := range pctx.EventContext {
		if s, ok := v.(string); ok {
			content[k] = s
			continue
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return engine.OutcomeInterrupt, fmt.Errorf("failed to encode context value %q: %w", k, err)
		}
		content[k] = string(encoded)
	}

	pctx.Messages = append(pctx.Messages, models.Message{
		ID:          messageID,
		Content:     content,
		Attachments: []models.AttachmentMeta{},
	})
	return engine.OutcomeContinue, nil
}
