// Package core implements the recipient fan-out step (core.set_recipients):
// it resolves the step's recipient selectors and forks the current task into
// one child task per (recipient, contact) pair.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/notifico-tech/notifico/pkg/engine"
	"github.com/notifico-tech/notifico/pkg/models"
	"github.com/notifico-tech/notifico/pkg/queue"
	"github.com/notifico-tech/notifico/pkg/store"
)

// StepSetRecipients is the tag this plugin claims.
const StepSetRecipients = "core.set_recipients"

// Plugin is the fan-out step plugin.
type Plugin struct {
	directory store.RecipientDirectory
	pipelines queue.Queue
	logger    *slog.Logger
}

// New creates the plugin over the recipient directory and the pipeline
// queue children are enqueued on.
func New(directory store.RecipientDirectory, pipelines queue.Queue) *Plugin {
	return &Plugin{
		directory: directory,
		pipelines: pipelines,
		logger:    slog.Default().With("component", "core-plugin"),
	}
}

// Steps implements engine.StepPlugin.
func (p *Plugin) Steps() []string { return []string{StepSetRecipients} }

type setRecipientsStep struct {
	Recipients []models.RecipientSelector `json:"recipients"`
}

// Execute resolves selectors and either continues on the singleton fast path
// (one recipient, one contact — the current task keeps running on the
// current worker) or enqueues one child per (recipient, contact) pair and
// interrupts the parent.
func (p *Plugin) Execute(ctx context.Context, pctx *models.PipelineContext, step models.Step) (engine.Outcome, error) {
	var payload setRecipientsStep
	if err := step.Decode(&payload); err != nil {
		return engine.OutcomeInterrupt, fmt.Errorf("%w: %v", engine.ErrInvalidStepPayload, err)
	}

	recipients, err := p.resolve(ctx, pctx.ProjectID, payload.Recipients)
	if err != nil {
		return engine.OutcomeInterrupt, err
	}
	if len(recipients) == 0 {
		// Downstream steps that require a recipient will fail on their own.
		return engine.OutcomeContinue, nil
	}

	if len(recipients) == 1 && len(recipients[0].Contacts) == 1 {
		pctx.Recipient = &recipients[0]
		pctx.Contact = &recipients[0].Contacts[0]
		return engine.OutcomeContinue, nil
	}

	children := 0
	for i := range recipients {
		recipient := recipients[i]
		for j := range recipient.Contacts {
			child, err := pctx.Clone()
			if err != nil {
				return engine.OutcomeInterrupt, err
			}
			child.Recipient = &recipient
			child.Contact = &recipient.Contacts[j]
			// Children resume after this step.
			child.StepNumber = pctx.StepNumber + 1
			notificationID, err := uuid.NewV7()
			if err != nil {
				return engine.OutcomeInterrupt, fmt.Errorf("failed to generate notification id: %w", err)
			}
			child.NotificationID = notificationID

			if _, err := p.pipelines.Send(ctx, queue.Object(child)); err != nil {
				return engine.OutcomeInterrupt, fmt.Errorf("%w: %v", engine.ErrQueueSend, err)
			}
			children++
		}
	}

	p.logger.Debug("Fanned out pipeline task",
		"notification_id", pctx.NotificationID,
		"recipients", len(recipients),
		"children", children)
	return engine.OutcomeInterrupt, nil
}

// resolve maps selectors to recipients: inline selectors pass through, id
// selectors go through the directory (group ids expand to members). Unknown
// ids are logged and skipped. Contacts are deduplicated; iteration order is
// selector order, then directory order within a group.
func (p *Plugin) resolve(ctx context.Context, projectID uuid.UUID, selectors []models.RecipientSelector) ([]models.Recipient, error) {
	var out []models.Recipient
	for _, sel := range selectors {
		if sel.IsInline() {
			r := *sel.Inline
			r.ProjectID = projectID
			r.DedupContacts()
			out = append(out, r)
			continue
		}
		resolved, err := p.directory.ResolveRecipients(ctx, projectID, sel.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				p.logger.Warn("Recipient selector resolved to nothing",
					"project_id", projectID, "id", sel.ID)
				continue
			}
			return nil, fmt.Errorf("recipient resolution failed: %w", err)
		}
		for i := range resolved {
			resolved[i].DedupContacts()
		}
		out = append(out, resolved...)
	}
	return out, nil
}
