// Package subscription implements the recipient opt-out steps: sub.check
// gates a pipeline on the recipient's subscription state, and
// sub.list_unsubscribe prepares a signed one-click unsubscribe link for the
// email transport.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/notifico-tech/notifico/pkg/auth"
	"github.com/notifico-tech/notifico/pkg/engine"
	"github.com/notifico-tech/notifico/pkg/models"
	"github.com/notifico-tech/notifico/pkg/store"
)

// Step tags this plugin claims.
const (
	StepCheck           = "sub.check"
	StepListUnsubscribe = "sub.list_unsubscribe"
)

// ListUnsubscribeKey is the plugin-context slot the email transport reads
// the prepared List-Unsubscribe header value from.
const ListUnsubscribeKey = "email.list_unsubscribe"

// ErrPublicURLNotSet means sub.list_unsubscribe ran without a configured
// public base URL, so no link can be built.
var ErrPublicURLNotSet = errors.New("public url is not configured")

// Plugin serves both subscription steps.
type Plugin struct {
	subs      store.SubscriptionStore
	issuer    *auth.Issuer
	publicURL string
	logger    *slog.Logger
}

// New creates the plugin. publicURL is the externally reachable base URL of
// the public API; empty disables sub.list_unsubscribe.
func New(subs store.SubscriptionStore, issuer *auth.Issuer, publicURL string) *Plugin {
	return &Plugin{
		subs:      subs,
		issuer:    issuer,
		publicURL: strings.TrimRight(publicURL, "/"),
		logger:    slog.Default().With("component", "subscription"),
	}
}

// Steps implements engine.StepPlugin.
func (p *Plugin) Steps() []string { return []string{StepCheck, StepListUnsubscribe} }

type checkStep struct {
	Channel string `json:"channel"`
}

// Execute dispatches on the step tag.
func (p *Plugin) Execute(ctx context.Context, pctx *models.PipelineContext, step models.Step) (engine.Outcome, error) {
	tag, err := step.Tag()
	if err != nil {
		return engine.OutcomeInterrupt, err
	}
	switch tag {
	case StepCheck:
		return p.check(ctx, pctx, step)
	case StepListUnsubscribe:
		return p.listUnsubscribe(pctx)
	default:
		return engine.OutcomeInterrupt, fmt.Errorf("%w: %s", engine.ErrPluginNotFound, tag)
	}
}

// check interrupts the pipeline when the recipient has opted out of this
// event on the given channel. Absence of a record means subscribed.
func (p *Plugin) check(ctx context.Context, pctx *models.PipelineContext, step models.Step) (engine.Outcome, error) {
	var payload checkStep
	if err := step.Decode(&payload); err != nil {
		return engine.OutcomeInterrupt, fmt.Errorf("%w: %v", engine.ErrInvalidStepPayload, err)
	}
	if pctx.Recipient == nil {
		return engine.OutcomeInterrupt, engine.ErrRecipientNotSet
	}

	subscribed, err := p.subs.IsSubscribed(ctx, pctx.Recipient.ID, pctx.EventName, payload.Channel)
	if err != nil {
		return engine.OutcomeInterrupt, fmt.Errorf("failed to check subscription: %w", err)
	}
	if !subscribed {
		p.logger.Info("recipient unsubscribed, stopping pipeline",
			"recipient_id", pctx.Recipient.ID,
			"event", pctx.EventName,
			"channel", payload.Channel)
		return engine.OutcomeInterrupt, nil
	}
	return engine.OutcomeContinue, nil
}

// listUnsubscribe issues a scoped token and writes the one-click unsubscribe
// link into the plugin context, angle-bracketed and ready for the
// List-Unsubscribe header.
func (p *Plugin) listUnsubscribe(pctx *models.PipelineContext) (engine.Outcome, error) {
	if pctx.Recipient == nil {
		return engine.OutcomeInterrupt, engine.ErrRecipientNotSet
	}
	if p.publicURL == "" {
		return engine.OutcomeInterrupt, ErrPublicURLNotSet
	}

	token, err := p.issuer.Issue(auth.ScopeListUnsubscribe, pctx.EventName, pctx.Recipient.ID, auth.ListUnsubscribeTTL)
	if err != nil {
		return engine.OutcomeInterrupt, fmt.Errorf("failed to issue unsubscribe token: %w", err)
	}

	q := url.Values{}
	q.Set("token", token)
	q.Set("event", pctx.EventName)
	link := p.publicURL + "/api/public/v1/email/unsubscribe?" + q.Encode()
	pctx.PluginContexts[ListUnsubscribeKey] = "<" + link + ">"
	return engine.OutcomeContinue, nil
}
