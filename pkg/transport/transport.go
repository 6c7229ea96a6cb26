// Package transport adapts concrete delivery channels (smtp, slack,
// telegram, ...) into pipeline step plugins. A channel implements the small
// SimpleTransport interface; Wrap layers credential resolution, contact
// selection and delivery recording on top, claiming the "<name>.send" step.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/notifico-tech/notifico/pkg/engine"
	"github.com/notifico-tech/notifico/pkg/models"
	"github.com/notifico-tech/notifico/pkg/store"
)

// SimpleTransport is one delivery channel. Implementations are stateless
// with respect to the pipeline; any connection reuse is theirs to manage.
type SimpleTransport interface {
	// Name is the transport's registry name; the wrapper claims the
	// "<name>.send" step tag and credentials must carry it.
	Name() string
	// SupportsContact reports whether the transport can deliver to the
	// given contact type.
	SupportsContact(contactType string) bool
	// HasContacts is false for transports that broadcast against the
	// credential alone (no per-recipient address).
	HasContacts() bool
	// SendMessage delivers one rendered message to one contact using the
	// raw credential value. Transient failures are wrapped with
	// engine.Transient by the implementation.
	SendMessage(ctx context.Context, credential string, contact models.Contact, message models.Message, pctx *models.PipelineContext) error
}

// Wrapper turns a SimpleTransport into an engine.StepPlugin.
type Wrapper struct {
	transport SimpleTransport
	creds     store.CredentialStore
	recorder  store.DeliveryRecorder
	logger    *slog.Logger
}

// Wrap builds the step plugin for one transport.
func Wrap(t SimpleTransport, creds store.CredentialStore, recorder store.DeliveryRecorder) *Wrapper {
	return &Wrapper{
		transport: t,
		creds:     creds,
		recorder:  recorder,
		logger:    slog.Default().With("component", "transport", "transport", t.Name()),
	}
}

// Steps implements engine.StepPlugin.
func (w *Wrapper) Steps() []string { return []string{w.transport.Name() + ".send"} }

type sendStep struct {
	Credential string `json:"credential"`
}

// Execute resolves the step's credential, selects the deliverable contacts
// and sends every rendered message to each of them. Individual send failures
// are recorded and logged but do not abort the remaining sends; the step
// itself continues the pipeline.
func (w *Wrapper) Execute(ctx context.Context, pctx *models.PipelineContext, step models.Step) (engine.Outcome, error) {
	var payload sendStep
	if err := step.Decode(&payload); err != nil {
		return engine.OutcomeInterrupt, fmt.Errorf("%w: %v", engine.ErrInvalidStepPayload, err)
	}
	if payload.Credential == "" {
		return engine.OutcomeInterrupt, fmt.Errorf("%w: credential selector is empty", engine.ErrInvalidStepPayload)
	}

	cred, err := w.creds.Credential(ctx, pctx.ProjectID, payload.Credential)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return engine.OutcomeInterrupt, fmt.Errorf("%w: %q", engine.ErrCredentialNotFound, payload.Credential)
		}
		return engine.OutcomeInterrupt, fmt.Errorf("failed to resolve credential %q: %w", payload.Credential, err)
	}
	if cred.Transport != w.transport.Name() {
		return engine.OutcomeInterrupt, fmt.Errorf("%w: credential %q is for transport %q",
			engine.ErrInvalidCredentialFormat, payload.Credential, cred.Transport)
	}

	contacts, err := w.selectContacts(pctx)
	if err != nil {
		return engine.OutcomeInterrupt, err
	}

	for _, contact := range contacts {
		for _, message := range pctx.Messages {
			sendErr := w.transport.SendMessage(ctx, cred.Value, contact, message, pctx)
			w.record(ctx, pctx, contact, message, sendErr)
			if sendErr != nil {
				w.logger.Error("message delivery failed",
					"notification_id", pctx.NotificationID,
					"message_id", message.ID,
					"contact_type", contact.Type,
					"error", sendErr)
			}
		}
	}
	return engine.OutcomeContinue, nil
}

// selectContacts picks the addresses to deliver to: the task's pinned
// contact when fan-out set one, otherwise every supported contact of the
// recipient. Contact-less transports get a single empty contact.
func (w *Wrapper) selectContacts(pctx *models.PipelineContext) ([]models.Contact, error) {
	if !w.transport.HasContacts() {
		return []models.Contact{{}}, nil
	}
	if pctx.Contact != nil {
		if !w.transport.SupportsContact(pctx.Contact.Type) {
			return nil, fmt.Errorf("%w: %q", engine.ErrContactTypeMismatch, pctx.Contact.Type)
		}
		return []models.Contact{*pctx.Contact}, nil
	}
	if pctx.Recipient == nil {
		return nil, engine.ErrRecipientNotSet
	}
	var out []models.Contact
	for _, c := range pctx.Recipient.Contacts {
		if w.transport.SupportsContact(c.Type) {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: recipient has no contact usable by %s",
			engine.ErrContactTypeMismatch, w.transport.Name())
	}
	return out, nil
}

func (w *Wrapper) record(ctx context.Context, pctx *models.PipelineContext, contact models.Contact, message models.Message, sendErr error) {
	d := store.Delivery{
		EventID:        pctx.EventID,
		NotificationID: pctx.NotificationID,
		MessageID:      message.ID,
		Transport:      w.transport.Name(),
		ContactType:    contact.Type,
		ContactValue:   contact.Value,
		Success:        sendErr == nil,
		At:             time.Now().UTC(),
	}
	if sendErr != nil {
		d.Error = sendErr.Error()
	}
	w.recorder.Record(ctx, d)
}
