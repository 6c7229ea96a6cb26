// Package pushover delivers messages through the Pushover API. The
// credential is the application token; contacts carry the user key.
package pushover

import (
	"context"
	"fmt"

	"github.com/gregdel/pushover"

	"github.com/notifico-tech/notifico/pkg/engine"
	"github.com/notifico-tech/notifico/pkg/models"
)

type Transport struct{}

func New() *Transport { return &Transport{} }

func (t *Transport) Name() string { return "pushover" }

func (t *Transport) SupportsContact(contactType string) bool { return contactType == "pushover" }

func (t *Transport) HasContacts() bool { return true }

// SendMessage pushes the rendered body (and optional title part) to the
// contact's user key.
func (t *Transport) SendMessage(_ context.Context, credential string, contact models.Contact, message models.Message, _ *models.PipelineContext) error {
	if contact.Value == "" {
		return fmt.Errorf("%w: pushover contact has no user key", engine.ErrContactTypeMismatch)
	}

	app := pushover.New(credential)
	recipient := pushover.NewRecipient(contact.Value)
	msg := pushover.NewMessageWithTitle(message.Content["body"], message.Content["title"])

	if _, err := app.SendMessage(msg, recipient); err != nil {
		return engine.Transient(fmt.Errorf("pushover send failed: %w", err))
	}
	return nil
}
