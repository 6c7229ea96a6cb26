// Package slack delivers messages to Slack channels or DMs via the Web API.
// The credential is a bot token; contacts carry the channel id.
package slack

import (
	"context"
	"fmt"
	"sync"

	slackapi "github.com/slack-go/slack"

	"github.com/notifico-tech/notifico/pkg/engine"
	"github.com/notifico-tech/notifico/pkg/models"
	"github.com/notifico-tech/notifico/pkg/transport"
)

type Transport struct {
	mu      sync.Mutex
	clients map[string]*slackapi.Client
}

func New() *Transport {
	return &Transport{clients: make(map[string]*slackapi.Client)}
}

func (t *Transport) Name() string { return "slack" }

func (t *Transport) SupportsContact(contactType string) bool { return contactType == "slack" }

func (t *Transport) HasContacts() bool { return true }

// SendMessage posts the rendered body to the contact's channel.
func (t *Transport) SendMessage(ctx context.Context, credential string, contact models.Contact, message models.Message, _ *models.PipelineContext) error {
	if contact.Value == "" {
		return fmt.Errorf("%w: slack contact has no channel id", engine.ErrContactTypeMismatch)
	}

	client := t.client(credential)
	_, _, err := client.PostMessageContext(ctx, contact.Value,
		slackapi.MsgOptionText(message.Content["body"], false))
	if err != nil {
		return engine.Transient(fmt.Errorf("slack send failed: %w", err))
	}
	return nil
}

func (t *Transport) client(token string) *slackapi.Client {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.clients[token]; ok {
		return c
	}
	c := slackapi.New(token, slackapi.OptionHTTPClient(transport.SharedHTTPClient))
	t.clients[token] = c
	return c
}
