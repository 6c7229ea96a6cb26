// Package telegram delivers messages through the Telegram Bot API. The
// credential is the bot token; contacts carry the chat id.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/go-telegram/bot"

	"github.com/notifico-tech/notifico/pkg/engine"
	"github.com/notifico-tech/notifico/pkg/models"
	"github.com/notifico-tech/notifico/pkg/transport"
)

// Transport posts via a per-token bot instance.
type Transport struct {
	mu   sync.Mutex
	bots map[string]*bot.Bot
}

func New() *Transport {
	return &Transport{bots: make(map[string]*bot.Bot)}
}

func (t *Transport) Name() string { return "telegram" }

func (t *Transport) SupportsContact(contactType string) bool { return contactType == "telegram" }

func (t *Transport) HasContacts() bool { return true }

// SendMessage sends the rendered body as HTML to the contact's chat.
func (t *Transport) SendMessage(ctx context.Context, credential string, contact models.Contact, message models.Message, _ *models.PipelineContext) error {
	chatID, err := strconv.ParseInt(contact.Value, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: telegram contact %q is not a chat id", engine.ErrContactTypeMismatch, contact.Value)
	}

	b, err := t.bot(credential)
	if err != nil {
		return err
	}

	_, err = b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      message.Content["body"],
		ParseMode: "HTML",
	})
	if err != nil {
		return engine.Transient(fmt.Errorf("telegram send failed: %w", err))
	}
	return nil
}

func (t *Transport) bot(token string) (*bot.Bot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok := t.bots[token]; ok {
		return b, nil
	}
	b, err := bot.New(token,
		bot.WithHTTPClient(0, transport.SharedHTTPClient),
		bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrInvalidCredentialFormat, err)
	}
	t.bots[token] = b
	return b, nil
}
