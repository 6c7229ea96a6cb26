// Package ntfy delivers messages to an ntfy server. The credential is the
// server base URL (optionally with basic-auth userinfo); contacts carry the
// topic name.
package ntfy

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/notifico-tech/notifico/pkg/engine"
	"github.com/notifico-tech/notifico/pkg/models"
	"github.com/notifico-tech/notifico/pkg/transport"
)

type Transport struct {
	httpClient *http.Client
}

func New() *Transport {
	return &Transport{httpClient: transport.SharedHTTPClient}
}

func (t *Transport) Name() string { return "ntfy" }

func (t *Transport) SupportsContact(contactType string) bool { return contactType == "ntfy" }

func (t *Transport) HasContacts() bool { return true }

// SendMessage publishes the rendered body to the contact's topic. The
// optional title part becomes the notification title.
func (t *Transport) SendMessage(ctx context.Context, credential string, contact models.Contact, message models.Message, _ *models.PipelineContext) error {
	if contact.Value == "" {
		return fmt.Errorf("%w: ntfy contact has no topic", engine.ErrContactTypeMismatch)
	}

	server, err := url.Parse(credential)
	if err != nil || server.Scheme == "" || server.Host == "" {
		return fmt.Errorf("%w: ntfy credential is not a server url", engine.ErrInvalidCredentialFormat)
	}
	user := server.User
	server.User = nil

	endpoint := strings.TrimRight(server.String(), "/") + "/" + contact.Value
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message.Content["body"]))
	if err != nil {
		return fmt.Errorf("failed to build ntfy request: %w", err)
	}
	if title := message.Content["title"]; title != "" {
		req.Header.Set("Title", title)
	}
	if user != nil {
		pass, _ := user.Password()
		req.SetBasicAuth(user.Username(), pass)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return engine.Transient(fmt.Errorf("ntfy send failed: %w", err))
	}
	return transport.CheckResponse(resp)
}
