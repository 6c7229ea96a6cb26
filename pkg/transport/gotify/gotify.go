// Package gotify delivers messages to a Gotify server. The credential is the
// server URL with the application token as its last path segment
// ("https://gotify.example.com/AppToken"); the application identifies the
// audience, so the transport is contact-less.
package gotify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
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

func (t *Transport) Name() string { return "gotify" }

func (t *Transport) SupportsContact(string) bool { return false }

func (t *Transport) HasContacts() bool { return false }

type gotifyMessage struct {
	Title   string `json:"title,omitempty"`
	Message string `json:"message"`
}

// SendMessage posts the rendered body (and optional title part) to the
// server's /message endpoint.
func (t *Transport) SendMessage(ctx context.Context, credential string, _ models.Contact, message models.Message, _ *models.PipelineContext) error {
	server, token, err := splitCredential(credential)
	if err != nil {
		return err
	}

	body, err := json.Marshal(gotifyMessage{
		Title:   message.Content["title"],
		Message: message.Content["body"],
	})
	if err != nil {
		return fmt.Errorf("failed to encode gotify payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+"/message", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build gotify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Gotify-Key", token)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return engine.Transient(fmt.Errorf("gotify send failed: %w", err))
	}
	return transport.CheckResponse(resp)
}

// splitCredential separates the server base URL from the trailing app token.
func splitCredential(credential string) (server, token string, err error) {
	trimmed := strings.TrimRight(credential, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 || !strings.Contains(trimmed, "://") || idx <= strings.Index(trimmed, "://")+2 {
		return "", "", fmt.Errorf("%w: gotify credential is not \"<server-url>/<app-token>\"", engine.ErrInvalidCredentialFormat)
	}
	server, token = trimmed[:idx], trimmed[idx+1:]
	if token == "" {
		return "", "", fmt.Errorf("%w: gotify credential has no app token", engine.ErrInvalidCredentialFormat)
	}
	return server, token, nil
}
