// Package whatsapp delivers messages through the WhatsApp Business Cloud
// API. The credential is "access-token:phone-number-id"; contacts carry the
// destination phone number.
package whatsapp

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

const defaultGraphURL = "https://graph.facebook.com/v20.0"

type Transport struct {
	baseURL    string
	httpClient *http.Client
}

func New() *Transport {
	return &Transport{baseURL: defaultGraphURL, httpClient: transport.SharedHTTPClient}
}

func (t *Transport) Name() string { return "whatsapp" }

func (t *Transport) SupportsContact(contactType string) bool { return contactType == "whatsapp" }

func (t *Transport) HasContacts() bool { return true }

type textPayload struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

// SendMessage posts the rendered body as a text message to the contact's
// phone number.
func (t *Transport) SendMessage(ctx context.Context, credential string, contact models.Contact, message models.Message, _ *models.PipelineContext) error {
	token, phoneNumberID, ok := strings.Cut(credential, ":")
	if !ok || token == "" || phoneNumberID == "" {
		return fmt.Errorf("%w: whatsapp credential is not \"token:phone-number-id\"", engine.ErrInvalidCredentialFormat)
	}

	payload := textPayload{MessagingProduct: "whatsapp", To: contact.Value, Type: "text"}
	payload.Text.Body = message.Content["body"]
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode whatsapp payload: %w", err)
	}

	url := t.baseURL + "/" + phoneNumberID + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build whatsapp request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return engine.Transient(fmt.Errorf("whatsapp send failed: %w", err))
	}
	return transport.CheckResponse(resp)
}
