package api

import (
	"github.com/google/uuid"

	"github.com/notifico-tech/notifico/pkg/models"
)

// TriggerRequest is the HTTP request body for POST /v1/trigger. ID is
// optional; when set it becomes the event id, so clients can correlate and
// resubmit.
type TriggerRequest struct {
	ID         uuid.UUID                  `json:"id,omitempty"`
	Event      string                     `json:"event"`
	Recipients []models.RecipientSelector `json:"recipients,omitempty"`
	Context    map[string]any             `json:"context,omitempty"`
}

// SubscriptionRequest is the HTTP request body for
// POST /api/public/v1/subscription: per-event subscription updates keyed by
// event name, applied in one request.
type SubscriptionRequest struct {
	Events map[string]SubscriptionUpdate `json:"events"`
}

// SubscriptionUpdate is one entry of a SubscriptionRequest.
type SubscriptionUpdate struct {
	Channel string `json:"channel"`
	Enabled *bool  `json:"enabled"`
}
