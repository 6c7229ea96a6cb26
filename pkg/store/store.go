// Package store defines the read-side contracts the pipeline engine consumes
// (pipelines, recipients, templates, credentials, subscriptions, API keys,
// delivery recording) together with an in-memory reference implementation and
// a Postgres one.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/notifico-tech/notifico/pkg/models"
)

var (
	// ErrNotFound is returned when a looked-up entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidAPIKey is returned when a presented API key resolves to no
	// project.
	ErrInvalidAPIKey = errors.New("invalid api key")
)

// PipelineStore resolves events to the pipelines they trigger.
type PipelineStore interface {
	// PipelinesForEvent returns every pipeline in the project whose event
	// set contains the named event. Each pipeline is returned at most once.
	PipelinesForEvent(ctx context.Context, projectID uuid.UUID, event string) ([]models.Pipeline, error)
}

// RecipientDirectory resolves recipient and group ids.
type RecipientDirectory interface {
	// ResolveRecipients maps an id to recipients in the project: a
	// recipient id yields that one recipient, a group id yields its
	// members in directory order. An unknown id returns ErrNotFound.
	ResolveRecipients(ctx context.Context, projectID, id uuid.UUID) ([]models.Recipient, error)
}

// TemplateSource resolves templates by (project, name).
type TemplateSource interface {
	TemplateByName(ctx context.Context, projectID uuid.UUID, name string) (*models.Template, error)
}

// CredentialStore resolves named transport credentials. Resolution is scoped
// to the project with a fallback to the global (uuid.Nil) project.
type CredentialStore interface {
	Credential(ctx context.Context, projectID uuid.UUID, name string) (*models.Credential, error)
}

// SubscriptionStore reads and writes per-recipient opt-in state. Absence of a
// record means subscribed.
type SubscriptionStore interface {
	IsSubscribed(ctx context.Context, recipientID uuid.UUID, event, channel string) (bool, error)
	SetSubscribed(ctx context.Context, recipientID uuid.UUID, event, channel string, subscribed bool) error
}

// APIKeyStore resolves bearer keys to project ids.
type APIKeyStore interface {
	// ResolveKey returns the project the key belongs to, or
	// ErrInvalidAPIKey.
	ResolveKey(ctx context.Context, key uuid.UUID) (uuid.UUID, error)
}

// Delivery is one recorded send attempt for one message.
type Delivery struct {
	EventID        uuid.UUID `json:"event_id"`
	NotificationID uuid.UUID `json:"notification_id"`
	MessageID      uuid.UUID `json:"message_id"`
	Transport      string    `json:"transport"`
	ContactType    string    `json:"contact_type,omitempty"`
	ContactValue   string    `json:"contact_value,omitempty"`
	Success        bool      `json:"success"`
	Error          string    `json:"error,omitempty"`
	At             time.Time `json:"at"`
}

// DeliveryRecorder records every send attempt, success or failure. Recording
// must never fail the sending step — implementations log their own errors.
type DeliveryRecorder interface {
	Record(ctx context.Context, d Delivery)
}
