// Package models defines the domain entities shared by the pipeline engine,
// the stores, and the HTTP surfaces.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Project is the root of the tenancy tree. Every event, pipeline, recipient,
// template and API key belongs to exactly one project. The uuid.Nil project
// is the "default" sentinel.
type Project struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Event is a named trigger registered within a project.
// (project_id, name) is unique.
type Event struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"project_id"`
	Name      string    `json:"name"`
}

// Pipeline is an ordered sequence of opaque step descriptors, triggered by
// any event in its event-id set. The step sequence is copied at dispatch time
// so an in-flight task never observes pipeline edits.
type Pipeline struct {
	ID        uuid.UUID   `json:"id"`
	ProjectID uuid.UUID   `json:"project_id"`
	Steps     StepList    `json:"steps"`
	EventIDs  []uuid.UUID `json:"event_ids"`
}

// Contact identifies a recipient endpoint on a specific transport.
// Type is a transport-defined tag (email, tel, telegram, slack, whatsapp,
// pushover, gotify, ntfy, ...); Value is in the transport's format.
type Contact struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Recipient is a deliverable party within a project.
type Recipient struct {
	ID        uuid.UUID         `json:"id"`
	ProjectID uuid.UUID         `json:"project_id"`
	Extras    map[string]string `json:"extras,omitempty"`
	Contacts  []Contact         `json:"contacts"`
	GroupIDs  []uuid.UUID       `json:"group_ids,omitempty"`
}

// DedupContacts removes duplicate (type, value) pairs, keeping first
// occurrence order.
func (r *Recipient) DedupContacts() {
	seen := make(map[Contact]struct{}, len(r.Contacts))
	out := r.Contacts[:0]
	for _, c := range r.Contacts {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	r.Contacts = out
}

// Group is a named recipient collection. (project_id, name) is unique;
// membership is many-to-many and owned by the recipient directory.
type Group struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"project_id"`
	Name      string    `json:"name"`
}

// Subscription is an explicit per-recipient opt-in/opt-out record for an
// (event, channel) pair. Absence of a record means "subscribed".
type Subscription struct {
	ID           uuid.UUID `json:"id"`
	RecipientID  uuid.UUID `json:"recipient_id"`
	Event        string    `json:"event"`
	Channel      string    `json:"channel"`
	IsSubscribed bool      `json:"is_subscribed"`
}

// Template is a named set of channel-specific template parts.
// (project_id, name) is unique. Part keys are channel-specific, e.g.
// "subject", "body", "body_html", "from", "title".
type Template struct {
	ID          uuid.UUID         `json:"id"`
	ProjectID   uuid.UUID         `json:"project_id"`
	Channel     string            `json:"channel,omitempty"`
	Name        string            `json:"name"`
	Parts       map[string]string `json:"parts"`
	Attachments []AttachmentMeta  `json:"attachments,omitempty"`
	Extras      map[string]string `json:"extras,omitempty"`
}

// APIKey is a bearer token granting ingest access to a project.
// Key is a random (v4) UUID.
type APIKey struct {
	ID          uuid.UUID `json:"id"`
	Key         uuid.UUID `json:"key"`
	ProjectID   uuid.UUID `json:"project_id"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Credential is an opaque transport secret scoped to a project (uuid.Nil for
// global). Transport must match the consuming transport's declared name.
type Credential struct {
	ProjectID uuid.UUID `json:"project_id"`
	Name      string    `json:"name"`
	Transport string    `json:"transport"`
	Value     string    `json:"value"`
}

// AttachmentMeta describes an attachment by reference; the transport
// downloads the URL at send time.
type AttachmentMeta struct {
	URL      string            `json:"url"`
	FileName string            `json:"file_name,omitempty"`
	Extras   map[string]string `json:"extras,omitempty"`
}

// Message is a rendered notification produced by the templater plugin and
// consumed by transport plugins. Content maps part names to rendered strings.
type Message struct {
	ID          uuid.UUID         `json:"id"`
	Content     map[string]string `json:"content"`
	Attachments []AttachmentMeta  `json:"attachments"`
}
