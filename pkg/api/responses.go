package api

import (
	"github.com/google/uuid"
)

// TriggerResponse is returned by POST /v1/trigger.
type TriggerResponse struct {
	EventID uuid.UUID `json:"event_id"`
	Status  string    `json:"status"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
