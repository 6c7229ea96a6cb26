package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/notifico-tech/notifico/pkg/models"
	"github.com/notifico-tech/notifico/pkg/queue"
	"github.com/notifico-tech/notifico/pkg/store"
)

// maxTriggerBodySize bounds the accepted event payload.
const maxTriggerBodySize = 1 << 20 // 1 MiB

// IngestServer is the authenticated trigger surface. Accepted requests are
// published onto the events queue; the event consumer dispatches from there,
// so a full bounded queue is the back-pressure point.
type IngestServer struct {
	*Server
	events queue.Queue
	auth   *keyAuthenticator
}

// NewIngest builds the ingest server on bind, publishing to events.
// keyCacheTTL bounds API key cache staleness; zero selects the default.
func NewIngest(events queue.Queue, keys store.APIKeyStore, bind string, keyCacheTTL time.Duration) *IngestServer {
	s := &IngestServer{
		Server: newServer("ingest", bind),
		events: events,
		auth:   newKeyAuthenticator(keys, keyCacheTTL),
	}

	s.echo.GET("/health", s.healthHandler)
	s.echo.POST("/v1/trigger", s.triggerHandler, s.auth.middleware())
	// The webhook carries its key in the query string, not the header.
	s.echo.POST("/v1/trigger/webhook", s.webhookHandler)

	return s
}

// enqueue publishes one event request; a 202 means the events queue accepted
// it, nothing more.
func (s *IngestServer) enqueue(c *echo.Context, req models.EventRequest) error {
	if _, err := s.events.Send(c.Request().Context(), queue.Object(req)); err != nil {
		return mapError(fmt.Errorf("events queue send failed: %w", err))
	}
	return c.JSON(http.StatusAccepted, &TriggerResponse{
		EventID: req.ID,
		Status:  "accepted",
	})
}

// triggerHandler handles POST /v1/trigger. A client-supplied id is kept so
// resubmissions correlate; absent ids get a fresh v7.
func (s *IngestServer) triggerHandler(c *echo.Context) error {
	var req TriggerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Event == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "event field is required")
	}

	eventID := req.ID
	if eventID == uuid.Nil {
		var err error
		if eventID, err = uuid.NewV7(); err != nil {
			return mapError(err)
		}
	}

	return s.enqueue(c, models.EventRequest{
		ID:         eventID,
		ProjectID:  projectID(c),
		Event:      req.Event,
		Recipients: req.Recipients,
		Context:    req.Context,
	})
}

// webhookHandler handles POST /v1/trigger/webhook?event=<name>&token=<key>.
// The whole request body becomes the event context, so third-party systems
// can point a webhook here without any payload adaptation.
func (s *IngestServer) webhookHandler(c *echo.Context) error {
	event := c.QueryParam("event")
	if event == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "event query parameter is required")
	}
	token := c.QueryParam("token")
	if token == "" {
		return echo.NewHTTPError(http.StatusForbidden, "token query parameter is required")
	}
	resolvedProject, err := s.auth.resolve(c, token)
	if err != nil {
		return mapError(err)
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxTriggerBodySize))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}
	eventContext := map[string]any{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &eventContext); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "request body is not a JSON object")
		}
	}

	eventID, err := uuid.NewV7()
	if err != nil {
		return mapError(err)
	}

	return s.enqueue(c, models.EventRequest{
		ID:        eventID,
		ProjectID: resolvedProject,
		Event:     event,
		Context:   eventContext,
	})
}
