package api

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/notifico-tech/notifico/pkg/auth"
	"github.com/notifico-tech/notifico/pkg/store"
)

// PublicServer is the recipient-facing surface reached through unsubscribe
// links and subscription-management tokens. It carries no project
// credentials; every request is authorised by a scoped JWT.
type PublicServer struct {
	*Server
	subs   store.SubscriptionStore
	issuer *auth.Issuer
}

// NewPublic builds the public server on bind.
func NewPublic(subs store.SubscriptionStore, issuer *auth.Issuer, bind string) *PublicServer {
	s := &PublicServer{
		Server: newServer("public", bind),
		subs:   subs,
		issuer: issuer,
	}

	s.echo.GET("/health", s.healthHandler)
	s.echo.GET("/api/public/v1/email/unsubscribe", s.unsubscribeHandler)
	s.echo.POST("/api/public/v1/subscription", s.subscriptionHandler)

	return s
}

// unsubscribeHandler handles GET /api/public/v1/email/unsubscribe.
// The link is opened by mail clients (one-click) and humans alike, so the
// response is plain text rather than JSON.
func (s *PublicServer) unsubscribeHandler(c *echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return echo.NewHTTPError(http.StatusForbidden, "missing token")
	}

	claims, err := s.issuer.Verify(token, auth.ScopeListUnsubscribe)
	if err != nil {
		return mapError(err)
	}
	recipientID, err := claims.RecipientID()
	if err != nil {
		return mapError(err)
	}

	// The event is pinned inside the token; the query parameter is only a
	// human-readable hint and is never trusted.
	if err := s.subs.SetSubscribed(c.Request().Context(), recipientID, claims.Event, "email", false); err != nil {
		return mapError(err)
	}

	return c.String(http.StatusOK, "You have been unsubscribed from \""+claims.Event+"\" emails.\n")
}

// subscriptionHandler handles POST /api/public/v1/subscription, authorised
// by a general-scope bearer token.
func (s *PublicServer) subscriptionHandler(c *echo.Context) error {
	header := c.Request().Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return echo.NewHTTPError(http.StatusForbidden, "missing bearer token")
	}

	claims, err := s.issuer.Verify(token, auth.ScopeGeneral)
	if err != nil {
		return mapError(err)
	}
	recipientID, err := claims.RecipientID()
	if err != nil {
		return mapError(err)
	}

	var req SubscriptionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Events) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "events field is required")
	}
	for event, update := range req.Events {
		if event == "" || update.Channel == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "event name and channel are required")
		}
		if update.Enabled == nil {
			return echo.NewHTTPError(http.StatusBadRequest, "enabled field is required for "+event)
		}
	}

	for event, update := range req.Events {
		if err := s.subs.SetSubscribed(c.Request().Context(), recipientID, event, update.Channel, *update.Enabled); err != nil {
			return mapError(err)
		}
	}
	return c.NoContent(http.StatusNoContent)
}
