// Package api serves the two HTTP surfaces: the authenticated ingest API
// that accepts event triggers, and the public API recipients reach through
// unsubscribe links.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/notifico-tech/notifico/pkg/version"
)

// Timeouts applied to both listeners.
const (
	defaultReadHeaderTimeout = 5 * time.Second
	defaultReadTimeout       = 30 * time.Second
	defaultWriteTimeout      = 30 * time.Second
)

// Server wraps one echo instance and its http.Server.
type Server struct {
	echo   *echo.Echo
	srv    *http.Server
	logger *slog.Logger
}

func newServer(name, bind string) *Server {
	e := echo.New()
	e.Use(securityHeaders())

	return &Server{
		echo: e,
		srv: &http.Server{
			Addr:              bind,
			Handler:           e,
			ReadHeaderTimeout: defaultReadHeaderTimeout,
			ReadTimeout:       defaultReadTimeout,
			WriteTimeout:      defaultWriteTimeout,
		},
		logger: slog.Default().With("component", "api", "server", name),
	}
}

// Start serves until Shutdown is called. It blocks; run it in a goroutine.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("HTTP server shutting down")
	return s.srv.Shutdown(ctx)
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// healthHandler handles GET /health on both surfaces. It is deliberately
// minimal and unauthenticated; queue and store health are not probed so an
// orchestrator does not restart the process over a dependency blip.
func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, &HealthResponse{Status: "ok", Version: version.Full()})
}
