package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/notifico-tech/notifico/pkg/auth"
	"github.com/notifico-tech/notifico/pkg/store"
)

// mapError maps pipeline and store errors to HTTP error responses.
func mapError(err error) *echo.HTTPError {
	if errors.Is(err, store.ErrInvalidAPIKey) {
		return echo.NewHTTPError(http.StatusForbidden, "invalid api key")
	}
	if errors.Is(err, auth.ErrInvalidToken) {
		return echo.NewHTTPError(http.StatusForbidden, "invalid token")
	}
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	}

	// Unexpected error
	slog.Error("Unexpected API error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
