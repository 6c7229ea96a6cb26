package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	echo "github.com/labstack/echo/v5"

	"github.com/notifico-tech/notifico/pkg/store"
)

// projectIDKey is the request-scoped slot the auth middleware stores the
// resolved project id in.
const projectIDKey = "project_id"

// DefaultKeyCacheTTL bounds how long a revoked API key keeps working.
const DefaultKeyCacheTTL = 1 * time.Second

const keyCacheSize = 100

// keyAuthenticator resolves bearer API keys to project ids with a small
// expiring cache in front of the store.
type keyAuthenticator struct {
	keys  store.APIKeyStore
	cache *expirable.LRU[uuid.UUID, uuid.UUID]
}

func newKeyAuthenticator(keys store.APIKeyStore, ttl time.Duration) *keyAuthenticator {
	if ttl <= 0 {
		ttl = DefaultKeyCacheTTL
	}
	return &keyAuthenticator{
		keys:  keys,
		cache: expirable.NewLRU[uuid.UUID, uuid.UUID](keyCacheSize, nil, ttl),
	}
}

// resolve maps a raw key to its project, consulting the cache first.
func (a *keyAuthenticator) resolve(c *echo.Context, raw string) (uuid.UUID, error) {
	key, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, store.ErrInvalidAPIKey
	}
	if projectID, ok := a.cache.Get(key); ok {
		return projectID, nil
	}
	projectID, err := a.keys.ResolveKey(c.Request().Context(), key)
	if err != nil {
		return uuid.Nil, err
	}
	a.cache.Add(key, projectID)
	return projectID, nil
}

// middleware authenticates "Authorization: Bearer <key>" and stores the
// project id in the request context.
func (a *keyAuthenticator) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				return echo.NewHTTPError(http.StatusForbidden, "missing bearer token")
			}
			projectID, err := a.resolve(c, raw)
			if err != nil {
				return mapError(err)
			}
			c.Set(projectIDKey, projectID)
			return next(c)
		}
	}
}

// projectID reads the id the middleware stored.
func projectID(c *echo.Context) uuid.UUID {
	id, _ := c.Get(projectIDKey).(uuid.UUID)
	return id
}
