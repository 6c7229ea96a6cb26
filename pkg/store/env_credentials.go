package store

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/notifico-tech/notifico/pkg/models"
)

// Environment credentials take the form
//
//	CRED_<NAME>=<transport>:<value>                  (global)
//	CRED_<project-uuid>_<NAME>=<transport>:<value>   (project-scoped)
var credEnvPattern = regexp.MustCompile(`^CRED_(?:([0-9a-f-]{36})_)?(.+)$`)

// EnvCredentials is a read-only credential store populated from environment
// variables at startup.
type EnvCredentials struct {
	creds map[credentialKey]models.Credential
}

// NewEnvCredentials parses CRED_* entries out of environ (as returned by
// os.Environ). Malformed entries are logged and skipped.
func NewEnvCredentials(environ []string) *EnvCredentials {
	s := &EnvCredentials{creds: make(map[credentialKey]models.Credential)}

	for _, entry := range environ {
		name, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(name, "CRED_") {
			continue
		}
		match := credEnvPattern.FindStringSubmatch(name)
		if match == nil {
			continue
		}

		projectID := uuid.Nil
		if match[1] != "" {
			parsed, err := uuid.Parse(match[1])
			if err != nil {
				slog.Warn("Skipping credential env var with malformed project uuid", "var", name)
				continue
			}
			projectID = parsed
		}

		transport, credValue, ok := strings.Cut(value, ":")
		if !ok || transport == "" {
			slog.Warn("Skipping credential env var without transport tag", "var", name)
			continue
		}

		credName := strings.ToLower(match[2])
		s.creds[credentialKey{projectID, credName}] = models.Credential{
			ProjectID: projectID,
			Name:      credName,
			Transport: transport,
			Value:     credValue,
		}
	}

	if len(s.creds) > 0 {
		slog.Info("Loaded credentials from environment", "count", len(s.creds))
	}
	return s
}

// Credential implements CredentialStore with the usual project-then-global
// fallback.
func (s *EnvCredentials) Credential(_ context.Context, projectID uuid.UUID, name string) (*models.Credential, error) {
	if c, ok := s.creds[credentialKey{projectID, name}]; ok {
		return &c, nil
	}
	if projectID != uuid.Nil {
		if c, ok := s.creds[credentialKey{uuid.Nil, name}]; ok {
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

// LayeredCredentials resolves against an ordered list of credential stores;
// the first hit wins. Used to layer environment credentials over the
// configured store.
type LayeredCredentials struct {
	layers []CredentialStore
}

// NewLayeredCredentials builds a layered store. Nil layers are skipped.
func NewLayeredCredentials(layers ...CredentialStore) *LayeredCredentials {
	out := &LayeredCredentials{}
	for _, l := range layers {
		if l != nil {
			out.layers = append(out.layers, l)
		}
	}
	return out
}

// Credential implements CredentialStore.
func (s *LayeredCredentials) Credential(ctx context.Context, projectID uuid.UUID, name string) (*models.Credential, error) {
	for _, l := range s.layers {
		c, err := l.Credential(ctx, projectID, name)
		if err == nil {
			return c, nil
		}
	}
	return nil, ErrNotFound
}
