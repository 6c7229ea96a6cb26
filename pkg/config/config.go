// Package config loads the process configuration: connection and surface
// settings from the environment, and optional performance tuning from a YAML
// file merged over built-in defaults.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Defaults for optional environment settings.
const (
	DefaultSecretKey  = "secret"
	DefaultAMQPPrefix = "notifico_"
	DefaultIngestBind = "[::]:8001"
	DefaultPublicBind = "[::]:8002"
)

// Config is the environment-derived part of the configuration. Deployment
// concerns live here; performance knobs live in Tuning.
type Config struct {
	// DatabaseURL selects the Postgres store; empty runs fully in-memory.
	DatabaseURL string
	// AMQPURL selects the AMQP broker; empty uses in-process queues.
	AMQPURL    string
	AMQPPrefix string

	// SecretKey signs recipient-facing tokens.
	SecretKey string
	// PublicURL is the externally reachable base URL of the public API,
	// used to build unsubscribe links.
	PublicURL string

	IngestBind string
	PublicBind string

	// TemplatesPath enables loading templates from disk; empty disables
	// the file source.
	TemplatesPath string

	// AllowFileAttachments permits file:// attachment URLs. Off unless the
	// deployment explicitly opts in.
	AllowFileAttachments bool

	LogLevel slog.Level
}

// FromEnv reads the configuration from the process environment, applying
// defaults for everything optional.
func FromEnv() (*Config, error) {
	level, err := parseLogLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:          os.Getenv("DB"),
		AMQPURL:              os.Getenv("AMQP"),
		AMQPPrefix:           envOr("AMQP_PREFIX", DefaultAMQPPrefix),
		SecretKey:            envOr("SECRET_KEY", DefaultSecretKey),
		PublicURL:            os.Getenv("PUBLIC_URL"),
		IngestBind:           envOr("HTTP_INGEST_BIND", DefaultIngestBind),
		PublicBind:           envOr("HTTP_PUBLIC_BIND", DefaultPublicBind),
		TemplatesPath:        os.Getenv("TEMPLATES_PATH"),
		AllowFileAttachments: isTruthy(os.Getenv("ATTACHMENTS_ALLOW_FILE")),
		LogLevel:             level,
	}

	if cfg.SecretKey == DefaultSecretKey {
		slog.Warn("SECRET_KEY is not set, using an insecure default; " +
			"recipient tokens are forgeable until it is configured")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func isTruthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(raw) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", raw)
	}
}
