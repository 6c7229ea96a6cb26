package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts to the standard type.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Tuning holds the performance knobs: worker counts, queue capacities,
// retry backoff and shutdown behaviour. All fields are optional in YAML;
// absent values keep their defaults.
type Tuning struct {
	// Workers is the executor's concurrency.
	Workers int `yaml:"workers"`

	// EventQueueCapacity bounds the in-process event queue. Keeping it at 1
	// makes trigger responses reflect dispatch backpressure.
	EventQueueCapacity int `yaml:"event_queue_capacity"`
	// PipelineQueueCapacity bounds the in-process pipeline task queue.
	PipelineQueueCapacity int `yaml:"pipeline_queue_capacity"`

	ShutdownTimeout Duration `yaml:"shutdown_timeout"`

	// AMQP reconnect backoff bounds.
	AMQPInitialBackoff Duration `yaml:"amqp_initial_backoff"`
	AMQPMaxBackoff     Duration `yaml:"amqp_max_backoff"`
	// AMQPCredit is the receiver link credit (prefetch).
	AMQPCredit int `yaml:"amqp_credit"`

	// APIKeyCacheTTL bounds how long a revoked API key keeps working.
	APIKeyCacheTTL Duration `yaml:"api_key_cache_ttl"`
}

// DefaultTuning returns the built-in defaults.
func DefaultTuning() Tuning {
	return Tuning{
		Workers:               4,
		EventQueueCapacity:    1,
		PipelineQueueCapacity: 256,
		ShutdownTimeout:       Duration(30 * time.Second),
		AMQPInitialBackoff:    Duration(500 * time.Millisecond),
		AMQPMaxBackoff:        Duration(60 * time.Second),
		AMQPCredit:            16,
		APIKeyCacheTTL:        Duration(1 * time.Second),
	}
}

// LoadTuning reads the tuning file at path, expands {{.VAR}} environment
// references and merges the result over the defaults. A missing file is not
// an error; the defaults apply.
func LoadTuning(path string) (Tuning, error) {
	tuning := DefaultTuning()
	if path == "" {
		return tuning, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return tuning, nil
		}
		return tuning, fmt.Errorf("failed to read tuning file: %w", err)
	}

	var override Tuning
	if err := yaml.Unmarshal(ExpandEnv(data), &override); err != nil {
		return tuning, fmt.Errorf("failed to parse tuning file: %w", err)
	}
	if err := mergo.Merge(&tuning, override, mergo.WithOverride); err != nil {
		return tuning, fmt.Errorf("failed to merge tuning: %w", err)
	}

	if err := tuning.validate(); err != nil {
		return tuning, err
	}
	return tuning, nil
}

func (t Tuning) validate() error {
	if t.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", t.Workers)
	}
	if t.EventQueueCapacity < 1 {
		return fmt.Errorf("event_queue_capacity must be at least 1, got %d", t.EventQueueCapacity)
	}
	if t.PipelineQueueCapacity < 1 {
		return fmt.Errorf("pipeline_queue_capacity must be at least 1, got %d", t.PipelineQueueCapacity)
	}
	if t.AMQPInitialBackoff <= 0 || t.AMQPMaxBackoff < t.AMQPInitialBackoff {
		return fmt.Errorf("amqp backoff bounds are inconsistent: initial %v, max %v",
			t.AMQPInitialBackoff.Std(), t.AMQPMaxBackoff.Std())
	}
	return nil
}
