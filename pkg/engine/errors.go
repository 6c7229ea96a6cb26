package engine

import (
	"errors"
	"fmt"
)

// Step error taxonomy. All of these abort the task and are never retried by
// the engine itself.
var (
	// ErrPluginNotFound — no registered plugin claims the step's tag.
	ErrPluginNotFound = errors.New("no plugin registered for step")

	// ErrRecipientNotSet — the step requires a recipient but none is set on
	// the context.
	ErrRecipientNotSet = errors.New("recipient is not set")

	// ErrContactTypeMismatch — the current contact's type is not usable by
	// the step.
	ErrContactTypeMismatch = errors.New("contact type mismatch")

	// ErrCredentialNotFound — the credential selector resolved to nothing.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrInvalidCredentialFormat — the stored credential does not match the
	// consuming transport.
	ErrInvalidCredentialFormat = errors.New("invalid credential format")

	// ErrTemplateNotFound — a template selector resolved to nothing.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrRenderingFailed — template rendering failed.
	ErrRenderingFailed = errors.New("template rendering failed")

	// ErrInvalidStepPayload — the step payload did not decode into the
	// plugin's typed struct.
	ErrInvalidStepPayload = errors.New("invalid step payload")

	// ErrQueueSend — enqueueing a task failed.
	ErrQueueSend = errors.New("queue send failed")
)

// transientError marks an error as transient: under AMQP the task's delivery
// is released back to the broker for redelivery instead of being accepted
// (poison-message policy applies to everything unmarked).
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err as transient. A nil err returns nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether any error in the chain is marked transient.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// StepError annotates a plugin error with the step tag and index it occurred
// at.
type StepError struct {
	Tag   string
	Index int
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index, e.Tag, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
