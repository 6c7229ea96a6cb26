// Package queue provides the uniform send/receive abstraction the pipeline
// engine runs on: an in-process channel queue for single-process deployments
// and an AMQP 1.0 link pair for brokered ones. Producers and consumers see
// the same interface either way.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// Outcome is the disposition a consumer signals back to the broker.
type Outcome int

// Dispositions.
const (
	// OutcomeAccepted — the message was consumed.
	OutcomeAccepted Outcome = iota
	// OutcomeRejected — the message is malformed and must not be redelivered.
	OutcomeRejected
	// OutcomeReleased — the message was not processed; the broker may redeliver.
	OutcomeReleased
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeRejected:
		return "rejected"
	case OutcomeReleased:
		return "released"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ErrClosed is returned by Send and Receive after Close.
var ErrClosed = errors.New("queue is closed")

type itemKind int

const (
	kindJSON itemKind = iota
	kindObject
)

// Item is a queue payload. A producer passes either a pre-serialised JSON
// string or a typed value; the item records which, and Decode/Encode
// (de)serialise accordingly. The object kind only survives the in-process
// queue — AMQP encodes every item to its JSON text form on send.
type Item struct {
	kind itemKind
	text string
	obj  any
}

// JSON wraps a pre-serialised JSON string.
func JSON(s string) Item {
	return Item{kind: kindJSON, text: s}
}

// Object wraps a typed value.
func Object(v any) Item {
	return Item{kind: kindObject, obj: v}
}

// Encode returns the item's JSON text form.
func (i Item) Encode() (string, error) {
	if i.kind == kindJSON {
		return i.text, nil
	}
	data, err := json.Marshal(i.obj)
	if err != nil {
		return "", fmt.Errorf("failed to encode queue item: %w", err)
	}
	return string(data), nil
}

// Decode unmarshals the item into v. For object items whose dynamic type is
// directly assignable to *v the value is handed over without a serialisation
// round-trip; otherwise the JSON form is used.
func (i Item) Decode(v any) error {
	if i.kind == kindObject {
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Pointer || rv.IsNil() {
			return errors.New("queue item decode target must be a non-nil pointer")
		}
		ov := reflect.ValueOf(i.obj)
		if ov.IsValid() && ov.Type().AssignableTo(rv.Elem().Type()) {
			rv.Elem().Set(ov)
			return nil
		}
		// Pointer payload decoded into a value target.
		if ov.IsValid() && ov.Kind() == reflect.Pointer && !ov.IsNil() &&
			ov.Elem().Type().AssignableTo(rv.Elem().Type()) {
			rv.Elem().Set(ov.Elem())
			return nil
		}
	}
	text, err := i.Encode()
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return fmt.Errorf("failed to decode queue item: %w", err)
	}
	return nil
}

// AckFunc applies a disposition to a delivery.
type AckFunc func(ctx context.Context, outcome Outcome) error

// Delivery is a received item plus its one-shot acknowledgment handle.
type Delivery struct {
	Item Item

	ack  AckFunc
	once sync.Once
}

// NewDelivery builds a delivery around an ack function; a nil ack means the
// disposition is informational only (in-process queue).
func NewDelivery(item Item, ack AckFunc) *Delivery {
	return &Delivery{Item: item, ack: ack}
}

// Ack signals the outcome back to the broker. It is a one-shot: the first
// call applies the disposition, subsequent calls are no-ops returning nil.
func (d *Delivery) Ack(ctx context.Context, outcome Outcome) error {
	var err error
	d.once.Do(func() {
		if d.ack != nil {
			err = d.ack(ctx, outcome)
		}
	})
	return err
}

// Queue is the engine's transport-agnostic message channel.
type Queue interface {
	// Send enqueues an item and reports the broker's disposition.
	Send(ctx context.Context, item Item) (Outcome, error)
	// Receive blocks until an item or ctx is done.
	Receive(ctx context.Context) (*Delivery, error)
	// Close shuts the queue down; in-flight Receive calls return ErrClosed.
	Close(ctx context.Context) error
}
