package store

import (
	"context"
	"log/slog"
	"sync"
)

// LogRecorder is the default delivery recorder: every attempt goes to the
// structured log. Used when no database is configured.
type LogRecorder struct {
	logger *slog.Logger
}

// NewLogRecorder creates a slog-backed recorder.
func NewLogRecorder() *LogRecorder {
	return &LogRecorder{logger: slog.Default().With("component", "delivery-recorder")}
}

// Record implements DeliveryRecorder.
func (r *LogRecorder) Record(_ context.Context, d Delivery) {
	if d.Success {
		r.logger.Info("Message delivered",
			"transport", d.Transport,
			"event_id", d.EventID,
			"notification_id", d.NotificationID,
			"message_id", d.MessageID,
			"contact_type", d.ContactType)
		return
	}
	r.logger.Warn("Message delivery failed",
		"transport", d.Transport,
		"event_id", d.EventID,
		"notification_id", d.NotificationID,
		"message_id", d.MessageID,
		"contact_type", d.ContactType,
		"error", d.Error)
}

// MemoryRecorder collects delivery records in memory, for tests.
type MemoryRecorder struct {
	mu      sync.Mutex
	records []Delivery
}

// NewMemoryRecorder creates an empty recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// Record implements DeliveryRecorder.
func (r *MemoryRecorder) Record(_ context.Context, d Delivery) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, d)
}

// Records returns a copy of everything recorded so far.
func (r *MemoryRecorder) Records() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery(nil), r.records...)
}
