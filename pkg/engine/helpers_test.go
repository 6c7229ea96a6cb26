package engine

import (
	"testing"
	"time"
)

// deadline polls with a bounded total wait, for async assertions.
type deadline struct {
	until time.Time
}

func newDeadline(t *testing.T) *deadline {
	t.Helper()
	return &deadline{until: time.Now().Add(2 * time.Second)}
}

func (d *deadline) tick(t *testing.T, msg string) {
	t.Helper()
	if time.Now().After(d.until) {
		t.Fatal(msg)
	}
	time.Sleep(10 * time.Millisecond)
}
