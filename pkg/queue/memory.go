package queue

import (
	"context"
	"sync"
)

// Memory is the in-process queue: multi-producer multi-consumer, bounded when
// capacity > 0, unbounded otherwise. Send always reports Accepted after a
// successful enqueue and the delivery ack is a no-op — Rejected/Released are
// informational in this configuration (at-most-once semantics).
type Memory struct {
	capacity int

	// bounded mode
	ch chan Item

	// unbounded mode
	mu     sync.Mutex
	items  []Item
	signal chan struct{}

	closed    chan struct{}
	closeOnce sync.Once
}

// NewMemory creates an in-process queue. capacity <= 0 means unbounded.
func NewMemory(capacity int) *Memory {
	m := &Memory{
		capacity: capacity,
		closed:   make(chan struct{}),
	}
	if capacity > 0 {
		m.ch = make(chan Item, capacity)
	} else {
		m.signal = make(chan struct{}, 1)
	}
	return m
}

// Send enqueues the item, blocking on a full bounded queue.
func (m *Memory) Send(ctx context.Context, item Item) (Outcome, error) {
	select {
	case <-m.closed:
		return OutcomeRejected, ErrClosed
	default:
	}

	if m.capacity > 0 {
		select {
		case m.ch <- item:
			return OutcomeAccepted, nil
		case <-m.closed:
			return OutcomeRejected, ErrClosed
		case <-ctx.Done():
			return OutcomeReleased, ctx.Err()
		}
	}

	m.mu.Lock()
	m.items = append(m.items, item)
	m.mu.Unlock()
	select {
	case m.signal <- struct{}{}:
	default:
	}
	return OutcomeAccepted, nil
}

// Receive blocks until an item is available. Remaining items are drained
// before a closed queue reports ErrClosed.
func (m *Memory) Receive(ctx context.Context) (*Delivery, error) {
	if m.capacity > 0 {
		// Prefer draining buffered items over observing the close.
		select {
		case item := <-m.ch:
			return NewDelivery(item, nil), nil
		default:
		}
		select {
		case item := <-m.ch:
			return NewDelivery(item, nil), nil
		case <-m.closed:
			select {
			case item := <-m.ch:
				return NewDelivery(item, nil), nil
			default:
				return nil, ErrClosed
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	for {
		m.mu.Lock()
		if len(m.items) > 0 {
			item := m.items[0]
			m.items = m.items[1:]
			if len(m.items) > 0 {
				// Wake the next waiting consumer.
				select {
				case m.signal <- struct{}{}:
				default:
				}
			}
			m.mu.Unlock()
			return NewDelivery(item, nil), nil
		}
		m.mu.Unlock()

		select {
		case <-m.signal:
		case <-m.closed:
			m.mu.Lock()
			empty := len(m.items) == 0
			m.mu.Unlock()
			if empty {
				return nil, ErrClosed
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Depth returns the number of queued items (unbounded mode counts the slice,
// bounded mode the channel buffer).
func (m *Memory) Depth() int {
	if m.capacity > 0 {
		return len(m.ch)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Close shuts the queue down. Safe to call multiple times.
func (m *Memory) Close(context.Context) error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}
