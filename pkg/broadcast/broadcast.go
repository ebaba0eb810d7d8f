package broadcast

import (
	"context"
	"sync"
)

// Subscriber receives values from a Broadcaster.
// Implementations must be safe for concurrent use.
type Subscriber[T any] interface {
	// Receive returns the channel on which broadcast values arrive.
	Receive() <-chan T

	// Close closes the subscriber and releases resources. After Close the
	// receive channel is closed and no more values arrive. Idempotent.
	Close() error
}

// Broadcaster fans values out to zero or more subscribers. Slow consumers
// have values dropped rather than blocking the broadcast.
type Broadcaster[T any] interface {
	// Subscribe creates a new subscriber receiving all subsequent broadcasts.
	// The subscription is cleaned up automatically when ctx is cancelled.
	Subscribe(ctx context.Context) Subscriber[T]

	// Broadcast sends a value to all active subscribers without blocking.
	Broadcast(ctx context.Context, value T) error

	// Close shuts down the broadcaster and closes all subscribers.
	Close() error
}

type subscriber[T any] struct {
	ch     chan T
	closed bool
	mu     sync.RWMutex
}

func newSubscriber[T any](bufferSize int) *subscriber[T] {
	return &subscriber[T]{ch: make(chan T, bufferSize)}
}

func (s *subscriber[T]) Receive() <-chan T {
	return s.ch
}

func (s *subscriber[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		close(s.ch)
		s.closed = true
	}
	return nil
}

// send attempts a non-blocking delivery; false means dropped or closed.
func (s *subscriber[T]) send(value T) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}

	select {
	case s.ch <- value:
		return true
	default:
		return false
	}
}
