package shm

import (
	"context"
)

// Sender is the producer half of a queue. It can only write.
//
// A Sender may be moved between goroutines, but at most one Sender per queue
// may be in use at any time, across all processes.
type Sender[T any] struct {
	q *queue[T]
}

// NewSender attaches to the queue called name, creating it if needed. A nil
// config means DefaultConfig.
func NewSender[T any](ctx context.Context, name string, config *Config) (*Sender[T], error) {
	q, err := openQueue[T](ctx, name, true, config)
	if err != nil {
		return nil, err
	}
	return &Sender[T]{q: q}, nil
}

// Send enqueues v, busy-waiting for as long as the queue is full. It never
// yields or sleeps and cannot be cancelled; use SendContext for that. Send
// panics with ErrClosed if the Sender is closed.
func (s *Sender[T]) Send(v T) {
	for !s.q.enqueue(v) {
		if s.q.isClosed() {
			panic(ErrClosed)
		}
	}
}

// TrySend makes a single attempt to enqueue v and reports whether it did.
// A full queue is left untouched.
func (s *Sender[T]) TrySend(v T) bool {
	return s.q.enqueue(v)
}

// SendContext enqueues v, waiting while the queue is full until ctx is done.
func (s *Sender[T]) SendContext(ctx context.Context, v T) error {
	return waitFor(ctx, s.q.cfg, s.q.isClosed, func() bool {
		return s.q.enqueue(v)
	})
}

// Len returns the number of messages the receiver has not read yet.
func (s *Sender[T]) Len() int { return s.q.len() }

// Cap returns how many messages fit in the queue at once (capacity-1).
func (s *Sender[T]) Cap() int { return int(s.q.capacity - 1) }

// Name returns the queue name.
func (s *Sender[T]) Name() string { return s.q.region.Name() }

// Created reports whether this Sender created the queue's region.
func (s *Sender[T]) Created() bool { return s.q.region.Created() }

// Close detaches the Sender. The queue and its contents stay in place.
func (s *Sender[T]) Close() error { return s.q.close() }
