package shm

import (
	"context"
)

// Receiver is the consumer half of a queue. It can only read.
//
// A Receiver may be moved between goroutines, but at most one Receiver per
// queue may be in use at any time, across all processes.
type Receiver[T any] struct {
	q *queue[T]
}

// NewReceiver attaches to the queue called name, creating it if needed. A nil
// config means DefaultConfig.
func NewReceiver[T any](ctx context.Context, name string, config *Config) (*Receiver[T], error) {
	q, err := openQueue[T](ctx, name, true, config)
	if err != nil {
		return nil, err
	}
	return &Receiver[T]{q: q}, nil
}

// Recv dequeues the oldest message, busy-waiting for as long as the queue is
// empty. It never yields or sleeps and cannot be cancelled; use RecvContext
// for that. Recv panics with ErrClosed if the Receiver is closed.
func (r *Receiver[T]) Recv() T {
	for {
		if v, ok := r.q.dequeue(); ok {
			return v
		}
		if r.q.isClosed() {
			panic(ErrClosed)
		}
	}
}

// TryRecv makes a single attempt to dequeue. ok is false when the queue is
// empty.
func (r *Receiver[T]) TryRecv() (v T, ok bool) {
	return r.q.dequeue()
}

// RecvContext dequeues the oldest message, waiting while the queue is empty
// until ctx is done.
func (r *Receiver[T]) RecvContext(ctx context.Context) (T, error) {
	var v T
	err := waitFor(ctx, r.q.cfg, r.q.isClosed, func() bool {
		var ok bool
		v, ok = r.q.dequeue()
		return ok
	})
	return v, err
}

// Len returns the number of messages waiting to be read.
func (r *Receiver[T]) Len() int { return r.q.len() }

// Cap returns how many messages fit in the queue at once (capacity-1).
func (r *Receiver[T]) Cap() int { return int(r.q.capacity - 1) }

// Name returns the queue name.
func (r *Receiver[T]) Name() string { return r.q.region.Name() }

// Created reports whether this Receiver created the queue's region.
func (r *Receiver[T]) Created() bool { return r.q.region.Created() }

// Close detaches the Receiver. The queue and its contents stay in place.
func (r *Receiver[T]) Close() error { return r.q.close() }
