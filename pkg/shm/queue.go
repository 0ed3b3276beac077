package shm

import (
	"context"
	"fmt"
	"sync/atomic"
	"unsafe"

	internalshm "github.com/tthorn47/shmem-queue/internal/shm"
)

// queue is a per-process view of a ring buffer living in a Region. It holds
// no state of its own besides the views; head and tail live in the region.
//
// Exactly one goroutine or process may call enqueue and exactly one may call
// dequeue on the same ring at a time. Nothing enforces this beyond the
// Sender / Receiver split.
type queue[T any] struct {
	region   *Region
	layout   Layout
	capacity uint64
	slots    []T
	head     unsafe.Pointer
	tail     unsafe.Pointer
	metrics  queueMetrics
	cfg      *Config
	closed   atomic.Bool
}

// openQueue attaches to (or creates) the queue called name. A freshly created
// region is all zero bytes, which is the empty queue with zero-valued slots.
// An existing region is never written to here.
func openQueue[T any](ctx context.Context, name string, create bool, config *Config) (*queue[T], error) {
	cfg, err := resolveConfig(config)
	if err != nil {
		return nil, err
	}
	layout, err := NewLayout[T](cfg.Capacity)
	if err != nil {
		return nil, err
	}
	region, err := openRegion(ctx, name, int(layout.Size), create, cfg)
	if err != nil {
		return nil, err
	}
	q := newQueue[T](region, layout, cfg)
	internalLogger.debugf("queue %s: capacity:%d slot:%d head:%d tail:%d",
		region.Name(), layout.Capacity, layout.SlotSize, q.loadHead(), q.loadTail())
	return q, nil
}

func newQueue[T any](region *Region, layout Layout, cfg *Config) *queue[T] {
	mem := region.Bytes()
	if uintptr(len(mem)) < layout.Size {
		panic(fmt.Sprintf("shm: region %s is %d bytes, layout needs %d", region.Name(), len(mem), layout.Size))
	}
	base := unsafe.Pointer(unsafe.SliceData(mem))
	return &queue[T]{
		region:   region,
		layout:   layout,
		capacity: layout.Capacity,
		slots:    unsafe.Slice((*T)(base), layout.Capacity),
		head:     unsafe.Add(base, layout.HeadOffset),
		tail:     unsafe.Add(base, layout.TailOffset),
		metrics:  newQueueMetrics(region.Name()),
		cfg:      cfg,
	}
}

func (q *queue[T]) loadHead() uint64 { return internalshm.AtomicLoadUint64(q.head) }
func (q *queue[T]) loadTail() uint64 { return internalshm.AtomicLoadUint64(q.tail) }

// enqueue writes v into the slot at head and then publishes it by storing the
// next head. The store is what makes the slot contents visible to a consumer
// that loads the new head. It reports false, without touching anything, when
// the ring is full.
func (q *queue[T]) enqueue(v T) bool {
	if q.closed.Load() {
		return false
	}
	head := q.loadHead()
	tail := q.loadTail()
	next := (head + 1) % q.capacity
	if next == tail {
		q.metrics.full.Inc()
		return false
	}
	q.slots[head] = v
	internalshm.AtomicStoreUint64(q.head, next)
	q.metrics.enqueued.Inc()
	return true
}

// dequeue copies the slot at tail and then hands it back to the producer by
// storing the next tail. It reports false when the ring is empty.
func (q *queue[T]) dequeue() (T, bool) {
	var v T
	if q.closed.Load() {
		return v, false
	}
	head := q.loadHead()
	tail := q.loadTail()
	if head == tail {
		q.metrics.empty.Inc()
		return v, false
	}
	v = q.slots[tail]
	internalshm.AtomicStoreUint64(q.tail, (tail+1)%q.capacity)
	q.metrics.dequeued.Inc()
	return v, true
}

// len returns the number of unread entries as seen right now.
func (q *queue[T]) len() int {
	head := q.loadHead()
	tail := q.loadTail()
	return int((head + q.capacity - tail) % q.capacity)
}

func (q *queue[T]) isClosed() bool {
	return q.closed.Load()
}

// close detaches this handle. It must not race with enqueue or dequeue on the
// same handle.
func (q *queue[T]) close() error {
	if !q.closed.CompareAndSwap(false, true) {
		return nil
	}
	return q.region.Close()
}
