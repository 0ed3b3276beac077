package shm

import (
	"context"
	"strconv"

	"github.com/valyala/bytebufferpool"
)

// Stats is a snapshot of a queue's cursors.
type Stats struct {
	Name     string
	Capacity uint64
	SlotSize uintptr
	Size     uintptr
	Head     uint64
	Tail     uint64
	Len      int
}

// String renders the snapshot on one line.
func (s Stats) String() string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	_, _ = buf.WriteString("name:")
	_, _ = buf.WriteString(s.Name)
	_, _ = buf.WriteString(" cap:")
	buf.B = strconv.AppendUint(buf.B, s.Capacity, 10)
	_, _ = buf.WriteString(" slot:")
	buf.B = strconv.AppendUint(buf.B, uint64(s.SlotSize), 10)
	_, _ = buf.WriteString(" size:")
	buf.B = strconv.AppendUint(buf.B, uint64(s.Size), 10)
	_, _ = buf.WriteString(" head:")
	buf.B = strconv.AppendUint(buf.B, s.Head, 10)
	_, _ = buf.WriteString(" tail:")
	buf.B = strconv.AppendUint(buf.B, s.Tail, 10)
	_, _ = buf.WriteString(" len:")
	buf.B = strconv.AppendInt(buf.B, int64(s.Len), 10)
	return buf.String()
}

// Inspect attaches to an existing queue and reports its cursors. It never
// creates the region and never writes to it. T and config must match the
// queue's participants.
func Inspect[T any](ctx context.Context, name string, config *Config) (Stats, error) {
	q, err := openQueue[T](ctx, name, false, config)
	if err != nil {
		return Stats{}, err
	}
	defer func() {
		if err := q.close(); err != nil {
			internalLogger.warnf("inspect %s: %v", name, err)
		}
	}()
	return q.stats(), nil
}

func (q *queue[T]) stats() Stats {
	head := q.loadHead()
	tail := q.loadTail()
	return Stats{
		Name:     q.region.Name(),
		Capacity: q.capacity,
		SlotSize: q.layout.SlotSize,
		Size:     q.layout.Size,
		Head:     head,
		Tail:     tail,
		Len:      int((head + q.capacity - tail) % q.capacity),
	}
}
