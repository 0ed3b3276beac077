package shm

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	internalshm "github.com/tthorn47/shmem-queue/internal/shm"
)

// mapping is one mmap of a region object, shared by every Region handle of
// that object in this process.
type mapping struct {
	region *internalshm.MappedRegion
	refs   atomic.Int32
}

// regions holds the live mappings of this process keyed by path. While a
// mapping is in the table its reference count only changes under the shard
// lock, so a count seen there is never zero.
var regions = cmap.New[*mapping]()

// Region is a handle to a mapped, named shared memory region. A Region never
// owns the name: Close drops this handle's reference to the mapping and
// leaves the region itself in place until Unlink.
type Region struct {
	name    string
	key     string
	created bool
	m       *mapping
	closed  atomic.Bool
}

// OpenRegion attaches to the region called name, creating it with size
// zeroed bytes if it does not exist yet. An existing region is reused as long
// as it is at least size bytes long.
func OpenRegion(ctx context.Context, name string, size int, config *Config) (*Region, error) {
	return openRegion(ctx, name, size, true, config)
}

// AttachRegion is like OpenRegion but fails when the region does not exist.
func AttachRegion(ctx context.Context, name string, size int, config *Config) (*Region, error) {
	return openRegion(ctx, name, size, false, config)
}

func openRegion(ctx context.Context, name string, size int, create bool, config *Config) (_ *Region, err error) {
	cfg, err := resolveConfig(config)
	if err != nil {
		return nil, err
	}
	ctx, span := cfg.Tracer.Start(ctx, "shm.OpenRegion", trace.WithAttributes(
		attribute.String("shm.name", name),
		attribute.Int("shm.size", size),
		attribute.Bool("shm.create", create),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	clean, err := internalshm.ValidateName(name)
	if err != nil {
		return nil, err
	}
	key := filepath.Join(cfg.Dir, clean)
	if create && !internalshm.Exists(cfg.Dir, clean) && !internalshm.CanCreate(cfg.Dir, uint64(size)) {
		return nil, fmt.Errorf("%w: %s needs %d bytes", ErrNoSpace, key, size)
	}

	mr, err := internalshm.MapRegion(ctx, internalshm.MapOptions{
		Dir:           cfg.Dir,
		Name:          clean,
		Size:          size,
		Create:        create,
		AttachTimeout: cfg.AttachTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRegionUnavailable, err)
	}

	m := share(key, mr)
	if m.region != mr {
		internalLogger.tracef("region %s already mapped in this process, sharing it", key)
		if err := internalshm.UnmapRegion(mr); err != nil {
			internalLogger.warnf("unmap duplicate mapping of %s failed, error=%v", key, err)
		}
	}

	r := &Region{
		name:    clean,
		key:     key,
		created: mr.Created,
		m:       m,
	}
	mode := "attached"
	if r.created {
		mode = "created"
	}
	regionsTotal.WithLabelValues(mode).Inc()
	if counter, err := cfg.Meter.Int64Counter("shmq.region.open"); err == nil {
		counter.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
	}
	span.SetAttributes(attribute.String("shm.mode", mode))
	internalLogger.infof("%s region %s, size:%d", mode, key, size)
	return r, nil
}

// share registers mr in the region table, or returns the mapping of the same
// object that is already there.
func share(key string, mr *internalshm.MappedRegion) *mapping {
	var out *mapping
	regions.Upsert(key, nil, func(exist bool, old, _ *mapping) *mapping {
		if exist && old.region.Dev == mr.Dev && old.region.Ino == mr.Ino &&
			len(old.region.Addr) == len(mr.Addr) {
			old.refs.Add(1)
			out = old
			return old
		}
		// A different object now lives under this name (or the sizes
		// differ). The old mapping leaves the table; its holders still
		// release it through their own pointer.
		out = &mapping{region: mr}
		out.refs.Store(1)
		return out
	})
	return out
}

// release drops one reference to m and reports whether it was the last.
func release(key string, m *mapping) (last bool) {
	inTable := false
	regions.RemoveCb(key, func(_ string, v *mapping, exists bool) bool {
		if !exists || v != m {
			return false
		}
		inTable = true
		last = m.refs.Add(-1) == 0
		return last
	})
	if !inTable {
		last = m.refs.Add(-1) == 0
	}
	return last
}

// Name returns the region name without a leading slash.
func (r *Region) Name() string {
	return r.name
}

// Size returns the mapped size in bytes.
func (r *Region) Size() int {
	return len(r.m.region.Addr)
}

// Created reports whether this handle created the region.
func (r *Region) Created() bool {
	return r.created
}

// Bytes returns the mapped memory. It must not be used after Close.
func (r *Region) Bytes() []byte {
	return r.m.region.Addr
}

// Close releases this handle. The mapping is unmapped once no other handle in
// this process uses it; the region itself is never removed here.
func (r *Region) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	if !release(r.key, r.m) {
		return nil
	}
	if err := internalshm.UnmapRegion(r.m.region); err != nil {
		internalLogger.errorf("unmap region %s failed, error=%v", r.key, err)
		return fmt.Errorf("close region %s: %w", r.name, err)
	}
	internalLogger.debugf("unmapped region %s", r.key)
	return nil
}

// Unlink removes the region called name. Processes that already mapped it
// keep their mapping; later opens of the name create a fresh region. A
// failure is logged and returned; the region may then linger until removed
// by other means.
func Unlink(ctx context.Context, name string, config *Config) (err error) {
	cfg, err := resolveConfig(config)
	if err != nil {
		return err
	}
	_, span := cfg.Tracer.Start(ctx, "shm.Unlink", trace.WithAttributes(attribute.String("shm.name", name)))
	defer span.End()

	if err := internalshm.UnlinkRegion(cfg.Dir, name); err != nil {
		unlinkFailuresTotal.Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		internalLogger.warnf("unlink region %s failed, error=%v", name, err)
		return err
	}
	internalLogger.infof("unlinked region %s", name)
	return nil
}

// Exists reports whether a region called name is currently linked.
func Exists(name string, config *Config) bool {
	dir := internalshm.DefaultDir
	if config != nil && config.Dir != "" {
		dir = config.Dir
	}
	return internalshm.Exists(dir, name)
}
