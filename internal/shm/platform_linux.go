//go:build linux

package shm

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sys/unix"
)

// openAttempts bounds the create/attach loop when the name is unlinked
// between our O_EXCL create failing and the plain open.
const openAttempts = 3

// MapRegion maps or creates a shared memory region (Linux implementation).
//
// The region is created with O_EXCL so exactly one caller observes Created.
// The creator sizes the object with ftruncate, which zero-fills it; attachers
// never write to the region here and wait until the creator has sized it.
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	name, err := ValidateName(opts.Name)
	if err != nil {
		return nil, err
	}
	if opts.Size <= 0 {
		return nil, fmt.Errorf("invalid region size %d", opts.Size)
	}
	path := filepath.Join(dirOrDefault(opts.Dir), name)

	fd, created, err := openOrCreate(path, opts.Create)
	if err != nil {
		return nil, err
	}
	cleanup := func() {
		_ = unix.Close(fd)
		if created {
			_ = unix.Unlink(path)
		}
	}

	if created {
		if err := unix.Ftruncate(fd, int64(opts.Size)); err != nil {
			cleanup()
			return nil, fmt.Errorf("ftruncate %s: %w", path, err)
		}
	} else if err := waitSized(ctx, fd, opts.Size, opts.AttachTimeout); err != nil {
		cleanup()
		return nil, fmt.Errorf("attach %s: %w", path, err)
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		cleanup()
		return nil, fmt.Errorf("fstat %s: %w", path, err)
	}
	addr, err := unix.Mmap(fd, 0, opts.Size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &MappedRegion{
		Addr:    addr,
		Name:    name,
		Path:    path,
		Fd:      fd,
		Created: created,
		Dev:     uint64(st.Dev),
		Ino:     uint64(st.Ino),
	}, nil
}

func openOrCreate(path string, create bool) (fd int, created bool, err error) {
	if !create {
		fd, err = unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
		if err != nil {
			return -1, false, fmt.Errorf("open %s: %w", path, err)
		}
		return fd, false, nil
	}
	for i := 0; i < openAttempts; i++ {
		fd, err = unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL|unix.O_CLOEXEC, 0600)
		if err == nil {
			return fd, true, nil
		}
		if !errors.Is(err, unix.EEXIST) {
			return -1, false, fmt.Errorf("create %s: %w", path, err)
		}
		fd, err = unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
		if err == nil {
			return fd, false, nil
		}
		if !errors.Is(err, unix.ENOENT) {
			return -1, false, fmt.Errorf("open %s: %w", path, err)
		}
	}
	return -1, false, fmt.Errorf("open %s: %w", path, err)
}

// waitSized blocks until the object behind fd is at least size bytes long.
func waitSized(ctx context.Context, fd, size int, timeout time.Duration) error {
	var b backoff.BackOff = &backoff.StopBackOff{}
	if timeout > 0 {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = 100 * time.Microsecond
		eb.MaxInterval = 50 * time.Millisecond
		eb.MaxElapsedTime = timeout
		b = eb
	}
	return backoff.Retry(func() error {
		var st unix.Stat_t
		if err := unix.Fstat(fd, &st); err != nil {
			return backoff.Permanent(fmt.Errorf("fstat: %w", err))
		}
		if st.Size < int64(size) {
			return fmt.Errorf("%w: have %d bytes, want %d", ErrAttachTimeout, st.Size, size)
		}
		return nil
	}, backoff.WithContext(b, ctx))
}

// UnmapRegion unmaps and closes the shared memory region (Linux implementation).
// The name stays linked.
func UnmapRegion(region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	var errs []error
	if err := unix.Munmap(region.Addr); err != nil {
		errs = append(errs, fmt.Errorf("munmap: %w", err))
	}
	region.Addr = nil
	if region.Fd >= 0 {
		if err := unix.Close(region.Fd); err != nil {
			errs = append(errs, fmt.Errorf("close fd %d: %w", region.Fd, err))
		}
		region.Fd = -1
	}
	return errors.Join(errs...)
}

// UnlinkRegion removes the name of a shared memory region. Mappings that
// already exist stay valid until they are unmapped.
func UnlinkRegion(dir, name string) error {
	name, err := ValidateName(name)
	if err != nil {
		return err
	}
	path := filepath.Join(dirOrDefault(dir), name)
	if err := unix.Unlink(path); err != nil {
		return fmt.Errorf("unlink %s: %w", path, err)
	}
	return nil
}

// Exists reports whether a region with the given name is currently linked.
func Exists(dir, name string) bool {
	name, err := ValidateName(name)
	if err != nil {
		return false
	}
	var st unix.Stat_t
	return unix.Stat(filepath.Join(dirOrDefault(dir), name), &st) == nil
}
