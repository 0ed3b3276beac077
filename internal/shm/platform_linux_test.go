//go:build linux

package shm

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"
	"unsafe"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestMapRegionCreateThenAttach(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	opts := MapOptions{Dir: dir, Name: "/region", Size: 4096, Create: true, AttachTimeout: time.Second}

	a, err := MapRegion(ctx, opts)
	require.NoError(t, err)
	defer UnmapRegion(a)
	assert.True(t, a.Created)
	assert.Equal(t, "region", a.Name)
	assert.Equal(t, filepath.Join(dir, "region"), a.Path)
	assert.Len(t, a.Addr, 4096)

	b, err := MapRegion(ctx, opts)
	require.NoError(t, err)
	defer UnmapRegion(b)
	assert.False(t, b.Created)
	assert.Equal(t, a.Ino, b.Ino)

	a.Addr[100] = 7
	assert.Equal(t, byte(7), b.Addr[100])
}

func TestMapRegionAttachOnly(t *testing.T) {
	_, err := MapRegion(context.Background(), MapOptions{Dir: t.TempDir(), Name: "nope", Size: 64})
	assert.True(t, errors.Is(err, unix.ENOENT), "got %v", err)
}

func TestMapRegionWaitsForCreator(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slow")
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL, 0600)
	require.NoError(t, err)
	defer unix.Close(fd)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = unix.Ftruncate(fd, 4096)
	}()

	r, err := MapRegion(context.Background(), MapOptions{Dir: dir, Name: "slow", Size: 4096, Create: true, AttachTimeout: 5 * time.Second})
	require.NoError(t, err)
	defer UnmapRegion(r)
	assert.False(t, r.Created)
}

func TestMapRegionAttachTimeout(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	small, err := MapRegion(ctx, MapOptions{Dir: dir, Name: "small", Size: 64, Create: true})
	require.NoError(t, err)
	defer UnmapRegion(small)

	_, err = MapRegion(ctx, MapOptions{Dir: dir, Name: "small", Size: 4096, Create: true, AttachTimeout: 10 * time.Millisecond})
	assert.ErrorIs(t, err, ErrAttachTimeout)
}

func TestConcurrentOpenHasOneCreator(t *testing.T) {
	dir := t.TempDir()
	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := MapRegion(context.Background(), MapOptions{Dir: dir, Name: "race", Size: 4096, Create: true, AttachTimeout: time.Second})
			if !assert.NoError(t, err) {
				return
			}
			defer UnmapRegion(r)
			if r.Created {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
}

func TestUnlinkRegion(t *testing.T) {
	dir := t.TempDir()
	r, err := MapRegion(context.Background(), MapOptions{Dir: dir, Name: "gone", Size: 64, Create: true})
	require.NoError(t, err)
	defer UnmapRegion(r)

	assert.True(t, Exists(dir, "gone"))
	require.NoError(t, UnlinkRegion(dir, "gone"))
	assert.False(t, Exists(dir, "gone"))
	assert.Error(t, UnlinkRegion(dir, "gone"))

	r.Addr[0] = 1
	assert.Equal(t, byte(1), r.Addr[0])
}

func TestUnmapRegion(t *testing.T) {
	r, err := MapRegion(context.Background(), MapOptions{Dir: t.TempDir(), Name: "unmap", Size: 64, Create: true})
	require.NoError(t, err)
	require.NoError(t, UnmapRegion(r))
	assert.Nil(t, r.Addr)
	assert.Equal(t, -1, r.Fd)
	require.NoError(t, UnmapRegion(r))
	require.NoError(t, UnmapRegion(nil))
}

func TestValidateName(t *testing.T) {
	for in, want := range map[string]string{
		"queue":      "queue",
		"/queue":     "queue",
		"a.b-c_d":    "a.b-c_d",
		"/x":         "x",
		"with space": "with space",
	} {
		got, err := ValidateName(in)
		assert.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	long := make([]byte, maxNameLen+1)
	for i := range long {
		long[i] = 'a'
	}
	for _, in := range []string{"", "/", ".", "..", "a/b", "//a", "a\x00b", string(long)} {
		_, err := ValidateName(in)
		assert.ErrorIs(t, err, ErrInvalidName, "%q", in)
	}
}

func TestAtomics(t *testing.T) {
	r, err := MapRegion(context.Background(), MapOptions{Dir: t.TempDir(), Name: "atomics", Size: 64, Create: true})
	require.NoError(t, err)
	defer UnmapRegion(r)

	p := unsafe.Pointer(&r.Addr[8])
	assert.Equal(t, uint64(0), AtomicLoadUint64(p))
	AtomicStoreUint64(p, math.MaxUint64-1)
	assert.Equal(t, uint64(math.MaxUint64-1), AtomicLoadUint64(p))
}

func TestCanCreate(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, CanCreate(dir, math.MaxUint64))
	stat, err := disk.Usage(dir)
	require.NoError(t, err)
	assert.True(t, CanCreate(dir, stat.Free/2))
	assert.True(t, CanCreate(filepath.Join(dir, "missing"), math.MaxUint64), "unknown usage defers to the kernel")
}
