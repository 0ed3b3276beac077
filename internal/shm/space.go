package shm

import (
	"github.com/shirou/gopsutil/v3/disk"
)

// CanCreate reports whether the filesystem backing dir has room for a region
// of size bytes. Pages of a tmpfs object are only allocated on first touch,
// so without this check an oversized region fails later with SIGBUS instead
// of at creation. When usage cannot be determined it reports true and leaves
// the decision to ftruncate/mmap.
func CanCreate(dir string, size uint64) bool {
	stat, err := disk.Usage(dirOrDefault(dir))
	if err != nil {
		return true
	}
	return stat.Free >= size
}
