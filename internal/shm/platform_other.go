//go:build !linux

package shm

import (
	"context"
)

// MapRegion is not implemented on this platform.
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	return nil, ErrUnsupportedPlatform
}

// UnmapRegion is not implemented on this platform.
func UnmapRegion(region *MappedRegion) error {
	return ErrUnsupportedPlatform
}

// UnlinkRegion is not implemented on this platform.
func UnlinkRegion(dir, name string) error {
	return ErrUnsupportedPlatform
}

// Exists always reports false on this platform.
func Exists(dir, name string) bool {
	return false
}
