// Package shm contains platform-specific helpers for named shared memory regions.
package shm

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultDir is where POSIX shared memory objects live on Linux; shm_open(3)
// resolves "/name" to DefaultDir/name.
const DefaultDir = "/dev/shm"

// maxNameLen mirrors NAME_MAX for a single path component.
const maxNameLen = 255

var (
	// ErrUnsupportedPlatform is returned on platforms without a shared memory backend.
	ErrUnsupportedPlatform = errors.New("shared memory is not supported on this platform")
	// ErrInvalidName is returned for names the shared memory facility would reject.
	ErrInvalidName = errors.New("invalid shared memory name")
	// ErrAttachTimeout is returned when an existing region never reaches the requested size.
	ErrAttachTimeout = errors.New("timed out waiting for shared memory region to be sized")
)

// MappedRegion represents a memory-mapped shared region.
type MappedRegion struct {
	Addr    []byte
	Name    string
	Path    string
	Fd      int
	Created bool
	// Dev and Ino identify the object behind Name, which changes when the
	// name is unlinked and created again.
	Dev uint64
	Ino uint64
}

// MapOptions defines options for mapping shared memory.
type MapOptions struct {
	Dir  string
	Name string
	Size int
	// Create allows creating the region when the name does not exist yet.
	// Without it MapRegion only attaches.
	Create bool
	// AttachTimeout bounds how long an attacher waits for a concurrent creator
	// to size the region. Zero means a single check.
	AttachTimeout time.Duration
}

// ValidateName checks name against shm_open naming rules and returns it
// without the optional leading slash.
func ValidateName(name string) (string, error) {
	name = strings.TrimPrefix(name, "/")
	switch {
	case name == "", name == ".", name == "..":
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	case len(name) > maxNameLen:
		return "", fmt.Errorf("%w: longer than %d bytes", ErrInvalidName, maxNameLen)
	case strings.ContainsAny(name, "/\x00"):
		return "", fmt.Errorf("%w: %q contains a path separator or NUL", ErrInvalidName, name)
	}
	return name, nil
}

func dirOrDefault(dir string) string {
	if dir == "" {
		return DefaultDir
	}
	return dir
}
