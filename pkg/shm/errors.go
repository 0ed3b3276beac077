package shm

import (
	"errors"

	internalshm "github.com/tthorn47/shmem-queue/internal/shm"
)

var (
	// ErrRegionUnavailable is returned when a shared memory region cannot be
	// created, opened or mapped.
	ErrRegionUnavailable = errors.New("shared memory region unavailable")
	// ErrNoSpace is returned when the backing filesystem cannot hold a new region.
	ErrNoSpace = errors.New("not enough shared memory for region")
	// ErrInvalidName is returned for names the shared memory facility rejects.
	ErrInvalidName = internalshm.ErrInvalidName
	// ErrUnsupportedPlatform is returned where no shared memory backend exists.
	ErrUnsupportedPlatform = internalshm.ErrUnsupportedPlatform
	// ErrInvalidMessage is returned for message types that are not fixed-size
	// and pointer-free.
	ErrInvalidMessage = errors.New("message type must be fixed-size and pointer-free")
	// ErrInvalidCapacity is returned for capacities below 2.
	ErrInvalidCapacity = errors.New("invalid queue capacity")
	// ErrClosed is returned (or panicked with, from Send and Recv) when a
	// handle is used after Close.
	ErrClosed = errors.New("queue handle is closed")
	// ErrWouldBlock is returned by SendContext and RecvContext when the wait
	// backoff policy gives up before the queue became ready.
	ErrWouldBlock = errors.New("queue operation would block")
)
