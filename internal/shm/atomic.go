package shm

import (
	"sync/atomic"
	"unsafe"
)

// The functions below operate on words inside a mapped region. addr must be
// 8-byte aligned. sync/atomic operations are sequentially consistent and
// compile to locked/ordered machine instructions, so the ordering holds
// between processes that map the same physical pages, not only between
// goroutines.

// AtomicLoadUint64 loads a uint64 from shared memory atomically.
func AtomicLoadUint64(addr unsafe.Pointer) uint64 {
	return atomic.LoadUint64((*uint64)(addr))
}

// AtomicStoreUint64 stores a uint64 to shared memory atomically.
func AtomicStoreUint64(addr unsafe.Pointer, val uint64) {
	atomic.StoreUint64((*uint64)(addr), val)
}

