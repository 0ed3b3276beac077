package shm

import (
	"fmt"
	"reflect"
	"unsafe"
)

// indexSize is the width of the head and tail cursors.
const indexSize = 8

// Layout describes where the parts of a queue live inside its region:
//
//	[0, HeadOffset)           Capacity slots of SlotSize bytes
//	[HeadOffset, TailOffset)  head (uint64, producer-owned)
//	[TailOffset, Size)        tail (uint64, consumer-owned)
//
// HeadOffset is Capacity*SlotSize rounded up to the index alignment, which
// only adds padding when that product is not already a multiple of 8.
type Layout struct {
	Capacity   uint64
	SlotSize   uintptr
	HeadOffset uintptr
	TailOffset uintptr
	Size       uintptr
}

// NewLayout computes the layout of a queue of capacity slots holding T.
func NewLayout[T any](capacity uint64) (Layout, error) {
	if capacity < 2 || capacity > maxCapacity {
		return Layout{}, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	if err := checkMessageType(reflect.TypeOf((*T)(nil)).Elem()); err != nil {
		return Layout{}, err
	}
	var zero T
	slot := unsafe.Sizeof(zero)
	if uint64(slot) > (uint64(^uintptr(0))-2*indexSize)/capacity {
		return Layout{}, fmt.Errorf("%w: %d slots of %d bytes overflow the address space", ErrInvalidCapacity, capacity, slot)
	}
	head := alignUp(uintptr(capacity)*slot, indexSize)
	return Layout{
		Capacity:   capacity,
		SlotSize:   slot,
		HeadOffset: head,
		TailOffset: head + indexSize,
		Size:       head + 2*indexSize,
	}, nil
}

func alignUp(n, align uintptr) uintptr {
	return (n + align - 1) &^ (align - 1)
}

// checkMessageType rejects types whose values cannot be copied byte-for-byte
// into another address space: anything holding a pointer, and zero-size types.
func checkMessageType(t reflect.Type) error {
	if t.Size() == 0 {
		return fmt.Errorf("%w: %s has zero size", ErrInvalidMessage, t)
	}
	return checkPlain(t, t)
}

func checkPlain(root, t reflect.Type) error {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return nil
	case reflect.Array:
		return checkPlain(root, t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if err := checkPlain(root, t.Field(i).Type); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %s contains a %s", ErrInvalidMessage, root, t.Kind())
	}
}
