// Package shm provides a lock-free, single-producer/single-consumer message
// queue stored in a named shared memory region, for inter-process
// communication (IPC) without per-message system calls or locks.
//
// A queue is a ring of Capacity fixed-size slots followed by two uint64
// cursors, head (written only by the producer) and tail (written only by the
// consumer). The queue is empty when head == tail and full when
// (head+1)%Capacity == tail, so Capacity-1 messages fit at once.
//
// Sender and Receiver are constructed independently, possibly in different
// processes, against the same name. The first to arrive creates and sizes the
// region; later participants attach to it without touching its contents.
// Nothing in the region describes its layout: all participants must agree on
// Capacity and on the message type out of band. Message types must be
// fixed-size and pointer-free.
//
// Example usage:
//
//	tx, err := shm.NewSender[Message](ctx, "orders", nil)
//	// ...
//	tx.Send(Message{ID: 1})
//
//	rx, err := shm.NewReceiver[Message](ctx, "orders", nil)
//	// ...
//	m := rx.Recv()
//
// Send and Recv busy-wait without yielding. SendContext and RecvContext add
// cancellation and a backoff policy on top of the same protocol.
//
// Regions outlive every handle; remove them with Unlink.
package shm
