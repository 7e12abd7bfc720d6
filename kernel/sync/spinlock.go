// Package sync provides the synchronization primitive the memory core
// needs: a spinlock to serialize access to the kernel heap. It is
// intentionally narrower than the standard library's sync package since a
// freestanding allocator cannot rely on goroutine parking.
package sync

import "sync/atomic"

var (
	// yieldFn is invoked between failed acquire attempts. Tests substitute
	// runtime.Gosched here to avoid starving other goroutines; production
	// code leaves it nil and busy-waits, matching a single-CPU or
	// coarse-grained kernel where parking is not available.
	yieldFn func()
)

// Spinlock implements a lock where a caller trying to acquire it busy-waits
// until the lock becomes available. Holders must not themselves attempt to
// acquire the heap lock (no re-entry).
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the caller. Re-acquiring
// a lock already held by the same caller deadlocks, as with any spinlock.
func (l *Spinlock) Acquire() {
	for !l.TryToAcquire() {
		if yieldFn != nil {
			yieldFn()
		}
	}
}

// TryToAcquire attempts to acquire the lock without blocking and reports
// whether it succeeded.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.CompareAndSwapUint32(&l.state, 0, 1)
}

// Release relinquishes a held lock. Calling Release while the lock is free
// has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}
