// Package spinlock implements the exclusive lock that backs the
// transacted critical section in internal/txlock. It is a single atomic
// word test-and-set/clear, not reentrant, with holder diagnostics that
// are informational only and never consulted for correctness.
package spinlock

import (
	"runtime"
	"sync/atomic"
)

const maxSpins = 16

var holderSeq uint64

// SpinLock is a non-reentrant exclusive lock implemented over an atomic
// flag plus a diagnostic holder token.
type SpinLock struct {
	state  uint32
	holder uint64
}

// TryLock attempts to acquire sl without blocking. It reports whether the
// lock was acquired.
func (sl *SpinLock) TryLock() bool {
	if atomic.CompareAndSwapUint32(&sl.state, 0, 1) {
		atomic.StoreUint64(&sl.holder, atomic.AddUint64(&holderSeq, 1))
		return true
	}
	return false
}

// Lock locks sl. If the lock is already in use, the calling goroutine spins
// with bounded back-off and yields the scheduler once the threshold is
// exceeded, until the spinlock becomes available.
func (sl *SpinLock) Lock() {
	spins := 0
	for {
		for atomic.LoadUint32(&sl.state) == 1 {
			spins++
			if spins > maxSpins {
				spins = 0
				runtime.Gosched()
			}
		}

		if sl.TryLock() {
			return
		}

		spins = 0
	}
}

// Unlock unlocks sl. A locked SpinLock is not associated with a particular
// goroutine: it is allowed for one goroutine to lock a SpinLock and then
// arrange for another goroutine to unlock it.
func (sl *SpinLock) Unlock() {
	atomic.StoreUint64(&sl.holder, 0)
	atomic.StoreUint32(&sl.state, 0)
}

// IsLocked reports whether sl is currently held. The read is relaxed: it is
// meant for diagnostics and for the transacted critical section's abort
// policy, never for establishing happens-before ordering on its own.
func (sl *SpinLock) IsLocked() bool {
	return atomic.LoadUint32(&sl.state) == 1
}

// Holder returns the diagnostic acquisition token of whichever Lock/TryLock
// call currently holds sl, or 0 if sl is unlocked. Tokens are monotonically
// increasing and unique per acquisition; they do not identify a goroutine.
func (sl *SpinLock) Holder() uint64 {
	return atomic.LoadUint64(&sl.holder)
}
