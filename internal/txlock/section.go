// Package txlock implements the transacted critical section: a protocol
// that enters a bucket's critical section optimistically when HTM looks
// available and the lock is free, and falls back to the bucket's spinlock
// otherwise, coordinating correctly between transacting and locking
// threads (spec §4.4).
//
// Go has no portable hardware-transactional-memory intrinsic, so the
// "transaction" here is a seqlock: a reader that enters optimistically
// must call Validate before trusting anything it read, and retry (bounded,
// then fall back to the lock) if validation fails. This is the realization
// spec §9 sanctions: two code paths chosen per call site by a branch on
// htm.Available(), rather than true speculative execution.
package txlock

import (
	"github.com/halvardlabs/txmap/internal/htm"
	"github.com/halvardlabs/txmap/internal/spinlock"
	"github.com/halvardlabs/txmap/internal/xatomic"
)

// maxOptimisticAttempts bounds how many times a caller retries an aborted
// optimistic entry before it must fall back to the pessimistic lock and
// complete (spec §4.4 point 5: the fallback guarantees progress).
const maxOptimisticAttempts = 8

// Section is a bucket's transacted critical section: its spinlock plus the
// seqlock counter that makes optimistic entry observably safe.
type Section struct {
	Lock *spinlock.SpinLock
	Seq  *xatomic.Uint64Seq
}

// New builds a Section over the given lock and sequence counter. Both are
// owned by the caller (typically a bucket) and outlive the Section value.
func New(lock *spinlock.SpinLock, seq *xatomic.Uint64Seq) Section {
	return Section{Lock: lock, Seq: seq}
}

// ReadTicket is returned by BeginRead so the caller can later Validate its
// optimistic read, or know it must unlock after a pessimistic one.
type ReadTicket struct {
	transacted bool
	snapshot   uint64
}

// Transacted reports whether the section was entered optimistically.
func (t ReadTicket) Transacted() bool { return t.transacted }

// BeginRead enters the section for a read-only operation. predicate may be
// nil, matching spec §4.4's "no predicate provided" case (find is always
// transact-eligible). It returns a ticket that the caller must pass to
// either Validate (if Transacted) or EndRead (always, for symmetry and to
// release the lock when not Transacted).
func BeginRead(s Section, predicate func(spins int) bool) ReadTicket {
	if predicate == nil || predicate(0) {
		if htm.Available() && !s.Lock.IsLocked() {
			return ReadTicket{transacted: true, snapshot: s.Seq.Snapshot()}
		}
	}
	s.Lock.Lock()
	return ReadTicket{transacted: false}
}

// Validate reports whether an optimistically-entered read remained
// consistent for its whole duration. Callers must not act on data read
// under a failed validation; they must retry the read (bounded by
// maxOptimisticAttempts) and eventually fall back to a pessimistic entry.
func Validate(s Section, t ReadTicket) bool {
	if !t.transacted {
		return true
	}
	return s.Seq.Validate(t.snapshot)
}

// EndRead exits the section entered by BeginRead, releasing the lock iff it
// was actually acquired.
func EndRead(s Section, t ReadTicket) {
	if !t.transacted {
		s.Lock.Unlock()
	}
}

// DoRead runs fn under the section as many times as needed for fn's
// optimistic reads to validate, falling back to a pessimistic entry after
// maxOptimisticAttempts failed optimistic attempts. fn must be idempotent
// and side-effect free on the map (it may only read).
func DoRead(s Section, predicate func(spins int) bool, fn func()) {
	for attempt := 0; attempt < maxOptimisticAttempts; attempt++ {
		t := BeginRead(s, predicate)
		if !t.Transacted() {
			fn()
			EndRead(s, t)
			return
		}
		fn()
		if Validate(s, t) {
			EndRead(s, t)
			return
		}
		// Seqlock detected a concurrent writer mid-read: the HTM analogue
		// of a conflict abort. Retry.
	}
	// Exhausted optimistic attempts: guarantee progress pessimistically.
	s.Lock.Lock()
	fn()
	s.Lock.Unlock()
}

// TryClaim attempts the one write path spec §4.4 allows to run without the
// lock: a single atomic claim performed by claim, which must itself be a
// single bounded-width CAS (or equivalent) and must report whether it
// landed. It returns false if claim is nil, predicate rejects, HTM looks
// unavailable, the lock is already held, or claim itself did not land —
// in every such case the caller must fall back to s.Lock.Lock() and
// perform its write under the lock instead.
func TryClaim(s Section, predicate func(spins int) bool, claim func() bool) bool {
	if claim == nil || (predicate != nil && !predicate(0)) {
		return false
	}
	if !htm.Available() || s.Lock.IsLocked() {
		return false
	}
	return claim()
}
