// Package xatomic provides the atomic cells the concurrent map needs,
// named and shaped the way go.uber.org/atomic names its own wrappers, each
// documenting the memory-ordering contract it was given.
package xatomic

import "go.uber.org/atomic"

// Uint64 is an acquire-load/release-store counter, used for bucket.count
// per the ordering table in spec §5.
type Uint64 struct {
	v atomic.Uint64
}

func (c *Uint64) Load() uint64        { return c.v.Load() }
func (c *Uint64) Store(v uint64)      { c.v.Store(v) }
func (c *Uint64) Add(delta uint64) uint64 {
	return c.v.Add(delta)
}
func (c *Uint64) Sub(delta uint64) uint64 {
	return c.v.Sub(delta)
}
func (c *Uint64) CompareAndSwap(old, new uint64) bool {
	return c.v.CAS(old, new)
}

// Int64 is map.size: release-store, relaxed (advisory) load per spec §5.
// Go's sync/atomic has no separate relaxed-load intrinsic, so the relaxed
// contract is documented rather than mechanically distinguished — callers
// must not treat a Size() read as establishing ordering with anything else.
type Int64 struct {
	v atomic.Int64
}

func (c *Int64) Load() int64   { return c.v.Load() }
func (c *Int64) Store(v int64) { c.v.Store(v) }
func (c *Int64) Add(delta int64) int64 {
	return c.v.Add(delta)
}

// Bool is a boolean cell for predicates read without a fence. The HTM
// force-off flag in internal/htm does not use it; it is a sync/atomic.Bool.
type Bool struct {
	v atomic.Bool
}

func (c *Bool) Load() bool    { return c.v.Load() }
func (c *Bool) Store(v bool)  { c.v.Store(v) }
func (c *Bool) Swap(v bool) bool {
	return c.v.Swap(v)
}

// Uint64Seq is a seqlock counter: even means quiescent, odd means a writer
// is in the middle of a mutation. It is the concrete mechanism that makes
// C4's optimistic entry safe in the absence of real hardware transactional
// memory (see internal/txlock).
type Uint64Seq struct {
	v atomic.Uint64
}

// Snapshot returns the current sequence value for a reader to remember
// before it starts reading bucket state optimistically.
func (s *Uint64Seq) Snapshot() uint64 {
	return s.v.Load()
}

// InProgress reports whether snap was taken mid-mutation.
func (s *Uint64Seq) InProgress(snap uint64) bool {
	return snap&1 == 1
}

// Validate reports whether the sequence counter still matches snap and is
// not mid-mutation, i.e. whether a reader's optimistic read remained
// consistent for its whole duration.
func (s *Uint64Seq) Validate(snap uint64) bool {
	return !s.InProgress(snap) && s.v.Load() == snap
}

// BeginMutation marks the start of a structural change to the bucket the
// sequence counter guards. Must be paired with EndMutation.
func (s *Uint64Seq) BeginMutation() {
	s.v.Add(1)
}

// EndMutation marks the end of a structural change.
func (s *Uint64Seq) EndMutation() {
	s.v.Add(1)
}
