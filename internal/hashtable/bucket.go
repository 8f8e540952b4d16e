// Copyright (c) 2025 txmap contributors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hashtable

import (
	"sync/atomic"
	"unsafe"

	"github.com/halvardlabs/txmap/internal/spinlock"
	"github.com/halvardlabs/txmap/internal/txlock"
	"github.com/halvardlabs/txmap/internal/xatomic"
	"github.com/halvardlabs/txmap/internal/xruntime"
)

// canonicalHashFallback is the fixed nonzero value a zero-valued hash gets
// remapped to, so hash==0 can mean "empty slot" unambiguously (spec §3).
const canonicalHashFallback uint64 = 0x9E3779B97F4A7C15

func canonicalize(h uint64) uint64 {
	if h == 0 {
		return canonicalHashFallback
	}
	return h
}

// entry is the immutable (key, value) pair a published slot points to.
// Once published it is never mutated, and a slot's pointer only ever moves
// between nil and a fresh entry (Insert never overwrites an existing key),
// so dereferencing a pointer read atomically out of a slot is always safe,
// with no seqlock needed for that step.
type entry[K comparable, V any] struct {
	key   K
	value V
}

// generation is one bucket's slot storage at a point in time: parallel
// hash and pointer arrays, index-aligned. Structural changes (grow, shrink)
// always build a new generation and publish it with a single atomic
// pointer store (grounded in edgflow-cmap's atomic.Value-wrapped Table and
// in the teacher's own atomic table-pointer swap); mutating a single slot's
// occupant never replaces the generation, only the two words at that index,
// each already machine-word sized and independently atomic.
type generation[K comparable, V any] struct {
	hashes []uint64
	ptrs   []unsafe.Pointer
}

func newGeneration[K comparable, V any](n int) *generation[K, V] {
	return &generation[K, V]{
		hashes: make([]uint64, n),
		ptrs:   make([]unsafe.Pointer, n),
	}
}

func (g *generation[K, V]) entryAt(i int) *entry[K, V] {
	return (*entry[K, V])(atomic.LoadPointer(&g.ptrs[i]))
}

func (g *generation[K, V]) publish(i int, h uint64, e *entry[K, V]) {
	// Publish the payload before the hash, so a reader who sees a nonzero
	// hash is guaranteed the pointer is already valid.
	atomic.StorePointer(&g.ptrs[i], unsafe.Pointer(e))
	atomic.StoreUint64(&g.hashes[i], h)
}

// tryClaim attempts the lock-free publish of a brand-new entry into an empty
// slot: the CAS on the pointer word is the claim itself, landing at most one
// writer; only the winner goes on to store the hash, mirroring publish's
// pointer-before-hash order so a reader racing the gap sees a safe miss.
func (g *generation[K, V]) tryClaim(i int, h uint64, e *entry[K, V]) bool {
	if !atomic.CompareAndSwapPointer(&g.ptrs[i], nil, unsafe.Pointer(e)) {
		return false
	}
	atomic.StoreUint64(&g.hashes[i], h)
	return true
}

func (g *generation[K, V]) unpublish(i int) {
	// Clear the payload before the hash, mirroring publish: a reader that
	// catches the gap between the two sees a nonzero hash with a nil
	// pointer and must treat that as a safe miss, never as a torn value.
	atomic.StorePointer(&g.ptrs[i], nil)
	atomic.StoreUint64(&g.hashes[i], 0)
}

// copyInto fills the first len(g.hashes) slots of ng from g one word at a
// time with atomic loads, not a bulk copy: a lock-free claim can still land
// a single-slot CAS into g concurrently with this call (holding the bucket
// lock stops new claims from starting, but not one already past its
// IsLocked check), so every word read here must be independently atomic.
func (g *generation[K, V]) copyInto(ng *generation[K, V]) {
	for i := range g.hashes {
		ng.ptrs[i] = atomic.LoadPointer(&g.ptrs[i])
		ng.hashes[i] = atomic.LoadUint64(&g.hashes[i])
	}
}

func (g *generation[K, V]) grown() *generation[K, V] {
	newCap := len(g.hashes) * 2
	if newCap == 0 {
		newCap = 1
	}
	ng := newGeneration[K, V](newCap)
	g.copyInto(ng)
	return ng
}

func (g *generation[K, V]) trimmed() *generation[K, V] {
	n := len(g.hashes)
	for n > 0 && atomic.LoadUint64(&g.hashes[n-1]) == 0 {
		n--
	}
	ng := newGeneration[K, V](n)
	(&generation[K, V]{hashes: g.hashes[:n], ptrs: g.ptrs[:n]}).copyInto(ng)
	return ng
}

// controlBlock is the part of a bucket that is hot under contention: the
// lock, the seqlock counter optimistic readers validate against, and the
// occupancy count. It is deliberately non-generic so its size is a
// compile-time constant usable for cache-line padding, regardless of what
// K and V the owning paddedBucket is instantiated with.
type controlBlock struct {
	lock  spinlock.SpinLock
	seq   xatomic.Uint64Seq
	count xatomic.Uint64
}

// cachePad is sized so a paddedBucket's hot control words and generation
// pointer do not share a cache line with the next bucket in the table,
// with generous headroom for platform alignment variance (spec §4.5, §9).
// atomic.Pointer[T] is a single machine word regardless of T, so byte is a
// valid concrete stand-in for sizing purposes.
const cachePad = 4*xruntime.CacheLineSize - int(unsafe.Sizeof(controlBlock{})) - int(unsafe.Sizeof(atomic.Pointer[byte]{}))

// paddedBucket owns a growable, linearly-probed slot array plus the
// spinlock and seqlock that make find/insert/erase on this bucket either
// wait-free (optimistic entry) or mutually exclusive (pessimistic entry),
// never both at once (spec §3 I5, §4.5).
type paddedBucket[K comparable, V any] struct {
	controlBlock

	gen atomic.Pointer[generation[K, V]]

	padding [cachePad]byte
}

func newPaddedBucket[K comparable, V any]() *paddedBucket[K, V] {
	b := &paddedBucket[K, V]{}
	b.gen.Store(newGeneration[K, V](0))
	return b
}

func (b *paddedBucket[K, V]) section() txlock.Section {
	return txlock.New(&b.lock, &b.seq)
}

func (b *paddedBucket[K, V]) isEmpty() bool {
	return b.count.Load() == 0
}

// grow doubles the bucket's slot capacity (or allocates one slot if it had
// none), publishing a new generation. Must be called with the bucket's
// lock already held (spec §4.5: growth is pessimistic) and bracketed by
// seq.BeginMutation/EndMutation so in-flight optimistic readers abort.
func (b *paddedBucket[K, V]) grow() {
	b.gen.Store(b.gen.Load().grown())
}

// shrinkTrailingEmpty trims trailing zero-hash slots, publishing a new,
// smaller generation. Must be called with the bucket's lock held.
func (b *paddedBucket[K, V]) shrinkTrailingEmpty() {
	b.gen.Store(b.gen.Load().trimmed())
}
