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

// Package hashtable implements the concurrent map itself: a fixed-width
// table of independently-locked, independently-growable buckets, each
// entered through the transacted critical section in internal/txlock.
// Resizing the table as a whole is out of scope; a bucket that fills up
// grows its own slot array instead (spec §4.5, §4.6).
package hashtable

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/halvardlabs/txmap/internal/txlock"
	"github.com/halvardlabs/txmap/internal/xatomic"
)

// snapshot is the table a Map currently points to: one atomic pointer swap
// away from a freshly Reserve'd replacement. It never changes shape once
// published; only the buckets it holds mutate internally.
type snapshot[K comparable, V any] struct {
	buckets []*paddedBucket[K, V]
}

func newSnapshot[K comparable, V any](n int) *snapshot[K, V] {
	s := &snapshot[K, V]{buckets: make([]*paddedBucket[K, V], n)}
	for i := range s.buckets {
		s.buckets[i] = newPaddedBucket[K, V]()
	}
	return s
}

func (s *snapshot[K, V]) bucketIndexFor(hash uint64) int {
	return int(hash % uint64(len(s.buckets)))
}

// Map is a wait-free-for-readers, mostly-wait-free-for-writers concurrent
// hash map over a fixed number of buckets (spec §3, §4.5, §4.6).
type Map[K comparable, V any] struct {
	table      atomic.Pointer[snapshot[K, V]]
	size       xatomic.Int64
	hasher     func(K) uint64
	equal      func(K, K) bool
	scanParity xatomic.Uint64
}

// New builds a Map configured by opts, defaulting to DefaultBucketCount
// buckets and a maphash-based hasher (spec §6).
func New[K comparable, V any](opts ...Option[K, V]) *Map[K, V] {
	o := defaultOptions[K, V]()
	for _, opt := range opts {
		opt(o)
	}
	m := &Map[K, V]{hasher: o.hasher, equal: o.equal}
	m.table.Store(newSnapshot[K, V](o.bucketCount))
	return m
}

// NewWithBuckets is New with its bucket count fixed explicitly, for callers
// who want to name it at the call site rather than via WithBucketCount.
func NewWithBuckets[K comparable, V any](n int, opts ...Option[K, V]) *Map[K, V] {
	return New(append(append([]Option[K, V]{}, opts...), WithBucketCount[K, V](n))...)
}

// Size returns the number of (key, value) pairs currently held. The read is
// relaxed (spec §5): it may be stale with respect to concurrent writers.
func (m *Map[K, V]) Size() int {
	return int(m.size.Load())
}

// Empty reports whether Size is zero.
func (m *Map[K, V]) Empty() bool {
	return m.Size() == 0
}

func (m *Map[K, V]) scanDirection() bool {
	return m.scanParity.Add(1)&1 == 1
}

// scanBucket looks for key in g, returning the index of its slot if present
// and the index of the first vacant slot seen, in the direction requested.
// A slot is "vacant" by its pointer word being nil, which is also the exact
// word tryClaim performs its CAS against; the hash word is only a cheap
// pre-filter for the occupied case. Each read is an independently atomic
// word, so a scan that straddles a concurrent writer sees at worst a stale
// view, not a torn one; callers relying on its result for correctness
// validate the enclosing section afterward or detect the race via the CAS
// itself.
func scanBucket[K comparable, V any](g *generation[K, V], hash uint64, key K, equal func(K, K) bool, reverse bool) (found, vacant int) {
	found, vacant = -1, -1
	n := len(g.hashes)
	for i := 0; i < n; i++ {
		idx := i
		if reverse {
			idx = n - 1 - i
		}
		if h := atomic.LoadUint64(&g.hashes[idx]); h != 0 && h == hash {
			if e := g.entryAt(idx); e != nil && equal(e.key, key) {
				found = idx
				return
			}
		}
		if vacant == -1 && atomic.LoadPointer(&g.ptrs[idx]) == nil {
			vacant = idx
		}
	}
	return
}

// Find looks up key, entering its bucket's section optimistically whenever
// HTM looks available and the bucket is not locked (spec §4.6, P1/P2). It
// returns an iterator over the matching slot rather than the value itself,
// matching spec.md §6's find(k) -> iterator contract; dereference it with
// Get, or pass it straight to Erase.
func (m *Map[K, V]) Find(key K) (Iterator[K, V], bool) {
	hash := canonicalize(m.hasher(key))
	tbl := m.table.Load()
	bucket := tbl.bucketIndexFor(hash)
	b := tbl.buckets[bucket]
	sec := b.section()
	reverse := m.scanDirection()
	idx := -1
	txlock.DoRead(sec, nil, func() {
		g := b.gen.Load()
		idx, _ = scanBucket(g, hash, key, m.equal, reverse)
	})
	if idx < 0 {
		return m.End(), false
	}
	return Iterator[K, V]{m: m, bucket: bucket, offset: idx}, true
}

// End returns the end-of-sequence iterator sentinel.
func (m *Map[K, V]) End() Iterator[K, V] {
	return Iterator[K, V]{end: true}
}

// Begin returns an iterator over the first occupied slot, or End if the map
// holds nothing (spec §4.6). Like Next, it walks pessimistically: iteration
// is not the hot path this map is built for.
func (m *Map[K, V]) Begin() Iterator[K, V] {
	end := m.End()
	next, ok := Iterator[K, V]{m: m, bucket: 0, offset: -1}.Next()
	if !ok {
		return end
	}
	return next
}

// Insert places (key, value) if key is not already present, matching
// unordered_map::insert's refuse-to-overwrite semantics (spec §9, grounded
// in original_source/unittests.cpp). It returns an iterator over the slot
// now holding key — either the one just inserted or the one already
// there — and whether the insertion actually happened, matching spec.md
// §6's insert(value) -> (iterator, inserted) contract.
func (m *Map[K, V]) Insert(key K, value V) (Iterator[K, V], bool) {
	hash := canonicalize(m.hasher(key))
	for {
		tbl := m.table.Load()
		bucket := tbl.bucketIndexFor(hash)
		b := tbl.buckets[bucket]
		sec := b.section()
		reverse := (hash/uint64(len(tbl.buckets)))&1 == 1

		existingIdx := -1
		claimedIdx := -1
		claimed := txlock.TryClaim(sec, nil, func() bool {
			g := b.gen.Load()
			idx, vacant := scanBucket(g, hash, key, m.equal, reverse)
			if idx >= 0 {
				existingIdx = idx
				return true
			}
			if vacant < 0 {
				return false
			}
			e := &entry[K, V]{key: key, value: value}
			if !g.tryClaim(vacant, hash, e) {
				return false
			}
			// Bump the count immediately after the CAS lands, inside the
			// same closure, to keep the window in which a concurrent Clear
			// could adopt a fresh generation without seeing this claim as
			// narrow as this protocol allows.
			b.count.Add(1)
			claimedIdx = vacant
			return true
		})
		if claimed {
			if existingIdx >= 0 {
				return Iterator[K, V]{m: m, bucket: bucket, offset: existingIdx}, false
			}
			m.size.Add(1)
			return Iterator[K, V]{m: m, bucket: bucket, offset: claimedIdx}, true
		}

		if it, inserted, done := m.insertLocked(bucket, b, hash, key, value, reverse); done {
			return it, inserted
		}
	}
}

// insertLocked performs the pessimistic half of Insert: it reloads the
// bucket's generation fresh under the lock (any value scanned before
// acquiring it may be stale), grows the bucket if it is full, and publishes
// the new entry with the seqlock bracketing any concurrent optimistic
// reader needs to detect the mutation and retry. done is false only if the
// caller should loop and retry from the top (spec §4.5 point 3: the
// pessimistic path always completes, so in practice this always returns
// true, but the signature stays honest about the contract).
func (m *Map[K, V]) insertLocked(bucket int, b *paddedBucket[K, V], hash uint64, key K, value V, reverse bool) (it Iterator[K, V], inserted bool, done bool) {
	b.lock.Lock()
	defer b.lock.Unlock()

	g := b.gen.Load()
	idx, vacant := scanBucket(g, hash, key, m.equal, reverse)
	if idx >= 0 {
		return Iterator[K, V]{m: m, bucket: bucket, offset: idx}, false, true
	}
	if vacant < 0 {
		b.seq.BeginMutation()
		b.grow()
		b.seq.EndMutation()
		g = b.gen.Load()
		_, vacant = scanBucket(g, hash, key, m.equal, reverse)
	}

	e := &entry[K, V]{key: key, value: value}
	b.seq.BeginMutation()
	g.publish(vacant, hash, e)
	b.count.Add(1)
	b.seq.EndMutation()

	m.size.Add(1)
	return Iterator[K, V]{m: m, bucket: bucket, offset: vacant}, true, true
}

// Erase removes the slot it identifies, entering through the section
// pessimistically (spec §4.6: erase always takes the lock; nothing
// short-circuits it lock-free, since a single-slot CAS cannot by itself
// keep bucket.count and the trailing-slot shrink invariant consistent). It
// resolves it via its (bucket, offset) pair, the same pair iterator.go's
// Get dereferences, and re-checks the slot is still occupied before
// touching it — an iterator erased twice, whose slot has stayed empty or
// been trimmed away, reports false (spec.md §7's iterator-end-erase row).
// The check is on occupancy only: the iterator carries no key, so if its
// slot has since been reused by another entry, Erase removes that entry.
// It returns whether the slot was occupied.
func (m *Map[K, V]) Erase(it Iterator[K, V]) bool {
	if it.IsEnd() {
		return false
	}
	tbl := m.table.Load()
	if it.bucket < 0 || it.bucket >= len(tbl.buckets) {
		return false
	}
	b := tbl.buckets[it.bucket]

	b.lock.Lock()
	defer b.lock.Unlock()

	g := b.gen.Load()
	if it.offset < 0 || it.offset >= len(g.hashes) {
		return false
	}
	if atomic.LoadUint64(&g.hashes[it.offset]) == 0 || g.entryAt(it.offset) == nil {
		return false
	}

	b.seq.BeginMutation()
	g.unpublish(it.offset)
	b.count.Sub(1)
	if b.isEmpty() {
		b.shrinkTrailingEmpty()
	}
	b.seq.EndMutation()

	m.size.Add(-1)
	return true
}

// Clear removes every entry, locking each bucket in turn rather than the
// whole table at once, so a concurrent Find on a bucket Clear has not yet
// reached still proceeds normally (spec §4.6).
func (m *Map[K, V]) Clear() {
	tbl := m.table.Load()
	for _, b := range tbl.buckets {
		b.lock.Lock()
		b.seq.BeginMutation()
		n := len(b.gen.Load().hashes)
		b.gen.Store(newGeneration[K, V](n))
		b.count.Store(0)
		b.seq.EndMutation()
		b.lock.Unlock()
	}
	m.size.Store(0)
}

// Reserve fixes the bucket count to n, replacing the table wholesale. It
// fails with ErrReserveOnNonEmpty unless the map is currently empty,
// mirroring concurrent_unordered_map::reserve's refusal to reshuffle live
// data (spec §7, grounded in original_source/unittests.cpp).
func (m *Map[K, V]) Reserve(n int) error {
	if !m.Empty() {
		return ErrReserveOnNonEmpty
	}
	if n <= 0 {
		n = DefaultBucketCount
	}
	m.table.Store(newSnapshot[K, V](n))
	return nil
}

// DumpBuckets writes one line per bucket, in bucket order, to w: its index,
// its slot-array length, and its live occupant count, matching spec.md
// §6's dump_buckets(output_sink) and original_source/unittests.cpp's
// size=/count= diagnostic dump. It returns the first write error
// encountered, so a full disk is reported rather than silently dropped.
func (m *Map[K, V]) DumpBuckets(w io.Writer) error {
	tbl := m.table.Load()
	for i, b := range tbl.buckets {
		g := b.gen.Load()
		_, err := fmt.Fprintf(w, "bucket=%d slots=%d live=%d\n", i, len(g.hashes), int(b.count.Load()))
		if err != nil {
			return err
		}
	}
	return nil
}
