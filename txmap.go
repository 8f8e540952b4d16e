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

// Package txmap provides a concurrent hash map whose readers and, in the
// common case, its writers never block on a mutex: every bucket is entered
// through a transacted critical section that attempts a lock-free path
// first and falls back to an exclusive spinlock only when that path cannot
// safely complete.
package txmap

import (
	"io"

	"github.com/halvardlabs/txmap/internal/hashtable"
)

// Map is a fixed-bucket-count concurrent hash map. The zero value is not
// usable; construct one with New or NewWithBuckets.
type Map[K comparable, V any] struct {
	m *hashtable.Map[K, V]
}

// New builds a Map configured by opts.
func New[K comparable, V any](opts ...hashtable.Option[K, V]) *Map[K, V] {
	return &Map[K, V]{m: hashtable.New(opts...)}
}

// NewWithBuckets builds a Map with n buckets, overriding any WithBucketCount
// passed in opts.
func NewWithBuckets[K comparable, V any](n int, opts ...hashtable.Option[K, V]) *Map[K, V] {
	return &Map[K, V]{m: hashtable.NewWithBuckets(n, opts...)}
}

// Size returns the number of entries currently stored. Under concurrent
// writers, the result is advisory: it may already be stale by the time the
// caller observes it.
func (tm *Map[K, V]) Size() int {
	return tm.m.Size()
}

// Empty reports whether Size is zero.
func (tm *Map[K, V]) Empty() bool {
	return tm.m.Empty()
}

// Find looks up key, returning an iterator over its slot and true if
// present. Dereference the iterator with Get, or pass it to Erase.
func (tm *Map[K, V]) Find(key K) (Iterator[K, V], bool) {
	it, ok := tm.m.Find(key)
	return Iterator[K, V]{it: it}, ok
}

// Insert places (key, value) if key is not already present. It returns an
// iterator over the slot now holding key — either the one just inserted or
// the one already there — and whether this call is the one that stored it;
// an existing entry is never overwritten.
func (tm *Map[K, V]) Insert(key K, value V) (Iterator[K, V], bool) {
	it, inserted := tm.m.Insert(key, value)
	return Iterator[K, V]{it: it}, inserted
}

// Erase removes the slot it identifies, reporting whether it was still
// present. Composing Find directly into Erase — m.Erase(it) after
// it, _ := m.Find(k) — implements the find/erase round trip.
func (tm *Map[K, V]) Erase(it Iterator[K, V]) bool {
	return tm.m.Erase(it.it)
}

// Clear removes every entry.
func (tm *Map[K, V]) Clear() {
	tm.m.Clear()
}

// Reserve fixes the bucket count to n. It fails with ErrReserveOnNonEmpty
// unless the map is currently empty.
func (tm *Map[K, V]) Reserve(n int) error {
	return tm.m.Reserve(n)
}

// DumpBuckets writes one line per bucket, in bucket order, to w: its
// index, its slot-array length, and its live occupant count.
func (tm *Map[K, V]) DumpBuckets(w io.Writer) error {
	return tm.m.DumpBuckets(w)
}

// Begin returns an iterator positioned at the first occupied slot, or End
// if the map holds nothing. Iteration is only meaningful while the map is
// quiescent with respect to other goroutines; it is not the operation this
// map is optimized for.
func (tm *Map[K, V]) Begin() Iterator[K, V] {
	return Iterator[K, V]{it: tm.m.Begin()}
}

// End returns the end-of-sequence sentinel.
func (tm *Map[K, V]) End() Iterator[K, V] {
	return Iterator[K, V]{it: tm.m.End()}
}

// Iterator identifies a specific occupied slot, or the end sentinel.
type Iterator[K comparable, V any] struct {
	it hashtable.Iterator[K, V]
}

// IsEnd reports whether it is the end sentinel.
func (it Iterator[K, V]) IsEnd() bool {
	return it.it.IsEnd()
}

// Get dereferences it. ok is false if it is the end sentinel or its slot is
// now empty; a slot since reused by another entry yields that entry.
func (it Iterator[K, V]) Get() (key K, value V, ok bool) {
	return it.it.Get()
}

// Next advances it, returning the new iterator and whether it is not End.
func (it Iterator[K, V]) Next() (Iterator[K, V], bool) {
	next, ok := it.it.Next()
	return Iterator[K, V]{it: next}, ok
}
