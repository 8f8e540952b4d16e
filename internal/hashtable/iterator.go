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

import "sync/atomic"

// Iterator identifies a specific occupied slot, or the end sentinel, as a
// (bucket index, slot offset) pair plus the owning map handle, per spec §9's
// explicit preference for that shape over a raw back-pointer. Iterators are
// weak references: advisory under concurrent mutation, stable only while
// the map is externally quiesced (spec §3, §4.6).
type Iterator[K comparable, V any] struct {
	m      *Map[K, V]
	bucket int
	offset int
	end    bool
}

// IsEnd reports whether it is the end sentinel.
func (it Iterator[K, V]) IsEnd() bool {
	return it.end || it.m == nil
}

// Get dereferences it, returning its key and value. ok is false if it is
// the end sentinel or its slot is now empty or gone. Get does not check
// identity: if the slot has been reused by another entry since it was
// produced, Get returns that entry with ok true.
func (it Iterator[K, V]) Get() (key K, value V, ok bool) {
	if it.IsEnd() {
		return key, value, false
	}
	tbl := it.m.table.Load()
	if it.bucket < 0 || it.bucket >= len(tbl.buckets) {
		return key, value, false
	}
	b := tbl.buckets[it.bucket]
	g := b.gen.Load()
	if it.offset < 0 || it.offset >= len(g.hashes) {
		return key, value, false
	}
	e := g.entryAt(it.offset)
	if e == nil {
		return key, value, false
	}
	return e.key, e.value, true
}

// Next advances it to the next occupied slot, scanning forward under each
// visited bucket's lock. It visits every occupied slot exactly once under
// quiescence (spec §9's open question, resolved in favor of complete
// forward traversal). Iteration is not a hot path, so it always enters
// pessimistically rather than racing optimistic readers for no benefit.
func (it Iterator[K, V]) Next() (Iterator[K, V], bool) {
	if it.IsEnd() {
		return it, false
	}
	m := it.m
	tbl := m.table.Load()
	bucket := it.bucket
	offset := it.offset + 1
	for bucket < len(tbl.buckets) {
		b := tbl.buckets[bucket]
		b.lock.Lock()
		g := b.gen.Load()
		for offset < len(g.hashes) {
			if hashAt(g, offset) != 0 {
				next := Iterator[K, V]{m: m, bucket: bucket, offset: offset}
				b.lock.Unlock()
				return next, true
			}
			offset++
		}
		b.lock.Unlock()
		bucket++
		offset = 0
	}
	return m.End(), false
}

func hashAt[K comparable, V any](g *generation[K, V], i int) uint64 {
	return atomic.LoadUint64(&g.hashes[i])
}
