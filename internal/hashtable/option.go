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
	"github.com/dolthub/maphash"
)

// DefaultBucketCount is the bucket count a Map is given when the caller
// does not ask for a specific one (spec §6).
const DefaultBucketCount = 13

// Option configures a Map at construction time.
type Option[K comparable, V any] func(*options[K, V])

type options[K comparable, V any] struct {
	bucketCount int
	hasher      func(K) uint64
	equal       func(K, K) bool
}

func defaultOptions[K comparable, V any]() *options[K, V] {
	hasher := maphash.NewHasher[K]()
	return &options[K, V]{
		bucketCount: DefaultBucketCount,
		hasher:      hasher.Hash,
		equal: func(a, b K) bool {
			return a == b
		},
	}
}

// WithBucketCount fixes the number of buckets the Map is constructed with.
// It cannot be changed later except by Reserve on an empty Map.
func WithBucketCount[K comparable, V any](n int) Option[K, V] {
	return func(o *options[K, V]) {
		if n > 0 {
			o.bucketCount = n
		}
	}
}

// WithHasher overrides the default maphash-based hasher, e.g. with
// xxh3.HashString for deterministic, non-randomized hashing.
func WithHasher[K comparable, V any](hasher func(K) uint64) Option[K, V] {
	return func(o *options[K, V]) {
		o.hasher = hasher
	}
}

// WithEqual overrides the default (==) equality predicate, for keys whose
// natural equality is not what callers want compared.
func WithEqual[K comparable, V any](equal func(K, K) bool) Option[K, V] {
	return func(o *options[K, V]) {
		o.equal = equal
	}
}
