package txmap

import "github.com/halvardlabs/txmap/internal/hashtable"

// DefaultBucketCount is the bucket count a Map is given when the caller
// does not ask for a specific one.
const DefaultBucketCount = hashtable.DefaultBucketCount

// WithBucketCount fixes the number of buckets a Map is constructed with. It
// cannot be changed later except by Reserve on an empty Map.
func WithBucketCount[K comparable, V any](n int) hashtable.Option[K, V] {
	return hashtable.WithBucketCount[K, V](n)
}

// WithHasher overrides the default hasher, e.g. with NewXXH3Hasher for a
// deterministic, non-randomized hash.
func WithHasher[K comparable, V any](hasher func(K) uint64) hashtable.Option[K, V] {
	return hashtable.WithHasher[K, V](hasher)
}

// WithEqual overrides the default (==) equality predicate, for keys whose
// natural equality is not what callers want compared.
func WithEqual[K comparable, V any](equal func(K, K) bool) hashtable.Option[K, V] {
	return hashtable.WithEqual[K, V](equal)
}
