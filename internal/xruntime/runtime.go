package xruntime

const (
	// CacheLineSize is useful for preventing false sharing.
	CacheLineSize = 64
)
