// Package htm implements the CPU capability probe that the transacted
// critical section (internal/txlock) consults before attempting optimistic
// entry. Detection is one-shot and memoized; a process-wide override lets
// tests and benchmarks force the pessimistic path deterministically.
package htm

import (
	"sync"
	"sync/atomic"

	"github.com/klauspost/cpuid/v2"
)

var (
	once      sync.Once
	available bool
	forcedOff atomic.Bool
)

// Available reports whether the current process should attempt optimistic
// (transactional) entry into a critical section. The probe runs at most
// once per process; the result is memoized.
func Available() bool {
	if forcedOff.Load() {
		return false
	}
	once.Do(func() {
		available = probe()
	})
	return available
}

// ForceDisable overrides Available to always report false, regardless of
// what the hardware probe found. It is process-wide, matching the spec's
// configuration contract, and exists for tests and benchmarks that need to
// exercise the pessimistic fallback path deterministically.
func ForceDisable(disabled bool) {
	forcedOff.Store(disabled)
}

// Diagnostics describes what the probe actually observed, for inclusion in
// DumpBuckets-adjacent tooling. It is never consulted by the hot path.
type Diagnostics struct {
	RTMSupported bool
	BrandName    string
}

// Diagnose returns a human-readable snapshot of the CPU features the probe
// is using. It does not perform the memoized hot-path decision and can be
// called at any time.
func Diagnose() Diagnostics {
	return Diagnostics{
		RTMSupported: cpuid.CPU.Supports(cpuid.RTM),
		BrandName:    cpuid.CPU.BrandName,
	}
}
