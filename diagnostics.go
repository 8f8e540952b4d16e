package txmap

import "github.com/halvardlabs/txmap/internal/htm"

// HTMDiagnostics describes what the hardware transactional memory probe
// actually observed on this machine.
type HTMDiagnostics = htm.Diagnostics

// Diagnose returns a snapshot of the CPU features the probe consults when
// deciding whether a Map may enter a bucket's critical section
// optimistically. It never affects the memoized decision itself.
func Diagnose() HTMDiagnostics {
	return htm.Diagnose()
}

// ForceHTMDisabled overrides every Map's optimistic-entry decision to
// always fall back to the spinlock, regardless of what the hardware probe
// found. The override is process-wide and exists for tests and benchmarks
// that need to exercise the pessimistic path deterministically; production
// code should not normally call it.
func ForceHTMDisabled(disabled bool) {
	htm.ForceDisable(disabled)
}
