package htm

import "github.com/klauspost/cpuid/v2"

// probe consults the platform's standard CPU-feature interface
// (github.com/klauspost/cpuid/v2) for Restricted Transactional Memory
// support, the x86 instantiation of hardware transactional memory this
// library can elide the spinlock with.
func probe() bool {
	return cpuid.CPU.Supports(cpuid.RTM)
}
