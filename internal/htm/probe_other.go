//go:build !amd64

package htm

// probe reports HTM unavailable on every architecture other than amd64;
// no platform this library targets outside x86 exposes an equivalent
// restricted-transactional-memory feature through golang.org/x/sys/cpu.
func probe() bool {
	return false
}
