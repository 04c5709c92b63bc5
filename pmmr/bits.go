package pmmr

import "math/bits"

// allOnes reports whether num, in binary, is a run of one-bits with no
// zero-bit gaps (0, or 1, 3, 7, 15, ...).
func allOnes(num uint64) bool {
	return (uint64(1)<<bits.OnesCount64(num) - 1) == num
}
