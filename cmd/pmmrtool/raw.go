package main

import "github.com/mimblewimble/txhashset/pmmr"

// rawElement is a leaf value whose on-disk layout the tool was told about
// on the command line (--elmt-size) instead of knowing statically, since
// pmmrtool operates on whichever pmmr_*.bin directory it is pointed at
// without linking against any particular consensus element type.
type rawElement struct {
	data  []byte
	fixed bool
	size  int
}

func (r rawElement) Bytes() ([]byte, error) { return r.data, nil }

func (r rawElement) ElementSize() (int, bool) { return r.size, r.fixed }

func (r rawElement) HashWithIndex(pos uint64) pmmr.Hash {
	return pmmr.HashLeaf(pos, r.data)
}

// decodeRaw builds a Decoder bound to the fixed/size the caller resolved
// from flags, so every decoded rawElement reports the same ElementSize.
func decodeRaw(fixed bool, size int) func([]byte) (rawElement, error) {
	return func(data []byte) (rawElement, error) {
		cp := make([]byte, len(data))
		copy(cp, data)
		return rawElement{data: cp, fixed: fixed, size: size}, nil
	}
}

var _ pmmr.Element = rawElement{}
