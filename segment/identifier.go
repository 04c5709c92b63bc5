// Package segment implements the fixed-capacity slicing of a PMMR into
// independently transferable, independently verifiable chunks (§4.G):
// a segment carries the leaves and interior hashes a peer needs to
// rebuild one subtree of a fast-sync snapshot, plus a proof tying that
// subtree back to the full accumulator's root.
package segment

import (
	"github.com/mimblewimble/txhashset/pmmr"
)

// Identifier names a segment by its height (log2 of leaf capacity) and
// its zero-based index among segments of that height.
type Identifier struct {
	Height uint8
	Idx    uint64
}

// TraversalIter returns the identifiers, in order, needed to read a PMMR
// of targetSize in segments of segmentHeight — a test/tooling helper, not
// part of the consensus-critical path.
func TraversalIter(targetSize uint64, segmentHeight uint8) []Identifier {
	n := CountSegmentsRequired(targetSize, segmentHeight)
	out := make([]Identifier, n)
	for i := range out {
		out[i] = Identifier{Height: segmentHeight, Idx: uint64(i)}
	}
	return out
}

// CountSegmentsRequired returns how many segments of segmentHeight cover
// a PMMR of targetSize.
func CountSegmentsRequired(targetSize uint64, segmentHeight uint8) int {
	d := uint64(1) << segmentHeight
	leaves := pmmr.NLeaves(targetSize)
	return int((leaves + d - 1) / d)
}

// PMMRSize returns the PMMR size spanned by numSegments segments of the
// given height.
func PMMRSize(numSegments int, height uint8) uint64 {
	return pmmr.InsertionToPMMRIndex(uint64(numSegments) << height)
}

// Capacity is the maximum number of leaves a segment of this identifier
// can hold, 2^Height.
func (id Identifier) Capacity() uint64 { return uint64(1) << id.Height }

// leafOffset is the leaf index (0-based, insertion order) of the first
// leaf this segment would contain.
func (id Identifier) leafOffset() uint64 { return id.Idx * id.Capacity() }

// unprunedSize is the number of leaves actually present in this segment
// given an MMR of mmrSize — equal to Capacity except for the final,
// possibly partial, segment.
func (id Identifier) unprunedSize(mmrSize uint64) uint64 {
	total := pmmr.NLeaves(mmrSize)
	offset := id.leafOffset()
	if offset >= total {
		return 0
	}
	remaining := total - offset
	if remaining < id.Capacity() {
		return remaining
	}
	return id.Capacity()
}

// full reports whether this segment holds a full complement of leaves.
func (id Identifier) full(mmrSize uint64) bool {
	return id.unprunedSize(mmrSize) == id.Capacity()
}

// PosRange returns the inclusive range of MMR positions spanned by this
// segment, given an MMR of mmrSize.
func (id Identifier) PosRange(mmrSize uint64) (first, last uint64) {
	size := id.unprunedSize(mmrSize)
	offset := id.leafOffset()
	first = pmmr.InsertionToPMMRIndex(offset)
	if id.full(mmrSize) {
		last = pmmr.InsertionToPMMRIndex(offset+size-1) + uint64(id.Height)
	} else {
		last = mmrSize - 1
	}
	return first, last
}
