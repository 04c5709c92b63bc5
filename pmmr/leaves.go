package pmmr

import "math/bits"

// InsertionToPMMRIndex returns the postorder position of the leaf whose
// zero-based leaf index (insertion order, ignoring interior nodes) is
// leafIndex.
//
//	insertion_to_pmmr_index(i) = 2i - popcount(i)
func InsertionToPMMRIndex(leafIndex uint64) uint64 {
	return 2*leafIndex - uint64(bits.OnesCount64(leafIndex))
}

// PMMRLeafToInsertionIndex returns the leaf index of the leaf at pos, or
// false if pos is not a leaf position.
func PMMRLeafToInsertionIndex(pos uint64) (uint64, bool) {
	insertIdx, height := PeakMapHeight(pos)
	if height != 0 {
		return 0, false
	}
	return insertIdx, true
}

// RoundUpToLeafPos returns the smallest leaf position that is >= pos.
//
//	RoundUpToLeafPos(9)  == 10
//	RoundUpToLeafPos(10) == 10
//	RoundUpToLeafPos(11) == 11
//	RoundUpToLeafPos(12) == 15 (12 is not a leaf; the next leaf is 15)
func RoundUpToLeafPos(pos uint64) uint64 {
	insertIdx, height := PeakMapHeight(pos)
	leafIdx := insertIdx
	if height != 0 {
		leafIdx = insertIdx + 1
	}
	return InsertionToPMMRIndex(leafIdx)
}
