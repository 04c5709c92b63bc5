package pmmr

// BintreeRightmost returns the position of the rightmost leaf beneath the
// subtree rooted at pos (pos itself, if pos is already a leaf).
func BintreeRightmost(pos uint64) uint64 {
	return pos - BintreePostorderHeight(pos)
}

// BintreeLeftmost returns the position of the leftmost leaf beneath the
// subtree rooted at pos.
func BintreeLeftmost(pos uint64) uint64 {
	height := BintreePostorderHeight(pos)
	return pos + 2 - (2 << height)
}

// BintreeRange returns the half-open range [leftmost, pos+1) of every
// position in the subtree rooted at pos, including pos itself.
func BintreeRange(pos uint64) (start, end uint64) {
	height := BintreePostorderHeight(pos)
	return pos + 2 - (2 << height), pos + 1
}

// BintreeLeafPosIter returns the postorder positions of every leaf beneath
// the subtree rooted at pos, including pos itself if pos is a leaf.
func BintreeLeafPosIter(pos uint64) []uint64 {
	leafStart, ok1 := PMMRLeafToInsertionIndex(BintreeLeftmost(pos))
	leafEnd, ok2 := PMMRLeafToInsertionIndex(BintreeRightmost(pos))
	if !ok1 || !ok2 {
		return nil
	}
	positions := make([]uint64, 0, leafEnd-leafStart+1)
	for n := leafStart; n <= leafEnd; n++ {
		positions = append(positions, InsertionToPMMRIndex(n))
	}
	return positions
}
