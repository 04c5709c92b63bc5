package pmmr

// Family returns the parent and sibling positions of pos.
func Family(pos uint64) (parent, sibling uint64) {
	peakMap, height := PeakMapHeight(pos)
	peak := uint64(1) << height
	if peakMap&peak != 0 {
		// pos is a right child: its parent follows immediately, its
		// sibling is the peak to the left.
		return pos + 1, pos + 1 - 2*peak
	}
	// pos is a left child: its sibling (and then its parent) lie beyond
	// the entire right subtree rooted at its level.
	return pos + 2*peak, pos + 2*peak - 1
}

// IsLeftSibling reports whether pos is the left child of its parent.
func IsLeftSibling(pos uint64) bool {
	peakMap, height := PeakMapHeight(pos)
	peak := uint64(1) << height
	return peakMap&peak == 0
}

// FamilyBranch returns the (parent, sibling) pairs encountered walking from
// pos up to its peak, in an MMR of the given size. The last entry's parent
// is the peak position itself.
func FamilyBranch(pos uint64, size uint64) [][2]uint64 {
	peakMap, height := PeakMapHeight(pos)
	peak := uint64(1) << height
	var branch [][2]uint64
	current := pos
	for current+1 < size {
		var sibling uint64
		if peakMap&peak != 0 {
			current++
			sibling = current - 2*peak
		} else {
			current += 2 * peak
			sibling = current - 1
		}
		if current >= size {
			break
		}
		branch = append(branch, [2]uint64{current, sibling})
		peak <<= 1
	}
	return branch
}
