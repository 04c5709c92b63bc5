package pmmr

import "fmt"

// MerkleProof is an inclusion proof for a single leaf: the sibling hashes
// from the leaf up to its peak, followed by the remaining peaks needed to
// reconstruct the bagged root, in PeakPath's order: the bagged right-hand
// peaks first (when any peak lies to the right), then the left peaks in
// right-to-left order.
type MerkleProof struct {
	MMRSize uint64
	Path    []Hash
}

// MerkleProof builds an inclusion proof for the leaf at pos.
func (p *PMMR) MerkleProof(pos uint64) (MerkleProof, error) {
	size := p.UnprunedSize()
	if !IsLeaf(pos) {
		return MerkleProof{}, fmt.Errorf("pmmr: position %d is not a leaf", pos)
	}
	if _, ok := p.GetHash(pos); !ok {
		return MerkleProof{}, fmt.Errorf("pmmr: no element at position %d", pos)
	}

	branch := FamilyBranch(pos, size)
	path := make([]Hash, 0, len(branch))
	for _, pair := range branch {
		if h, ok := p.backend.GetFromFile(pair[1]); ok {
			path = append(path, h)
		}
	}

	peakPos := pos
	if len(branch) > 0 {
		peakPos = branch[len(branch)-1][0]
	}
	path = append(path, p.PeakPath(peakPos)...)

	return MerkleProof{MMRSize: size, Path: path}, nil
}

// Verify reconstructs the root implied by this proof for leafHash at pos
// and compares it to the expected root.
func (mp MerkleProof) Verify(expectedRoot Hash, leafHash Hash, pos uint64) bool {
	return mp.reconstruct(leafHash, pos) == expectedRoot
}

// reconstruct climbs from pos to the root using the proof's sibling hashes,
// mirroring FamilyBranch's own traversal so the two stay in lock step.
func (mp MerkleProof) reconstruct(leafHash Hash, pos uint64) Hash {
	current := leafHash
	cursor := pos
	size := mp.MMRSize

	peakMap, height := PeakMapHeight(cursor)
	peak := uint64(1) << height
	i := 0
	for cursor+1 < size && i < len(mp.Path) {
		sibling := mp.Path[i]
		parent := cursor + 2*peak
		if peakMap&peak != 0 {
			parent = cursor + 1
		}
		if parent >= size {
			break
		}
		cursor = parent
		if peakMap&peak != 0 {
			current = HashParent(cursor, sibling, current)
		} else {
			current = HashParent(cursor, current, sibling)
		}
		peak <<= 1
		i++
	}
	// Remaining path entries come from PeakPath: the bagged right-hand
	// side first (present only when a peak lies right of cursor), hashed
	// in on the right, then the left peaks nearest-first, each hashed in
	// on the left, reproducing Root()'s bagging.
	if pks := Peaks(size); i < len(mp.Path) && len(pks) > 0 && pks[len(pks)-1] > cursor {
		current = HashParent(size, current, mp.Path[i])
		i++
	}
	for ; i < len(mp.Path); i++ {
		current = HashParent(size, mp.Path[i], current)
	}
	return current
}
