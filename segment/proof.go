package segment

import (
	"github.com/mimblewimble/txhashset/pmmr"
	"github.com/mimblewimble/txhashset/txerr"
)

// Proof is a segment's Merkle proof: the sibling hashes along the path
// from the segment's subtree root up to the peak it belongs to, followed
// by the bagged peaks to its right and then the individual peaks to its
// left — exactly enough to reconstruct the full accumulator root.
type Proof struct {
	Hashes []pmmr.Hash
}

// Size returns the number of hashes carried by the proof.
func (p Proof) Size() int { return len(p.Hashes) }

// generateProof builds the proof for the subtree rooted just below
// segmentLastPos, in an MMR of mmrSize positions. When hasStartPos is
// set, only the portion of the family branch at or above startPos is
// included — used for a fully-pruned segment whose only payload is a
// single ancestor hash.
func generateProof(reader Reader, mmrSize, segmentFirstPos, segmentLastPos uint64, startPos uint64, hasStartPos bool) (Proof, error) {
	branch := pmmr.FamilyBranch(segmentLastPos, mmrSize)

	var proof Proof
	for _, pair := range branch {
		parent, sibling := pair[0], pair[1]
		if hasStartPos && parent < startPos {
			continue
		}
		h, ok := reader.GetFromFile(sibling)
		if !ok {
			return Proof{}, txerr.WithPos(txerr.KindMissingHash, sibling, nil)
		}
		proof.Hashes = append(proof.Hashes, h)
	}

	peakPos := segmentLastPos
	if len(branch) > 0 {
		peakPos = branch[len(branch)-1][0]
	}
	if h, ok := reader.BagTheRHS(peakPos); ok {
		proof.Hashes = append(proof.Hashes, h)
	}

	peaks := pmmr.Peaks(mmrSize)
	for i := len(peaks) - 1; i >= 0; i-- {
		pos := peaks[i]
		if pos >= segmentFirstPos {
			continue
		}
		h, ok := reader.GetFromFile(pos)
		if !ok {
			return Proof{}, txerr.WithPos(txerr.KindMissingHash, pos, nil)
		}
		proof.Hashes = append(proof.Hashes, h)
	}

	return proof, nil
}

// ReconstructRoot replays the proof against segmentRoot (the hash of the
// segment's own subtree, at segmentUnprunedPos — one past the highest
// position the segment itself could supply) to arrive at the full
// accumulator root for an MMR of mmrSize positions.
func (p Proof) ReconstructRoot(mmrSize, segmentFirstPos, segmentLastPos uint64, segmentRoot pmmr.Hash, segmentUnprunedPos uint64) (pmmr.Hash, error) {
	i := 0
	next := func(pos uint64) (pmmr.Hash, error) {
		if i >= len(p.Hashes) {
			return pmmr.Hash{}, txerr.WithPos(txerr.KindMissingHash, pos, nil)
		}
		h := p.Hashes[i]
		i++
		return h, nil
	}

	branch := pmmr.FamilyBranch(segmentLastPos, mmrSize)
	root := segmentRoot
	var peakPos uint64 = segmentLastPos
	for _, pair := range branch {
		parent, sibling := pair[0], pair[1]
		if parent < segmentUnprunedPos {
			continue
		}
		siblingHash, err := next(sibling)
		if err != nil {
			return pmmr.Hash{}, err
		}
		if pmmr.IsLeftSibling(sibling) {
			root = pmmr.HashParent(parent, siblingHash, root)
		} else {
			root = pmmr.HashParent(parent, root, siblingHash)
		}
		peakPos = parent
	}

	peaks := pmmr.Peaks(mmrSize)
	var rhsPos uint64
	hasRHS := false
	for _, pos := range peaks {
		if pos > peakPos {
			rhsPos = pos
			hasRHS = true
			break
		}
	}
	if hasRHS {
		h, err := next(rhsPos)
		if err != nil {
			return pmmr.Hash{}, err
		}
		root = pmmr.HashParent(mmrSize, root, h)
	}

	for j := len(peaks) - 1; j >= 0; j-- {
		pos := peaks[j]
		if pos >= segmentFirstPos {
			continue
		}
		h, err := next(pos)
		if err != nil {
			return pmmr.Hash{}, err
		}
		root = pmmr.HashParent(mmrSize, h, root)
	}

	return root, nil
}

// Validate checks that replaying the proof against segmentRoot arrives
// at mmrRoot.
func (p Proof) Validate(mmrSize uint64, mmrRoot pmmr.Hash, segmentFirstPos, segmentLastPos uint64, segmentRoot pmmr.Hash, segmentUnprunedPos uint64) error {
	root, err := p.ReconstructRoot(mmrSize, segmentFirstPos, segmentLastPos, segmentRoot, segmentUnprunedPos)
	if err != nil {
		return err
	}
	if root != mmrRoot {
		return txerr.New(txerr.KindMismatch, nil)
	}
	return nil
}

// ValidateWith is Validate for a proof whose reconstructed root must
// first be combined with otherRoot at hashLastPos before it can equal
// mmrRoot — used when two parallel accumulators (e.g. the UTXO PMMR and
// its paired bitmap accumulator) are bagged together at the top.
func (p Proof) ValidateWith(mmrSize uint64, mmrRoot pmmr.Hash, segmentFirstPos, segmentLastPos uint64, segmentRoot pmmr.Hash, segmentUnprunedPos uint64, hashLastPos uint64, otherRoot pmmr.Hash, otherIsLeft bool) error {
	root, err := p.ReconstructRoot(mmrSize, segmentFirstPos, segmentLastPos, segmentRoot, segmentUnprunedPos)
	if err != nil {
		return err
	}
	if otherIsLeft {
		root = pmmr.HashParent(hashLastPos, otherRoot, root)
	} else {
		root = pmmr.HashParent(hashLastPos, root, otherRoot)
	}
	if root != mmrRoot {
		return txerr.New(txerr.KindMismatch, nil)
	}
	return nil
}
