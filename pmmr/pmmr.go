package pmmr

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mimblewimble/txhashset/txerr"
)

// PMMR is a prunable Merkle Mountain Range over a Backend. All positions
// start at 0, exactly as in this package's pure navigation functions.
type PMMR struct {
	// Size is the number of nodes in the PMMR, including interior nodes
	// and ignoring pruning.
	Size uint64

	backend Backend
	log     *zap.Logger
}

// New builds an empty PMMR over the given backend.
func New(backend Backend, log *zap.Logger) *PMMR {
	if log == nil {
		log = zap.NewNop()
	}
	return &PMMR{backend: backend, log: log}
}

// At builds a PMMR view pre-initialized to the given size.
func At(backend Backend, size uint64, log *zap.Logger) *PMMR {
	p := New(backend, log)
	p.Size = size
	return p
}

// Push appends a new leaf, computing and persisting any ancestor hashes it
// completes. Returns the position the leaf was stored at.
func (p *PMMR) Push(leaf Element) (uint64, error) {
	leafPos := p.Size
	current := leaf.HashWithIndex(leafPos)

	hashes := []Hash{current}
	pos := leafPos

	peakMap, height := PeakMapHeight(pos)
	if height != 0 {
		return 0, fmt.Errorf("pmmr: bad mmr size %d", pos)
	}

	peak := uint64(1)
	for peakMap&peak != 0 {
		leftSibling := pos + 1 - 2*peak
		leftHash, ok := p.backend.GetPeakFromFile(leftSibling)
		if !ok {
			return 0, fmt.Errorf("pmmr: missing left sibling at %d, should not have been pruned", leftSibling)
		}
		peak *= 2
		pos++
		current = HashParent(pos, leftHash, current)
		hashes = append(hashes, current)
	}

	if err := p.backend.Append(leaf, hashes); err != nil {
		return 0, err
	}
	p.Size = pos + 1
	p.log.Debug("pmmr push", zap.Uint64("leaf_pos", leafPos), zap.Uint64("size", p.Size))
	return leafPos, nil
}

// PushPrunedSubtree inserts the hash of a subtree root received without its
// leaves, backfilling ancestors exactly as Push would for a freshly hashed
// leaf, then rounds the size up to the next leaf boundary.
func (p *PMMR) PushPrunedSubtree(hash Hash, pos uint64) error {
	if err := p.backend.AppendPrunedSubtree(hash, pos); err != nil {
		return err
	}
	p.Size = pos + 1

	current := hash
	cursor := pos
	peakMap, _ := PeakMapHeight(cursor)

	peak := uint64(1)
	for peakMap&peak != 0 {
		parent, sibling := Family(cursor)
		peak *= 2
		if sibling > cursor {
			// right sibling: the tree is not yet complete at this
			// height, nothing further to backfill.
			continue
		}
		leftHash, ok := p.backend.GetFromFile(sibling)
		if !ok {
			return fmt.Errorf("pmmr: missing left sibling at %d, should not have been pruned", sibling)
		}
		cursor = parent
		current = HashParent(parent, leftHash, current)
		if err := p.backend.AppendHash(current); err != nil {
			return err
		}
	}
	p.Size = RoundUpToLeafPos(cursor)
	return nil
}

// ResetPruneList delegates to the backend (test backend only).
func (p *PMMR) ResetPruneList() { p.backend.ResetPruneList() }

// Remove clears the leaf-set bit for pos.
func (p *PMMR) Remove(pos uint64) error { return p.backend.Remove(pos) }

// Rewind undoes every push beyond position, re-admitting the leaves in
// rewindRmPos that the undone pushes had removed.
func (p *PMMR) Rewind(position uint64, rewindRmPos []uint64) error {
	leafPos := RoundUpToLeafPos(position)
	if err := p.backend.Rewind(leafPos, rewindRmPos); err != nil {
		return err
	}
	p.Size = leafPos
	return nil
}

// Prune removes the leaf at pos. Returns false if it was already absent,
// an error if pos is not a leaf position at all.
func (p *PMMR) Prune(pos uint64) (bool, error) {
	if !IsLeaf(pos) {
		return false, fmt.Errorf("pmmr: position %d is not a leaf, cannot prune", pos)
	}
	if _, ok := p.backend.GetHash(pos); !ok {
		return false, nil
	}
	if err := p.backend.Remove(pos); err != nil {
		return false, err
	}
	return true, nil
}

// Validate walks every unpruned interior node and recomputes its hash from
// its children, returning the first mismatch found. It is an auditing tool,
// not part of the consensus-critical hot path.
func (p *PMMR) Validate() error {
	for n := uint64(0); n < p.Size; n++ {
		height := BintreePostorderHeight(n)
		if height == 0 {
			continue
		}
		hash, ok := p.GetHash(n)
		if !ok {
			continue
		}
		leftPos := n - (uint64(1) << height)
		rightPos := n - 1
		leftHash, ok := p.backend.GetFromFile(leftPos)
		if !ok {
			continue
		}
		rightHash, ok := p.backend.GetFromFile(rightPos)
		if !ok {
			continue
		}
		if HashParent(n, leftHash, rightHash) != hash {
			return txerr.WithPos(txerr.KindCorruptedData, n, fmt.Errorf("pmmr: invalid mmr, hash of parent at %d does not match children", n))
		}
	}
	return nil
}

// DumpStats logs backend diagnostics.
func (p *PMMR) DumpStats() {
	p.log.Debug("pmmr stats", zap.Uint64("unpruned_size", p.UnprunedSize()))
	p.backend.DumpStats()
}

// UnprunedSize returns the total node count, ignoring pruning.
func (p *PMMR) UnprunedSize() uint64 { return p.backend.UnprunedSize() }

// GetHash returns the hash at pos honoring the leaf set.
func (p *PMMR) GetHash(pos uint64) (Hash, bool) { return p.backend.GetHash(pos) }

// GetData returns the leaf element at pos.
func (p *PMMR) GetData(pos uint64) (Element, bool) { return p.backend.GetData(pos) }

// GetFromFile returns the hash at pos ignoring the leaf set.
func (p *PMMR) GetFromFile(pos uint64) (Hash, bool) { return p.backend.GetFromFile(pos) }

// IsEmpty reports whether the PMMR has no nodes at all.
func (p *PMMR) IsEmpty() bool { return p.UnprunedSize() == 0 }

// BagTheRHS hashes together every peak strictly to the right of peakPos, in
// right-to-left order, returning ok=false if there is no such peak (meaning
// peakPos's sibling in the peak path is whatever lies to its left instead).
func (p *PMMR) BagTheRHS(peakPos uint64) (Hash, bool) {
	size := p.UnprunedSize()
	var res Hash
	have := false
	all := Peaks(size)
	for i := len(all) - 1; i >= 0; i-- {
		x := all[i]
		if x <= peakPos {
			continue
		}
		h, ok := p.backend.GetFromFile(x)
		if !ok {
			continue
		}
		if !have {
			res, have = h, true
		} else {
			res = HashParent(size, h, res)
		}
	}
	return res, have
}

// PeakHashes returns the hash of every peak of the current MMR, left to
// right.
func (p *PMMR) PeakHashes() []Hash {
	positions := Peaks(p.UnprunedSize())
	hashes := make([]Hash, 0, len(positions))
	for _, pos := range positions {
		if h, ok := p.backend.GetPeakFromFile(pos); ok {
			hashes = append(hashes, h)
		}
	}
	return hashes
}

// PeakPath returns the hashes needed to complete a Merkle proof from
// peakPos to the root: the peaks to its left (in right-to-left order) with
// the bagged right-hand-side peak hash (if any) appended before reversal.
func (p *PMMR) PeakPath(peakPos uint64) []Hash {
	rhs, haveRHS := p.BagTheRHS(peakPos)
	var left []Hash
	for _, x := range Peaks(p.UnprunedSize()) {
		if x >= peakPos {
			continue
		}
		if h, ok := p.backend.GetPeakFromFile(x); ok {
			left = append(left, h)
		}
	}
	if haveRHS {
		left = append(left, rhs)
	}
	for i, j := 0, len(left)-1; i < j; i, j = i+1, j-1 {
		left[i], left[j] = left[j], left[i]
	}
	return left
}

// Root computes the hash of the current MMR by bagging its peaks
// right-to-left. Returns the all-zero hash for an empty MMR.
func (p *PMMR) Root() Hash {
	peaks := p.PeakHashes()
	if len(peaks) == 0 {
		return ZeroHash
	}
	size := p.UnprunedSize()
	res := peaks[len(peaks)-1]
	for i := len(peaks) - 2; i >= 0; i-- {
		res = HashParent(size, peaks[i], res)
	}
	return res
}
