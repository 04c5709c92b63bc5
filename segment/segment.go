package segment

import (
	"sort"

	"github.com/mimblewimble/txhashset/pmmr"
	"github.com/mimblewimble/txhashset/txerr"
)

// Reader is the read-only slice of pmmr.Backend a segment extraction
// needs: random-access hashes and leaf data plus the peak-bagging helper
// used to fold in everything to the right of a subtree.
type Reader interface {
	GetFromFile(pos uint64) (pmmr.Hash, bool)
	GetData(pos uint64) (pmmr.Element, bool)
	BagTheRHS(peakPos uint64) (pmmr.Hash, bool)
}

// Segment is an independently verifiable slice of a PMMR: the leaves and
// interior hashes covering one subtree (or, for a partial final segment,
// one run of peaks), plus the Proof tying it back to the full root.
type Segment[T pmmr.Element] struct {
	ID Identifier

	HashPos []uint64
	Hashes  []pmmr.Hash

	LeafPos  []uint64
	LeafData []T

	Proof Proof
}

// Parts returns the segment's fields, mirroring the donor's consuming
// accessor for callers that want to move ownership into a wire encoder.
func (s Segment[T]) Parts() (Identifier, []uint64, []pmmr.Hash, []uint64, []T, Proof) {
	return s.ID, s.HashPos, s.Hashes, s.LeafPos, s.LeafData, s.Proof
}

// FromParts rebuilds a Segment from previously decoded fields, checking
// that both position lists are strictly ascending.
func FromParts[T pmmr.Element](id Identifier, hashPos []uint64, hashes []pmmr.Hash, leafPos []uint64, leafData []T, proof Proof) (Segment[T], error) {
	if err := requireAscending(hashPos); err != nil {
		return Segment[T]{}, err
	}
	if err := requireAscending(leafPos); err != nil {
		return Segment[T]{}, err
	}
	if len(hashPos) != len(hashes) || len(leafPos) != len(leafData) {
		return Segment[T]{}, txerr.New(txerr.KindCorruptedData, nil)
	}
	return Segment[T]{ID: id, HashPos: hashPos, Hashes: hashes, LeafPos: leafPos, LeafData: leafData, Proof: proof}, nil
}

func requireAscending(pos []uint64) error {
	for i := 1; i < len(pos); i++ {
		if pos[i] <= pos[i-1] {
			return txerr.New(txerr.KindCorruptedData, nil)
		}
	}
	return nil
}

func (s Segment[T]) segmentUnprunedSize(mmrSize uint64) uint64 { return s.ID.unprunedSize(mmrSize) }
func (s Segment[T]) fullSegment(mmrSize uint64) bool           { return s.ID.full(mmrSize) }

// PosRange returns the inclusive MMR position range spanned by s.
func (s Segment[T]) PosRange(mmrSize uint64) (first, last uint64) { return s.ID.PosRange(mmrSize) }

// getHash looks up a hash carried within the segment by position.
func (s Segment[T]) getHash(pos uint64) (pmmr.Hash, error) {
	i := sort.Search(len(s.HashPos), func(i int) bool { return s.HashPos[i] >= pos })
	if i < len(s.HashPos) && s.HashPos[i] == pos {
		return s.Hashes[i], nil
	}
	return pmmr.Hash{}, txerr.WithPos(txerr.KindMissingHash, pos, nil)
}

// FromPMMR extracts the segment identified by id from reader, an MMR of
// mmrSize positions. If prunable is false every leaf in range must be
// present (a missing one is an error rather than an expected "not synced
// yet" outcome) and no interior hashes are carried.
func FromPMMR[T pmmr.Element](id Identifier, reader Reader, mmrSize uint64, prunable bool) (Segment[T], error) {
	seg := Segment[T]{ID: id}

	if id.unprunedSize(mmrSize) == 0 {
		return Segment[T]{}, txerr.New(txerr.KindNonExistentSegment, nil)
	}

	first, last := id.PosRange(mmrSize)
	for pos := first; pos <= last; pos++ {
		if pmmr.IsLeaf(pos) {
			if elt, ok := reader.GetData(pos); ok {
				t, ok := elt.(T)
				if !ok {
					return Segment[T]{}, txerr.New(txerr.KindCorruptedData, nil)
				}
				seg.LeafData = append(seg.LeafData, t)
				seg.LeafPos = append(seg.LeafPos, pos)
				continue
			}
			if !prunable {
				return Segment[T]{}, txerr.WithPos(txerr.KindMissingLeaf, pos, nil)
			}
		}
		if prunable {
			if h, ok := reader.GetFromFile(pos); ok {
				seg.Hashes = append(seg.Hashes, h)
				seg.HashPos = append(seg.HashPos, pos)
			}
		}
	}

	var startPos uint64
	hasStartPos := false
	if len(seg.LeafData) == 0 && len(seg.Hashes) == 0 {
		for _, branch := range pmmr.FamilyBranch(last, mmrSize) {
			pos := branch[0]
			if h, ok := reader.GetFromFile(pos); ok {
				seg.Hashes = append(seg.Hashes, h)
				seg.HashPos = append(seg.HashPos, pos)
				startPos, hasStartPos = 1+pos, true
				break
			}
		}
	}

	proof, err := generateProof(reader, mmrSize, first, last, startPos, hasStartPos)
	if err != nil {
		return Segment[T]{}, err
	}
	seg.Proof = proof
	return seg, nil
}

// Root calculates the root hash of this segment alone, folding in the
// bitmap (when non-nil) to decide whether an absent hash means "pruned,
// safe to skip" (bitmap says this leaf is spent) or "missing data,
// error". Returns ok=false only for a full segment that is entirely
// pruned — the caller must climb to a higher, already-merged ancestor.
func (s Segment[T]) Root(mmrSize uint64, bitmap Bitmap) (root pmmr.Hash, ok bool, err error) {
	first, last := s.PosRange(mmrSize)
	hashes := make([]*pmmr.Hash, 0, last-first+1)

	leafAt := make(map[uint64]T, len(s.LeafPos))
	for i, pos := range s.LeafPos {
		leafAt[pos] = s.LeafData[i]
	}

	push := func(h *pmmr.Hash) { hashes = append(hashes, h) }
	pop := func() *pmmr.Hash {
		h := hashes[len(hashes)-1]
		hashes = hashes[:len(hashes)-1]
		return h
	}

	for pos := first; pos <= last; pos++ {
		height := pmmr.BintreePostorderHeight(pos)
		if height == 0 {
			want := true
			if bitmap != nil {
				idx1 := pmmr.NLeaves(pos+1) - 1
				var idx2 uint64
				if pmmr.IsLeftSibling(pos) {
					idx2 = idx1 + 1
				} else if idx1 > 0 {
					idx2 = idx1 - 1
				}
				want = bitmap.Contains(idx1) || bitmap.Contains(idx2) || pos == mmrSize-1
			}
			if !want {
				push(nil)
				continue
			}
			data, found := leafAt[pos]
			if !found {
				return pmmr.Hash{}, false, txerr.WithPos(txerr.KindMissingLeaf, pos, nil)
			}
			h := data.HashWithIndex(pos)
			push(&h)
			continue
		}

		leftPos := 1 + pos - (uint64(1) << height)
		rightChild := pop()
		leftChild := pop()

		switch {
		case leftChild == nil && rightChild == nil:
			push(nil)
		case leftChild != nil && rightChild != nil:
			h := pmmr.HashParent(pos, *leftChild, *rightChild)
			push(&h)
		case bitmap != nil && rightChild != nil:
			l, err := s.getHash(leftPos - 1)
			if err != nil {
				return pmmr.Hash{}, false, err
			}
			h := pmmr.HashParent(pos, l, *rightChild)
			push(&h)
		case bitmap != nil && leftChild != nil:
			r, err := s.getHash(pos - 1)
			if err != nil {
				return pmmr.Hash{}, false, err
			}
			h := pmmr.HashParent(pos, *leftChild, r)
			push(&h)
		case bitmap == nil:
			if leftChild == nil {
				return pmmr.Hash{}, false, txerr.WithPos(txerr.KindMissingHash, leftPos, nil)
			}
			return pmmr.Hash{}, false, txerr.WithPos(txerr.KindMissingHash, pos, nil)
		}
	}

	if s.fullSegment(mmrSize) {
		h := pop()
		if h == nil {
			return pmmr.Hash{}, false, nil
		}
		return *h, true, nil
	}

	peaks := pmmr.Peaks(mmrSize)
	var inRange []uint64
	for _, p := range peaks {
		if p >= first && p <= last {
			inRange = append(inRange, p)
		}
	}
	var acc *pmmr.Hash
	for i := len(inRange) - 1; i >= 0; i-- {
		pos := inRange[i]
		h := pop()
		if h == nil && bitmap != nil {
			got, err := s.getHash(pos)
			if err != nil {
				return pmmr.Hash{}, false, err
			}
			h = &got
		}
		if h == nil {
			return pmmr.Hash{}, false, txerr.WithPos(txerr.KindMissingHash, pos, nil)
		}
		if acc == nil {
			acc = h
		} else {
			combined := pmmr.HashParent(mmrSize, *h, *acc)
			acc = &combined
		}
	}
	if acc == nil {
		return pmmr.Hash{}, false, nil
	}
	return *acc, true, nil
}

// Bitmap is the minimal read surface Root/FirstUnprunedParent need from
// an accumulator's live-leaf snapshot: live-leaf membership by leaf
// index, and a count of live leaves in a half-open leaf-index range.
type Bitmap interface {
	Contains(leafIdx uint64) bool
	RangeCardinality(lo, hi uint64) uint64
}

// FirstUnprunedParent returns the root (or, failing that, the first
// ancestor hash actually present) together with the 0-based position
// one past it, for use as the subtree anchor a caller's proof validates
// against.
func (s Segment[T]) FirstUnprunedParent(mmrSize uint64, bitmap Bitmap) (pmmr.Hash, uint64, error) {
	root, ok, err := s.Root(mmrSize, bitmap)
	if err != nil {
		return pmmr.Hash{}, 0, err
	}
	_, last := s.PosRange(mmrSize)
	if ok {
		return root, 1 + last, nil
	}
	if bitmap == nil {
		return pmmr.Hash{}, 0, txerr.WithPos(txerr.KindMissingHash, last, nil)
	}

	nLeaves := pmmr.NLeaves(mmrSize)
	branch := pmmr.FamilyBranch(last, mmrSize)
	pos := last
	idx := 0
	for {
		if h, err := s.getHash(pos); err == nil {
			return h, 1 + pos, nil
		}
		if idx >= len(branch) {
			return pmmr.Hash{}, 0, txerr.WithPos(txerr.KindMissingHash, last, nil)
		}
		pos = branch[idx][0]
		idx++

		lo := pmmr.NLeaves(1+pmmr.BintreeLeftmost(pos)) - 1
		hi := pmmr.NLeaves(1 + pmmr.BintreeRightmost(pos))
		if hi > nLeaves {
			hi = nLeaves
		}
		if bitmap.RangeCardinality(lo, hi) > 0 {
			return pmmr.Hash{}, 0, txerr.WithPos(txerr.KindMissingHash, pos, nil)
		}
	}
}

// Validate recomputes s's subtree root and checks the accompanying
// proof reconstructs mmrRoot.
func (s Segment[T]) Validate(mmrSize uint64, bitmap Bitmap, mmrRoot pmmr.Hash) error {
	first, last := s.PosRange(mmrSize)
	segRoot, unprunedPos, err := s.FirstUnprunedParent(mmrSize, bitmap)
	if err != nil {
		return err
	}
	return s.Proof.Validate(mmrSize, mmrRoot, first, last, segRoot, unprunedPos)
}

// ValidateWith is Validate for a segment whose root must first be
// combined with otherRoot (e.g. the paired bitmap-accumulator segment)
// before climbing to mmrRoot.
func (s Segment[T]) ValidateWith(mmrSize uint64, bitmap Bitmap, mmrRoot pmmr.Hash, hashLastPos uint64, otherRoot pmmr.Hash, otherIsLeft bool) error {
	first, last := s.PosRange(mmrSize)
	segRoot, unprunedPos, err := s.FirstUnprunedParent(mmrSize, bitmap)
	if err != nil {
		return err
	}
	return s.Proof.ValidateWith(mmrSize, mmrRoot, first, last, segRoot, unprunedPos, hashLastPos, otherRoot, otherIsLeft)
}
