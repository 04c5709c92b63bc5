package pmmrstore

import (
	"os"
	"sort"

	"github.com/RoaringBitmap/roaring"
	"go.uber.org/zap"

	"github.com/mimblewimble/txhashset/pmmr"
	"github.com/mimblewimble/txhashset/txerr"
)

// PruneList is the persistent bitmap of fully-pruned subtree roots, kept
// in canonical form (no member is an ancestor or descendant of another),
// plus a derived shift cache translating logical positions to physical
// file offsets in O(log n).
type PruneList struct {
	path string
	bm   *roaring.Bitmap

	// shiftCache and leafShiftCache hold, for each pruned root (sorted
	// ascending), the cumulative subtree size minus one (the root's own
	// hash is kept) / leaf count of every pruned root at or before it —
	// §4.E's shift cache.
	roots          []uint64
	shiftCache     []uint64
	leafShiftCache []uint64

	log *zap.Logger
}

// OpenPruneList loads (or creates empty) the prune list at path.
func OpenPruneList(path string, log *zap.Logger) (*PruneList, error) {
	if log == nil {
		log = zap.NewNop()
	}
	bm := roaring.New()
	if data, err := os.ReadFile(path); err == nil {
		if _, err := bm.FromBuffer(data); err != nil {
			return nil, txerr.New(txerr.KindCorruptedData, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, txerr.New(txerr.KindIO, err)
	}
	pl := &PruneList{path: path, bm: bm, log: log}
	pl.rebuildShiftCache()
	return pl, nil
}

// Append inserts pos into the prune list, maintaining the canonical
// invariant: while pos's sibling is already a pruned root, remove the
// sibling and continue with the parent instead.
func (pl *PruneList) Append(pos uint64) {
	cursor := pos
	for {
		_, sibling := pmmr.Family(cursor)
		if !pl.bm.Contains(uint32(sibling)) {
			break
		}
		pl.bm.Remove(uint32(sibling))
		parent, _ := pmmr.Family(cursor)
		cursor = parent
	}
	pl.bm.Add(uint32(cursor))
	pl.rebuildShiftCache()
}

// IsPrunedRoot reports whether pos itself is a pruned subtree root.
func (pl *PruneList) IsPrunedRoot(pos uint64) bool { return pl.bm.Contains(uint32(pos)) }

// IsPruned reports whether pos, or any ancestor of pos, is a pruned root.
func (pl *PruneList) IsPruned(pos uint64) bool {
	for _, r := range pl.roots {
		start, end := pmmr.BintreeRange(r)
		if pos >= start && pos < end {
			return true
		}
		if r == pos {
			return true
		}
	}
	return false
}

// Shift returns the number of lower-indexed positions eliminated by the
// prune list at or before pos.
func (pl *PruneList) Shift(pos uint64) uint64 {
	idx := sort.Search(len(pl.roots), func(i int) bool { return pl.roots[i] > pos })
	if idx == 0 {
		return 0
	}
	return pl.shiftCache[idx-1]
}

// LeafShift returns the number of lower-indexed leaf positions eliminated
// by the prune list at or before pos.
func (pl *PruneList) LeafShift(pos uint64) uint64 {
	idx := sort.Search(len(pl.roots), func(i int) bool { return pl.roots[i] > pos })
	if idx == 0 {
		return 0
	}
	return pl.leafShiftCache[idx-1]
}

func (pl *PruneList) rebuildShiftCache() {
	roots := pl.bm.ToArray()
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })
	pl.roots = make([]uint64, len(roots))
	pl.shiftCache = make([]uint64, len(roots))
	pl.leafShiftCache = make([]uint64, len(roots))
	var shiftSum, leafShiftSum uint64
	for i, r := range roots {
		pl.roots[i] = uint64(r)
		height := pmmr.BintreePostorderHeight(uint64(r))
		subtreeSize := (uint64(1) << (height + 1)) - 1
		subtreeLeaves := (subtreeSize + 1) / 2
		shiftSum += subtreeSize - 1 // the root itself is retained as a hash
		leafShiftSum += subtreeLeaves
		pl.shiftCache[i] = shiftSum
		pl.leafShiftCache[i] = leafShiftSum
	}
}

// Flush persists the bitmap to disk.
func (pl *PruneList) Flush() error {
	data, err := pl.bm.ToBytes()
	if err != nil {
		return txerr.New(txerr.KindCorruptedData, err)
	}
	if err := os.WriteFile(pl.path, data, 0o644); err != nil {
		return txerr.New(txerr.KindIO, err)
	}
	return nil
}

// Reset clears the prune list (used only by tests).
func (pl *PruneList) Reset() {
	pl.bm = roaring.New()
	pl.rebuildShiftCache()
}

// Roots returns the current pruned-root positions, ascending.
func (pl *PruneList) Roots() []uint64 { return append([]uint64(nil), pl.roots...) }
