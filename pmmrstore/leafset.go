package pmmrstore

import (
	"fmt"
	"os"

	"github.com/RoaringBitmap/roaring"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mimblewimble/txhashset/pmmr"
	"github.com/mimblewimble/txhashset/txerr"
)

// LeafSet is the persistent bitmap of live (unspent, unpruned) leaf
// positions, backed by a Roaring bitmap for its Roaring-compatible
// serialization (§6). Its own file is pmmr_leaf.bin; snapshot side-copies
// are written alongside as pmmr_leaf.bin.<tag>.
type LeafSet struct {
	path string
	bm   *roaring.Bitmap

	// added/removed track this batch's not-yet-flushed mutations; Flush,
	// Discard and Rewind reset them.
	added   *roaring.Bitmap
	removed *roaring.Bitmap

	log *zap.Logger
}

// OpenLeafSet loads (or creates empty) the leaf set at path.
func OpenLeafSet(path string, log *zap.Logger) (*LeafSet, error) {
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
	return &LeafSet{
		path:    path,
		bm:      bm,
		added:   roaring.New(),
		removed: roaring.New(),
		log:     log,
	}, nil
}

// Includes reports whether pos is currently a live leaf.
func (l *LeafSet) Includes(pos uint64) bool { return l.bm.Contains(uint32(pos)) }

// Add marks pos live.
func (l *LeafSet) Add(pos uint64) {
	l.bm.Add(uint32(pos))
	l.added.Add(uint32(pos))
	l.removed.Remove(uint32(pos))
}

// Remove marks pos absent (spent or pruned).
func (l *LeafSet) Remove(pos uint64) {
	l.bm.Remove(uint32(pos))
	l.removed.Add(uint32(pos))
	l.added.Remove(uint32(pos))
}

// Flush persists the bitmap to disk and clears the in-batch mutation
// tracking used by Rewind.
func (l *LeafSet) Flush() error {
	data, err := l.bm.ToBytes()
	if err != nil {
		return txerr.New(txerr.KindCorruptedData, err)
	}
	if err := os.WriteFile(l.path, data, 0o644); err != nil {
		return txerr.New(txerr.KindIO, err)
	}
	l.added = roaring.New()
	l.removed = roaring.New()
	return nil
}

// Discard reloads the bitmap from disk, throwing away any unflushed
// mutations.
func (l *LeafSet) Discard() error {
	bm := roaring.New()
	if data, err := os.ReadFile(l.path); err == nil {
		if _, err := bm.FromBuffer(data); err != nil {
			return txerr.New(txerr.KindCorruptedData, err)
		}
	} else if !os.IsNotExist(err) {
		return txerr.New(txerr.KindIO, err)
	}
	l.bm = bm
	l.added = roaring.New()
	l.removed = roaring.New()
	return nil
}

// Rewind undoes additions made at or beyond size and re-adds the
// positions in rewindRmPos (leaves the undone block had removed).
func (l *LeafSet) Rewind(size uint64, rewindRmPos []uint64) {
	l.bm.RemoveRange(size, uint64(1)<<32)
	for _, pos := range rewindRmPos {
		l.bm.Add(uint32(pos))
	}
	l.added = roaring.New()
	l.removed = roaring.New()
}

// Snapshot writes a side-copy of the current bitmap tagged with tag (a
// block hash in hex, typically), for later serving of historical UTXO
// views. The copy is written to a uuid-named temp file first and then
// renamed into place, so a reader never observes a partially written
// snapshot file.
func (l *LeafSet) Snapshot(tag string) error {
	data, err := l.bm.ToBytes()
	if err != nil {
		return txerr.New(txerr.KindCorruptedData, err)
	}
	dest := l.path + "." + tag
	tmp := fmt.Sprintf("%s.%s.tmp", dest, uuid.NewString())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return txerr.New(txerr.KindIO, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return txerr.New(txerr.KindIO, err)
	}
	return nil
}

// RemovedPreCutoff returns the leaf positions strictly below cutoffPos
// that are absent from the leaf set, not already in pruneList, and not in
// rewindRmPos — the candidates for compaction.
func (l *LeafSet) RemovedPreCutoff(cutoffPos uint64, rewindRmPos []uint64, pruneList *PruneList) []uint64 {
	rewind := make(map[uint32]struct{}, len(rewindRmPos))
	for _, p := range rewindRmPos {
		rewind[uint32(p)] = struct{}{}
	}
	var out []uint64
	for pos := uint32(0); uint64(pos) < cutoffPos; pos++ {
		if !pmmr.IsLeaf(uint64(pos)) {
			continue
		}
		if l.bm.Contains(pos) {
			continue
		}
		if _, skip := rewind[pos]; skip {
			continue
		}
		if pruneList.IsPruned(uint64(pos)) {
			continue
		}
		out = append(out, uint64(pos))
	}
	return out
}

// NUnprunedLeavesToIndex returns the count of live leaves whose leaf index
// is below leafIdx.
func (l *LeafSet) NUnprunedLeavesToIndex(leafIdx uint64) uint64 {
	if leafIdx == 0 {
		return 0
	}
	return l.bm.Rank(uint32(pmmr.InsertionToPMMRIndex(leafIdx) - 1))
}

// Cardinality returns the number of live leaves.
func (l *LeafSet) Cardinality() uint64 { return l.bm.GetCardinality() }
