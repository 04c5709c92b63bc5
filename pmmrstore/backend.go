package pmmrstore

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/mimblewimble/txhashset/pmmr"
	"github.com/mimblewimble/txhashset/txerr"
)

const (
	hashFileName = "pmmr_hash.bin"
	dataFileName = "pmmr_data.bin"
	sizeFileName = "pmmr_size.bin"
	leafFileName = "pmmr_leaf.bin"
	pruneFileName = "pmmr_prun.bin"
)

// Backend is the prunable, disk-backed implementation of pmmr.Backend
// (§4.F). One Backend is opened per accumulator directory and shared by
// exactly one writer at a time; any number of readers may use it
// concurrently between flushes (§5).
type Backend[T pmmr.Element] struct {
	dir string

	hashes *HashFile
	data   *DataFile[T]
	leaves *LeafSet
	prune  *PruneList

	log *zap.Logger
}

// Open opens (or creates) a prunable PMMR backend rooted at dir. elmtSize
// and fixed describe the leaf element's on-disk layout; decode
// deserializes a leaf element's bytes.
//
// Any leftover *.tmp files from a compaction that crashed mid-replace are
// removed before the backend is considered usable, mirroring the
// source's clean_files_by_prefix step.
func Open[T pmmr.Element](dir string, elmtSize uint16, fixed bool, decode Decoder[T], opts ...Option) (*Backend[T], error) {
	o := newOptions(opts...)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, txerr.New(txerr.KindIO, err)
	}
	if err := cleanTmpFiles(dir); err != nil {
		return nil, err
	}

	fo := FileOptions{UseMmap: o.useMmap, FileMode: os.FileMode(o.fileMode)}

	hashes, err := OpenHashFile(filepath.Join(dir, hashFileName), o.log, fo)
	if err != nil {
		return nil, err
	}

	var data *DataFile[T]
	if fixed {
		data, err = OpenDataFileFixed(filepath.Join(dir, dataFileName), elmtSize, decode, o.log, fo)
	} else {
		data, err = OpenDataFileVariable(filepath.Join(dir, dataFileName), filepath.Join(dir, sizeFileName), decode, o.log, fo)
	}
	if err != nil {
		return nil, err
	}

	leaves, err := OpenLeafSet(filepath.Join(dir, leafFileName), o.log)
	if err != nil {
		return nil, err
	}
	prune, err := OpenPruneList(filepath.Join(dir, pruneFileName), o.log)
	if err != nil {
		return nil, err
	}

	return &Backend[T]{dir: dir, hashes: hashes, data: data, leaves: leaves, prune: prune, log: o.log}, nil
}

// OpenSnapshot opens a backend whose leaf set is loaded from the snapshot
// side file tagged tag instead of the live pmmr_leaf.bin, giving a
// historical UTXO view. The returned backend is not write-protected: it
// shares the live hash, data and prune-list files, and its Commit writes
// the leaf set to the snapshot file.
func OpenSnapshot[T pmmr.Element](dir string, tag string, elmtSize uint16, fixed bool, decode Decoder[T], opts ...Option) (*Backend[T], error) {
	b, err := Open(dir, elmtSize, fixed, decode, opts...)
	if err != nil {
		return nil, err
	}
	snapPath := filepath.Join(dir, leafFileName) + "." + tag
	leaves, err := OpenLeafSet(snapPath, b.log)
	if err != nil {
		return nil, err
	}
	b.leaves = leaves
	return b, nil
}

func cleanTmpFiles(dir string) error {
	for _, name := range []string{hashFileName, dataFileName, sizeFileName} {
		tmp := filepath.Join(dir, name) + ".tmp"
		if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
			return txerr.New(txerr.KindIO, err)
		}
	}
	return nil
}

// hashPhysical maps a logical position to its physical slot in the hash
// file, accounting for the prune list's shift cache.
func (b *Backend[T]) hashPhysical(pos uint64) uint64 { return pos - b.prune.Shift(pos) }

// dataPhysical maps a logical leaf position to its physical slot in the
// data file.
func (b *Backend[T]) dataPhysical(pos uint64) (uint64, bool) {
	leafIdx, ok := pmmr.PMMRLeafToInsertionIndex(pos)
	if !ok {
		return 0, false
	}
	return leafIdx - b.prune.LeafShift(pos), true
}

// Append stores a new leaf and the hashes of its completed ancestors.
func (b *Backend[T]) Append(leaf pmmr.Element, hashes []pmmr.Hash) error {
	elt, ok := leaf.(T)
	if !ok {
		return fmt.Errorf("pmmrstore: leaf element type mismatch")
	}
	if err := b.data.Append(elt); err != nil {
		return err
	}
	for _, h := range hashes {
		if err := b.hashes.Append(h); err != nil {
			return err
		}
	}
	leafPos := b.UnprunedSize() - uint64(len(hashes))
	b.leaves.Add(leafPos)
	return nil
}

// AppendPrunedSubtree stores the hash of a subtree root restored without
// its leaves and records pos in the prune list.
func (b *Backend[T]) AppendPrunedSubtree(hash pmmr.Hash, pos uint64) error {
	if err := b.hashes.Append(hash); err != nil {
		return err
	}
	b.prune.Append(pos)
	return nil
}

// AppendHash stores a single interior hash.
func (b *Backend[T]) AppendHash(hash pmmr.Hash) error { return b.hashes.Append(hash) }

// GetHash returns the hash at pos, honoring the leaf set: a pruned or
// removed leaf position is reported absent.
func (b *Backend[T]) GetHash(pos uint64) (pmmr.Hash, bool) {
	if pmmr.IsLeaf(pos) && !b.leaves.Includes(pos) {
		return pmmr.Hash{}, false
	}
	return b.GetFromFile(pos)
}

// GetData returns the leaf element at pos, if it is a live leaf.
func (b *Backend[T]) GetData(pos uint64) (pmmr.Element, bool) {
	if !pmmr.IsLeaf(pos) || !b.leaves.Includes(pos) {
		return nil, false
	}
	phys, ok := b.dataPhysical(pos)
	if !ok {
		return nil, false
	}
	elt, ok := b.data.Read(phys)
	if !ok {
		return nil, false
	}
	return elt, true
}

// GetFromFile returns the hash at pos straight from the hash file,
// ignoring the leaf set.
func (b *Backend[T]) GetFromFile(pos uint64) (pmmr.Hash, bool) {
	if b.prune.IsPruned(pos) && !b.prune.IsPrunedRoot(pos) {
		return pmmr.Hash{}, false
	}
	return b.hashes.Read(b.hashPhysical(pos))
}

// GetPeakFromFile returns the hash at pos, a position known to be an
// uncompacted peak (so no pruning check is needed).
func (b *Backend[T]) GetPeakFromFile(pos uint64) (pmmr.Hash, bool) {
	return b.hashes.Read(b.hashPhysical(pos))
}

// Remove clears the leaf-set bit at pos. Never touches the hash or data
// files.
func (b *Backend[T]) Remove(pos uint64) error {
	b.leaves.Remove(pos)
	return nil
}

// Rewind truncates the hash and data files to leafPos, rewinds the leaf
// set, and re-admits rewindRmPos.
func (b *Backend[T]) Rewind(leafPos uint64, rewindRmPos []uint64) error {
	hashPos := b.hashPhysical(leafPos)
	b.hashes.Rewind(hashPos)

	if dataPos, ok := b.dataPhysical(leafPos); ok {
		b.data.Rewind(dataPos)
	}
	b.leaves.Rewind(leafPos, rewindRmPos)
	return nil
}

// ResetPruneList clears the prune list (test backend support).
func (b *Backend[T]) ResetPruneList() { b.prune.Reset() }

// UnprunedSize returns the logical node count: the hash file's element
// count plus every position compaction removed from it.
func (b *Backend[T]) UnprunedSize() uint64 { return b.hashes.Size() + b.prune.Shift(^uint64(0)) }

// DumpStats logs backend diagnostics.
func (b *Backend[T]) DumpStats() {
	b.log.Info("backend stats",
		zap.Uint64("unpruned_size", b.UnprunedSize()),
		zap.Uint64("live_leaves", b.leaves.Cardinality()),
		zap.Int("pruned_roots", len(b.prune.Roots())),
	)
}

// Stats is the diagnostic snapshot returned by cmd/pmmrtool's inspect
// subcommand; it is not part of any consensus-critical path.
type Stats struct {
	UnprunedSize uint64
	LiveLeaves   uint64
	PrunedRoots  int
}

// GetStats returns a point-in-time diagnostic snapshot of the backend.
func (b *Backend[T]) GetStats() Stats {
	return Stats{
		UnprunedSize: b.UnprunedSize(),
		LiveLeaves:   b.leaves.Cardinality(),
		PrunedRoots:  len(b.prune.Roots()),
	}
}

// Snapshot copies the live leaf set to a side file tagged by headerTag
// (typically a block hash rendered as hex), preserving the UTXO view as
// of this batch for later serving (e.g. to fast-sync peers).
func (b *Backend[T]) Snapshot(headerTag string) error {
	return b.leaves.Snapshot(headerTag)
}

// commit persists size file, data file, hash file, leaf set, prune list —
// in that exact order, matching §5's crash-recovery ordering guarantee.
func (b *Backend[T]) Commit() error {
	if err := b.data.Flush(); err != nil {
		return err
	}
	if err := b.hashes.Flush(); err != nil {
		return err
	}
	if err := b.leaves.Flush(); err != nil {
		return err
	}
	if err := b.prune.Flush(); err != nil {
		return err
	}
	return nil
}

// Discard abandons the in-progress batch.
func (b *Backend[T]) Discard() error {
	b.data.Discard()
	b.hashes.Discard()
	return b.leaves.Discard()
}

// Release drops file handles and memory maps.
func (b *Backend[T]) Release() {
	b.hashes.Release()
	b.data.Release()
}

// LeafPosIter returns every currently live leaf position, ascending.
func (b *Backend[T]) LeafPosIter() []uint64 {
	var out []uint64
	size := b.UnprunedSize()
	for pos := uint64(0); pos < size; pos++ {
		if pmmr.IsLeaf(pos) && b.leaves.Includes(pos) {
			out = append(out, pos)
		}
	}
	return out
}
