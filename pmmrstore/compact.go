package pmmrstore

import (
	"sort"

	"github.com/mimblewimble/txhashset/pmmr"
)

// CheckCompact rewrites the hash and data files without the nodes made
// fully orphaned by everything spent below cutoffPos, extends the
// prune list with the new pruned roots, and atomically replaces the
// originals. Idempotent under repeated invocation with the same cutoff.
func (b *Backend[T]) CheckCompact(cutoffPos uint64, rewindRmPos []uint64) error {
	leavesRemoved, posToRemove := b.posToRemove(cutoffPos, rewindRmPos)
	if len(leavesRemoved) == 0 {
		return nil
	}

	hashPhys := make([]uint64, 0, len(posToRemove))
	for _, pos := range posToRemove {
		hashPhys = append(hashPhys, b.hashPhysical(pos))
	}
	if err := b.hashes.WriteTmpPruned(hashPhys); err != nil {
		return err
	}

	var leafPhys []uint64
	for _, pos := range posToRemove {
		if !pmmr.IsLeaf(pos) {
			continue
		}
		phys, ok := b.dataPhysical(pos)
		if !ok {
			continue
		}
		leafPhys = append(leafPhys, phys)
	}
	if err := b.data.WriteTmpPruned(leafPhys); err != nil {
		return err
	}

	if err := b.hashes.ReplaceWithTmp(); err != nil {
		return err
	}
	if err := b.data.ReplaceWithTmp(); err != nil {
		return err
	}

	for _, pos := range leavesRemoved {
		b.prune.Append(pos)
	}
	if err := b.prune.Flush(); err != nil {
		return err
	}
	return b.leaves.Flush()
}

// posToRemove computes, from the leaf set and cutoff, the full set of
// positions now fully orphaned: every leaf pruned before the cutoff,
// walked upward while the sibling at each level is already a pruned root,
// with roots of the new pruned subtrees excluded (they are kept as
// hashes so future Merkle proofs for still-live cousins keep working).
func (b *Backend[T]) posToRemove(cutoffPos uint64, rewindRmPos []uint64) (leavesRemoved, posToRemove []uint64) {
	leavesRemoved = b.leaves.RemovedPreCutoff(cutoffPos, rewindRmPos, b.prune)

	expanded := make(map[uint64]struct{})
	for _, x := range leavesRemoved {
		expanded[x] = struct{}{}
		current := x
		for {
			parent, sibling := pmmr.Family(current)
			_, siblingPruned := expanded[sibling]
			siblingPruned = siblingPruned || b.prune.IsPrunedRoot(sibling)
			if siblingPruned {
				expanded[sibling] = struct{}{}
				expanded[parent] = struct{}{}
				current = parent
				continue
			}
			break
		}
	}

	posToRemove = removedExclRoots(expanded)
	sort.Slice(posToRemove, func(i, j int) bool { return posToRemove[i] < posToRemove[j] })
	return leavesRemoved, posToRemove
}

// removedExclRoots filters a removal set to exclude positions whose
// parent is not also in the set — those are the roots of the new pruned
// subtrees and must be kept as hashes.
func removedExclRoots(removed map[uint64]struct{}) []uint64 {
	out := make([]uint64, 0, len(removed))
	for pos := range removed {
		parent, _ := pmmr.Family(pos)
		if _, parentRemoved := removed[parent]; parentRemoved {
			out = append(out, pos)
		}
	}
	return out
}
