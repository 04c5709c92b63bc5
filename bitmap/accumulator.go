package bitmap

import (
	"github.com/RoaringBitmap/roaring"

	"github.com/mimblewimble/txhashset/pmmr"
)

// Accumulator commits to a set of bit indices by slicing it into 1024-bit
// Chunks and inserting them as leaves of an in-memory PMMR (§4.H);
// Apply rehashes only the chunks from the earliest invalidated one onward
// (and their ancestors); earlier chunks are left as they are.
type Accumulator struct {
	backend *pmmr.MemBackend
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{backend: pmmr.NewMemBackend()}
}

func chunkIdx(bitIdx uint64) uint64 { return bitIdx / ChunkBits }

// ChunkStartIdx rounds bitIdx down to the start of its containing chunk.
func ChunkStartIdx(bitIdx uint64) uint64 { return bitIdx &^ (ChunkBits - 1) }

// Init clears the accumulator and appends chunks covering [0, size) bits,
// each carrying the bits from idx that fall within it.
func (a *Accumulator) Init(idx []uint64, size uint64) error {
	a.backend = pmmr.NewMemBackend()
	return a.applyFrom(idx, 0, size)
}

// applyFrom appends chunks from the one containing fromIdx through the
// last index present in idx (capped to size), building each chunk from
// the subset of idx falling within it, then pads with empty chunks until
// the chunks cover [0, size) bits.
func (a *Accumulator) applyFrom(idx []uint64, fromIdx, size uint64) error {
	curChunk := chunkIdx(fromIdx)
	chunk := Chunk{}

	i := 0
	for i < len(idx) {
		x := idx[i]
		if x >= size {
			i++
			continue
		}
		switch {
		case x < curChunk*ChunkBits:
			i++
		case x < (curChunk+1)*ChunkBits:
			chunk.Set(x%ChunkBits, true)
			i++
		default:
			if err := a.appendChunk(chunk); err != nil {
				return err
			}
			curChunk++
			chunk = Chunk{}
		}
	}
	if chunk.Any() {
		if err := a.appendChunk(chunk); err != nil {
			return err
		}
	}
	for n := (size + ChunkBits - 1) / ChunkBits; pmmr.NLeaves(a.backend.Size()) < n; {
		if err := a.appendChunk(Chunk{}); err != nil {
			return err
		}
	}
	return nil
}

// appendChunk pushes chunk as the accumulator's next leaf.
func (a *Accumulator) appendChunk(chunk Chunk) error {
	size := a.backend.Size()
	p := pmmr.At(a.backend, size, nil)
	_, err := p.Push(chunk)
	return err
}

// rewindPrior truncates the accumulator to the end of the chunk before
// the one containing fromIdx, ready for that chunk to be rebuilt.
func (a *Accumulator) rewindPrior(fromIdx uint64) error {
	cIdx := chunkIdx(fromIdx)
	size := a.backend.Size()
	p := pmmr.At(a.backend, size, nil)
	rewindPos := pmmr.InsertionToPMMRIndex(cIdx)
	return p.Rewind(rewindPos, nil)
}

// padLeft appends empty chunks so the next appended chunk lands exactly
// at the chunk containing fromIdx.
func (a *Accumulator) padLeft(fromIdx uint64) error {
	target := chunkIdx(fromIdx)
	current := pmmr.NLeaves(a.backend.Size())
	for ; current < target; current++ {
		if err := a.appendChunk(Chunk{}); err != nil {
			return err
		}
	}
	return nil
}

// Apply rewinds to the earliest invalidated bit's chunk, pads up to it,
// and rebuilds the tail from idx, limited to size bits total.
func (a *Accumulator) Apply(invalidated []uint64, idx []uint64, size uint64) error {
	if len(invalidated) == 0 {
		return nil
	}
	fromIdx := invalidated[0]
	for _, x := range invalidated[1:] {
		if x < fromIdx {
			fromIdx = x
		}
	}
	if err := a.rewindPrior(fromIdx); err != nil {
		return err
	}
	if err := a.padLeft(fromIdx); err != nil {
		return err
	}
	return a.applyFrom(idx, fromIdx, size)
}

// Root returns the accumulator's PMMR root.
func (a *Accumulator) Root() pmmr.Hash {
	p := pmmr.At(a.backend, a.backend.Size(), nil)
	return p.Root()
}

// AsBitmap reconstructs the full set of bit indices committed to by
// every live chunk.
func (a *Accumulator) AsBitmap() *roaring.Bitmap {
	bm := roaring.New()
	for chunkIndex, pos := range a.backend.LeafPosIter() {
		elt, ok := a.backend.GetData(pos)
		if !ok {
			continue
		}
		chunk := elt.(Chunk)
		for _, bit := range chunk.SetIter(uint64(chunkIndex) * ChunkBits) {
			bm.Add(uint32(bit))
		}
	}
	return bm
}

// PMMR exposes the underlying chunk PMMR, e.g. for segment extraction.
func (a *Accumulator) PMMR() *pmmr.PMMR {
	return pmmr.At(a.backend, a.backend.Size(), nil)
}
