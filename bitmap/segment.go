package bitmap

import (
	"io"

	"github.com/mimblewimble/txhashset/pmmr"
	"github.com/mimblewimble/txhashset/segment"
	"github.com/mimblewimble/txhashset/txerr"
)

// Segment is the wire-efficient form of a segment.Segment[Chunk]: the
// chunk leaves packed into Blocks of up to 64 chunks apiece instead of
// carried as 128-byte values one by one.
type Segment struct {
	ID     segment.Identifier
	Blocks []*Block
	Proof  segment.Proof
}

// FromSegment packs seg's chunk leaves into NChunks-sized blocks.
func FromSegment(seg segment.Segment[Chunk]) Segment {
	leaves := seg.LeafData
	var blocks []*Block
	for len(leaves) > 0 {
		n := NChunks
		if n > len(leaves) {
			n = len(leaves)
		}
		block := NewBlock(n)
		for chunkInBlock := 0; chunkInBlock < n; chunkInBlock++ {
			chunk := leaves[chunkInBlock]
			for i := uint64(0); i < ChunkBits; i++ {
				if chunk.Get(i) {
					block.Set(chunkInBlock*ChunkBits+int(i), true)
				}
			}
		}
		blocks = append(blocks, block)
		leaves = leaves[n:]
	}
	return Segment{ID: seg.ID, Blocks: blocks, Proof: seg.Proof}
}

// ToSegment unpacks bs back into a segment.Segment[Chunk], reconstructing
// each chunk's leaf position from the segment identifier's offset.
func ToSegment(bs Segment) segment.Segment[Chunk] {
	nChunks := 0
	for i, b := range bs.Blocks {
		if i < len(bs.Blocks)-1 {
			nChunks += NChunks
		} else {
			nChunks += b.NChunks()
		}
	}

	offset := bs.ID.Idx << bs.ID.Height
	leafPos := make([]uint64, nChunks)
	leafData := make([]Chunk, nChunks)
	for i := 0; i < nChunks; i++ {
		leafPos[i] = pmmr.InsertionToPMMRIndex(offset + uint64(i))
	}

	for blockIdx, block := range bs.Blocks {
		base := blockIdx * NChunks
		for i := 0; i < len(block.bits); i++ {
			if !block.Get(i) {
				continue
			}
			chunkIdx := base + i/ChunkBits
			leafData[chunkIdx].Set(uint64(i%ChunkBits), true)
		}
	}

	return segment.Segment[Chunk]{ID: bs.ID, LeafPos: leafPos, LeafData: leafData, Proof: bs.Proof}
}

// Encode writes bs's wire form: identifier, u16 block count, blocks, proof.
func Encode(w io.Writer, bs Segment) error {
	if err := segment.EncodeIdentifier(w, bs.ID); err != nil {
		return err
	}
	if len(bs.Blocks) > 1<<16-1 {
		return txerr.New(txerr.KindTooLarge, nil)
	}
	if err := writeUint16(w, uint16(len(bs.Blocks))); err != nil {
		return err
	}
	for _, b := range bs.Blocks {
		if err := b.Encode(w); err != nil {
			return err
		}
	}
	return segment.EncodeProof(w, bs.Proof)
}

// Decode reads the wire form written by Encode.
func Decode(r io.Reader) (Segment, error) {
	id, err := segment.DecodeIdentifier(r)
	if err != nil {
		return Segment{}, err
	}
	n, err := readUint16(r)
	if err != nil {
		return Segment{}, err
	}
	blocks := make([]*Block, n)
	for i := range blocks {
		b, err := DecodeBlock(r)
		if err != nil {
			return Segment{}, err
		}
		blocks[i] = b
	}
	proof, err := segment.DecodeProof(r)
	if err != nil {
		return Segment{}, err
	}
	return Segment{ID: id, Blocks: blocks, Proof: proof}, nil
}
