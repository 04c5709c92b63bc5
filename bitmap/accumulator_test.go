package bitmap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mimblewimble/txhashset/pmmr"
)

func TestAccumulatorInitRoundTripsBits(t *testing.T) {
	// §8 scenario 4: bits {0, 1023, 1024, 2047}, size 2048 — exactly two
	// chunks, each with its first and last bit set.
	idx := []uint64{0, 1023, 1024, 2047}
	a := NewAccumulator()
	require.NoError(t, a.Init(idx, 2048))

	bm := a.AsBitmap()
	require.Equal(t, uint64(len(idx)), bm.GetCardinality())
	for _, i := range idx {
		require.True(t, bm.Contains(uint32(i)), "bit %d", i)
	}
}

func TestAccumulatorRootMatchesTwoChunkBagging(t *testing.T) {
	idx := []uint64{0, 1023, 1024, 2047}
	a := NewAccumulator()
	require.NoError(t, a.Init(idx, 2048))

	var chunk0, chunk1 Chunk
	chunk0.Set(0, true)
	chunk0.Set(1023, true)
	chunk1.Set(0, true)
	chunk1.Set(1023, true)

	h0 := chunk0.HashWithIndex(0)
	h1 := chunk1.HashWithIndex(1)
	want := pmmr.HashParent(2, h0, h1)
	require.Equal(t, want, a.Root())
}

func TestAccumulatorApplyRebuildsOnlyAffectedTail(t *testing.T) {
	idx := []uint64{0, 1023, 1024, 2047, 3000}
	a := NewAccumulator()
	require.NoError(t, a.Init(idx, 4096))

	firstChunkRoot, ok := a.backend.GetFromFile(0)
	require.True(t, ok)

	// Invalidate only bits in the third chunk (starting at 2048) and
	// apply a replacement set that drops bit 3000.
	require.NoError(t, a.Apply([]uint64{3000}, []uint64{0, 1023, 1024, 2047}, 4096))

	firstChunkRootAfter, ok := a.backend.GetFromFile(0)
	require.True(t, ok)
	require.Equal(t, firstChunkRoot, firstChunkRootAfter)

	bm := a.AsBitmap()
	require.False(t, bm.Contains(3000))
	require.True(t, bm.Contains(2047))
}

func TestChunkSetGetAndSetIter(t *testing.T) {
	var c Chunk
	c.Set(0, true)
	c.Set(1023, true)
	require.True(t, c.Get(0))
	require.True(t, c.Get(1023))
	require.False(t, c.Get(1))
	require.Equal(t, []uint64{100, 1123}, c.SetIter(100))
}

func TestChunkBytesRoundTripsThroughDecode(t *testing.T) {
	var c Chunk
	c.Set(5, true)
	c.Set(900, true)
	raw, err := c.Bytes()
	require.NoError(t, err)
	require.Len(t, raw, ChunkBytes)

	decoded, err := DecodeChunk(raw)
	require.NoError(t, err)
	require.Equal(t, c, decoded)
}
