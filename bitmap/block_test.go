package bitmap

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func encodeDecodeRoundTrip(t *testing.T, b *Block) *Block {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, b.Encode(&buf))
	got, err := DecodeBlock(&buf)
	require.NoError(t, err)
	return got
}

func TestBlockEncodeDecodeRoundTripsAllThreeModes(t *testing.T) {
	cases := []struct {
		name    string
		setBits func(b *Block)
	}{
		{"sparse chooses positive mode", func(b *Block) {
			b.Set(0, true)
			b.Set(5, true)
		}},
		{"dense chooses negative mode", func(b *Block) {
			for i := 0; i < b.NChunks()*ChunkBits; i++ {
				b.Set(i, true)
			}
			b.Set(3, false)
			b.Set(400, false)
		}},
		{"balanced chooses raw mode", func(b *Block) {
			for i := 0; i < b.NChunks()*ChunkBits; i += 2 {
				b.Set(i, true)
			}
		}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b := NewBlock(NChunks)
			c.setBits(b)

			got := encodeDecodeRoundTrip(t, b)
			require.Equal(t, b.NChunks(), got.NChunks())
			for i := 0; i < b.NChunks()*ChunkBits; i++ {
				require.Equal(t, b.Get(i), got.Get(i), "bit %d", i)
			}
		})
	}
}

func TestBlockModeSelectionThresholds(t *testing.T) {
	threshold := NBits / 16

	b := NewBlock(NChunks)
	for i := 0; i < threshold-1; i++ {
		b.Set(i, true)
	}
	var buf bytes.Buffer
	require.NoError(t, b.Encode(&buf))
	require.Equal(t, byte(modePositive), buf.Bytes()[1])

	b2 := NewBlock(NChunks)
	for i := 0; i < NBits; i++ {
		b2.Set(i, true)
	}
	for i := 0; i < threshold-1; i++ {
		b2.Set(i, false)
	}
	var buf2 bytes.Buffer
	require.NoError(t, b2.Encode(&buf2))
	require.Equal(t, byte(modeNegative), buf2.Bytes()[1])

	b3 := NewBlock(NChunks)
	for i := 0; i < NBits; i += 2 {
		b3.Set(i, true)
	}
	var buf3 bytes.Buffer
	require.NoError(t, b3.Encode(&buf3))
	require.Equal(t, byte(modeRaw), buf3.Bytes()[1])
}

func TestDecodeBlockRejectsOversizeChunkCount(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(byte(NChunks + 1))
	_, err := DecodeBlock(&buf)
	require.Error(t, err)
}
