package segment

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mimblewimble/txhashset/mmrtesting"
	"github.com/mimblewimble/txhashset/pmmr"
)

func buildPMMR(t *testing.T, n int) *pmmr.PMMR {
	t.Helper()
	backend := pmmr.NewMemBackend()
	p := pmmr.New(backend, mmrtesting.NewLogger(t))
	for k := 1; k <= n; k++ {
		_, err := p.Push(mmrtesting.NewTestElemFromIndex(byte(k)))
		require.NoError(t, err)
	}
	return p
}

func TestFullSegmentCoversEntireSinglePeakTree(t *testing.T) {
	// §8 scenario 3: eight leaves make a single perfect tree (unpruned
	// size 15); the height-3, index-0 segment spans the whole thing and
	// needs no extra proof hashes to reach the root.
	p := buildPMMR(t, 8)
	mmrSize := p.UnprunedSize()
	require.Equal(t, uint64(15), mmrSize)

	id := Identifier{Height: 3, Idx: 0}
	first, last := id.PosRange(mmrSize)
	require.Equal(t, uint64(0), first)
	require.Equal(t, uint64(14), last)

	seg, err := FromPMMR[mmrtesting.TestElem](id, p, mmrSize, false)
	require.NoError(t, err)
	require.Len(t, seg.LeafData, 8)
	require.Equal(t, len(pmmr.Peaks(mmrSize))-1, seg.Proof.Size())

	root := p.Root()
	require.NoError(t, seg.Validate(mmrSize, nil, root))
}

func TestPartialSegmentNeedsLeftPeaksInProof(t *testing.T) {
	// Ten leaves span two peaks (mmr size 18, peaks [14,17]); with
	// segments of height 3 the last segment (leaves 8 and 9) is partial
	// and must bag in the left-hand peak to reach the same root the plain
	// PMMR computes.
	p := buildPMMR(t, 10)
	mmrSize := p.UnprunedSize()

	segments := TraversalIter(mmrSize, 3)
	require.NotEmpty(t, segments)

	root := p.Root()
	for _, id := range segments {
		seg, err := FromPMMR[mmrtesting.TestElem](id, p, mmrSize, true)
		require.NoError(t, err)
		require.NoError(t, seg.Validate(mmrSize, nil, root))
	}
}

func TestSegmentRootMatchesPMMRMerkleProofPeak(t *testing.T) {
	p := buildPMMR(t, 8)
	mmrSize := p.UnprunedSize()
	id := Identifier{Height: 3, Idx: 0}

	seg, err := FromPMMR[mmrtesting.TestElem](id, p, mmrSize, false)
	require.NoError(t, err)

	root, ok, err := seg.Root(mmrSize, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, p.Root(), root)
}

func TestSegmentWireRoundTrip(t *testing.T) {
	p := buildPMMR(t, 8)
	mmrSize := p.UnprunedSize()
	id := Identifier{Height: 3, Idx: 0}

	seg, err := FromPMMR[mmrtesting.TestElem](id, p, mmrSize, false)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, seg))

	got, err := Decode[mmrtesting.TestElem](&buf, 4, true, mmrtesting.DecodeTestElem)
	require.NoError(t, err)

	require.Equal(t, seg.ID, got.ID)
	require.Equal(t, seg.LeafPos, got.LeafPos)
	require.Equal(t, seg.LeafData, got.LeafData)
	require.Equal(t, seg.HashPos, got.HashPos)
	require.Equal(t, seg.Hashes, got.Hashes)
	require.Equal(t, seg.Proof, got.Proof)

	root := p.Root()
	require.NoError(t, got.Validate(mmrSize, nil, root))
}

func TestCountSegmentsRequiredMatchesTraversalIterLength(t *testing.T) {
	for n := 1; n <= 40; n++ {
		p := buildPMMR(t, n)
		mmrSize := p.UnprunedSize()
		for h := uint8(0); h <= 4; h++ {
			want := CountSegmentsRequired(mmrSize, h)
			require.Equal(t, want, len(TraversalIter(mmrSize, h)), "n=%d height=%d", n, h)
		}
	}
}
