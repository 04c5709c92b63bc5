package pmmr

import (
	"math/bits"
	"testing"

	"github.com/stretchr/testify/require"
)

// bruteForcePeakMapHeight simulates peak_map_height by literally building
// up a forest one perfect tree at a time, used to cross-check
// PeakMapHeight over a wide range of sizes (§8).
func bruteForcePeakMapHeight(size uint64) (peakMap uint64, height uint64) {
	remaining := size
	var bitsSeen []bool
	for k := 63; k >= 0; k-- {
		treeSize := uint64(1)<<uint(k+1) - 1
		if treeSize <= remaining && treeSize > 0 {
			remaining -= treeSize
			bitsSeen = append(bitsSeen, true)
		} else if treeSize > 0 {
			bitsSeen = append(bitsSeen, false)
		}
	}
	for _, b := range bitsSeen {
		peakMap <<= 1
		if b {
			peakMap |= 1
		}
	}
	return peakMap, remaining
}

func TestPeakMapHeightAgreesWithBruteForce(t *testing.T) {
	for p := uint64(0); p < 2000; p++ {
		wantMap, wantHeight := bruteForcePeakMapHeight(p)
		gotMap, gotHeight := PeakMapHeight(p)
		require.Equalf(t, wantHeight, gotHeight, "size %d: height", p)
		require.Equalf(t, wantMap, gotMap, "size %d: peak map", p)
	}
}

func TestInsertionToPMMRIndex(t *testing.T) {
	for i := uint64(0); i < 5000; i++ {
		want := 2*i - uint64(bits.OnesCount64(i))
		require.Equal(t, want, InsertionToPMMRIndex(i))
	}
}

func TestPeaksDisjointAndCoverWholeForest(t *testing.T) {
	for n := uint64(1); n < 2000; n++ {
		peaks := Peaks(n)
		if peaks == nil {
			continue
		}
		peakMap, height := PeakMapHeight(n)
		require.Zero(t, height)
		require.Equal(t, bits.OnesCount64(peakMap), len(peaks))

		var covered uint64
		for _, p := range peaks {
			start, end := BintreeRange(p)
			covered += end - start
		}
		require.Equal(t, n, covered)
	}
}

func TestPeaksKnownSizes(t *testing.T) {
	require.Equal(t, []uint64{14}, Peaks(15))
	require.Equal(t, []uint64{6}, Peaks(7))
	require.Nil(t, Peaks(13))
}

func TestRoundUpToLeafPos(t *testing.T) {
	// First 20 leaf positions: the postorder position of leaf index i is
	// InsertionToPMMRIndex(i).
	var leaves []uint64
	for i := uint64(0); i < 20; i++ {
		leaves = append(leaves, InsertionToPMMRIndex(i))
	}

	cases := []struct {
		pos  uint64
		want uint64
	}{
		{9, 10},
		{10, 10},
		{11, 11},
		{12, 15},
		{13, 15},
		{14, 15},
	}
	for _, c := range cases {
		require.Equal(t, c.want, RoundUpToLeafPos(c.pos), "pos %d", c.pos)
	}

	// Idempotence: rounding up a leaf position is a no-op, and rounding up
	// twice in a row is the same as rounding up once.
	for _, l := range leaves {
		require.Equal(t, l, RoundUpToLeafPos(l))
		require.Equal(t, RoundUpToLeafPos(l), RoundUpToLeafPos(RoundUpToLeafPos(l)))
	}
}

// testElem is a minimal pmmr.Element used by the in-package PMMR tests.
type testElem [4]byte

func (e testElem) Bytes() ([]byte, error)     { return e[:], nil }
func (e testElem) ElementSize() (int, bool)   { return 4, true }
func (e testElem) HashWithIndex(pos uint64) Hash { return HashLeaf(pos, e[:]) }

func TestPushNineElementsMatchesScenario(t *testing.T) {
	// Scenario 1 of §8: nine pushes of TestElem([0,0,0,k]) for k=1..8 then
	// TestElem([1,0,0,0]) land at unpruned size 16 with peaks [14, 15] and
	// a root hashing those two peaks together.
	backend := NewMemBackend()
	p := New(backend, nil)

	for k := byte(1); k <= 8; k++ {
		_, err := p.Push(testElem{0, 0, 0, k})
		require.NoError(t, err)
	}
	_, err := p.Push(testElem{1, 0, 0, 0})
	require.NoError(t, err)

	require.Equal(t, uint64(16), p.UnprunedSize())
	require.Equal(t, []uint64{14, 15}, Peaks(p.UnprunedSize()))

	h14, ok := p.GetHash(14)
	require.True(t, ok)
	h15, ok := p.GetHash(15)
	require.True(t, ok)
	require.Equal(t, HashParent(16, h14, h15), p.Root())
}

func TestMerkleProofVerifiesEveryLiveLeaf(t *testing.T) {
	backend := NewMemBackend()
	p := New(backend, nil)

	var leafPos []uint64
	for k := byte(1); k <= 20; k++ {
		pos, err := p.Push(testElem{0, 0, 0, k})
		require.NoError(t, err)
		leafPos = append(leafPos, pos)
	}

	root := p.Root()
	for i, pos := range leafPos {
		proof, err := p.MerkleProof(pos)
		require.NoError(t, err)
		leafHash := testElem{0, 0, 0, byte(i + 1)}.HashWithIndex(pos)
		require.True(t, proof.Verify(root, leafHash, pos), "leaf %d at pos %d", i, pos)
	}
}

func TestRewindIsLeftInverseOfAppend(t *testing.T) {
	backend := NewMemBackend()
	p := New(backend, nil)

	for k := byte(1); k <= 5; k++ {
		_, err := p.Push(testElem{0, 0, 0, k})
		require.NoError(t, err)
	}
	checkpointSize := p.Size
	checkpointRoot := p.Root()

	for k := byte(6); k <= 12; k++ {
		_, err := p.Push(testElem{0, 0, 0, k})
		require.NoError(t, err)
	}
	require.NotEqual(t, checkpointSize, p.Size)

	require.NoError(t, p.Rewind(checkpointSize, nil))
	require.Equal(t, checkpointSize, p.Size)
	require.Equal(t, checkpointRoot, p.Root())
}
