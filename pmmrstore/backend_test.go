package pmmrstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mimblewimble/txhashset/mmrtesting"
	"github.com/mimblewimble/txhashset/pmmr"
)

func openFixedBackend(t *testing.T, dir string) *Backend[mmrtesting.TestElem] {
	t.Helper()
	b, err := Open[mmrtesting.TestElem](dir, 4, true, mmrtesting.DecodeTestElem, WithLogger(mmrtesting.NewLogger(t)))
	require.NoError(t, err)
	return b
}

func pushN(t *testing.T, p *pmmr.PMMR, n int) []uint64 {
	t.Helper()
	var positions []uint64
	for k := 1; k <= n; k++ {
		pos, err := p.Push(mmrtesting.NewTestElemFromIndex(byte(k)))
		require.NoError(t, err)
		positions = append(positions, pos)
	}
	return positions
}

func TestBackendPushAndReadRoundTrip(t *testing.T) {
	dir := mmrtesting.TempDir(t)
	b := openFixedBackend(t, dir)
	p := pmmr.New(b, mmrtesting.NewLogger(t))

	positions := pushN(t, p, 9)
	require.NoError(t, b.Commit())

	require.Equal(t, uint64(16), p.UnprunedSize())
	for i, pos := range positions {
		elt, ok := p.GetData(pos)
		require.True(t, ok)
		require.Equal(t, mmrtesting.NewTestElemFromIndex(byte(i+1)), elt)
	}
}

func TestCompactionShrinksHashFileAndPreservesRoot(t *testing.T) {
	// §8 scenario 2: MMR of size 7 (four leaves), prune the first two
	// leaves, compact at the cutoff, and confirm the root is unchanged
	// while the hash file has shrunk.
	dir := mmrtesting.TempDir(t)
	b := openFixedBackend(t, dir)
	p := pmmr.New(b, mmrtesting.NewLogger(t))

	pushN(t, p, 4)
	require.NoError(t, b.Commit())
	require.Equal(t, uint64(7), p.UnprunedSize())

	rootBefore := p.Root()

	ok, err := p.Prune(0)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = p.Prune(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, b.Commit())

	sizeBefore := b.hashes.Size()
	require.NoError(t, b.CheckCompact(7, nil))
	sizeAfter := b.hashes.Size()

	require.Equal(t, sizeBefore-2, sizeAfter)
	require.True(t, b.prune.IsPrunedRoot(2))

	p2 := pmmr.At(b, b.UnprunedSize(), mmrtesting.NewLogger(t))
	require.Equal(t, rootBefore, p2.Root())
}

func TestRewindIsLeftInverseOfAppendOnDisk(t *testing.T) {
	dir := mmrtesting.TempDir(t)
	b := openFixedBackend(t, dir)
	p := pmmr.New(b, mmrtesting.NewLogger(t))

	pushN(t, p, 5)
	require.NoError(t, b.Commit())

	hashPath := filepath.Join(dir, hashFileName)
	dataPath := filepath.Join(dir, dataFileName)
	checkpointHash := hashPath + ".checkpoint"
	checkpointData := dataPath + ".checkpoint"
	mmrtesting.CopyFile(t, hashPath, checkpointHash)
	mmrtesting.CopyFile(t, dataPath, checkpointData)
	checkpointSize := p.Size

	pushN(t, p, 7)
	require.NoError(t, b.Commit())
	require.NotEqual(t, checkpointSize, p.Size)

	require.NoError(t, p.Rewind(checkpointSize, nil))
	require.NoError(t, b.Commit())

	mmrtesting.RequireIdenticalFiles(t, hashPath, checkpointHash)
	mmrtesting.RequireIdenticalFiles(t, dataPath, checkpointData)
}

func TestVariableSizeFileRebuildsAfterTruncatedSizeFile(t *testing.T) {
	// §8 scenario 5: a truncated pmmr_size.bin is rebuilt from the data
	// file's own length-prefix framing on reopen.
	dir := mmrtesting.TempDir(t)
	b, err := Open[mmrtesting.VarTestElem](dir, 0, false, mmrtesting.DecodeVarTestElem, WithLogger(mmrtesting.NewLogger(t)))
	require.NoError(t, err)
	p := pmmr.New(b, mmrtesting.NewLogger(t))

	var positions []uint64
	for i := uint64(0); i < 6; i++ {
		pos, err := p.Push(mmrtesting.NewVarTestElem(i, int(i)))
		require.NoError(t, err)
		positions = append(positions, pos)
	}
	require.NoError(t, b.Commit())
	b.Release()

	sizeFilePath := filepath.Join(dir, sizeFileName)
	require.NoError(t, os.Truncate(sizeFilePath, 3))

	b2, err := Open[mmrtesting.VarTestElem](dir, 0, false, mmrtesting.DecodeVarTestElem, WithLogger(mmrtesting.NewLogger(t)))
	require.NoError(t, err)
	defer b2.Release()

	p2 := pmmr.At(b2, b2.UnprunedSize(), mmrtesting.NewLogger(t))
	for i, pos := range positions {
		elt, ok := p2.GetData(pos)
		require.True(t, ok)
		require.Equal(t, mmrtesting.NewVarTestElem(uint64(i), i), elt)
	}
}

func TestLeafSetSnapshotIsIsolatedFromLiveMutation(t *testing.T) {
	dir := mmrtesting.TempDir(t)
	b := openFixedBackend(t, dir)
	p := pmmr.New(b, mmrtesting.NewLogger(t))

	pushN(t, p, 4)
	require.NoError(t, b.Commit())
	require.NoError(t, b.Snapshot("abc123"))

	snap, err := OpenSnapshot[mmrtesting.TestElem](dir, "abc123", 4, true, mmrtesting.DecodeTestElem, WithLogger(mmrtesting.NewLogger(t)))
	require.NoError(t, err)
	defer snap.Release()

	ok, err := p.Prune(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, b.Commit())

	require.False(t, b.leaves.Includes(0))
	require.True(t, snap.leaves.Includes(0))
}
