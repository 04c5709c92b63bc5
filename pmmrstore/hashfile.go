package pmmrstore

import (
	"go.uber.org/zap"

	"github.com/mimblewimble/txhashset/pmmr"
	"github.com/mimblewimble/txhashset/txerr"
)

// HashFile is the fixed 32-byte-per-entry typed view over an
// AppendOnlyFile that stores node hashes.
type HashFile struct {
	file *AppendOnlyFile
}

// OpenHashFile opens (or creates) pmmr_hash.bin at path.
func OpenHashFile(path string, log *zap.Logger, opts ...FileOptions) (*HashFile, error) {
	f, err := OpenFixed(path, pmmr.HashSize, log, opts...)
	if err != nil {
		return nil, err
	}
	return &HashFile{file: f}, nil
}

// Append buffers a new hash for the next Flush.
func (h *HashFile) Append(hash pmmr.Hash) error {
	return h.file.Append(hash[:])
}

// Read returns the hash stored at the given element position (already
// shifted to account for pruning by the caller).
func (h *HashFile) Read(pos uint64) (pmmr.Hash, bool) {
	data, err := h.file.Read(pos)
	if err != nil || data == nil || len(data) < pmmr.HashSize {
		return pmmr.Hash{}, false
	}
	var out pmmr.Hash
	copy(out[:], data)
	return out, true
}

// Size returns the element count, including anything only buffered.
func (h *HashFile) Size() uint64 {
	n, err := h.file.SizeInElements()
	if err != nil {
		return 0
	}
	return n
}

// Rewind truncates the logical size to pos elements.
func (h *HashFile) Rewind(pos uint64) { h.file.Rewind(pos) }

// Flush persists buffered writes.
func (h *HashFile) Flush() error { return h.file.Flush() }

// Discard drops buffered writes.
func (h *HashFile) Discard() { h.file.Discard() }

// Release drops file handles and the memory map.
func (h *HashFile) Release() { h.file.Release() }

// WriteTmpPruned streams the file to a .tmp sibling omitting prunePos
// (already shifted element positions), then ReplaceWithTmp installs it.
func (h *HashFile) WriteTmpPruned(prunePos []uint64) error {
	return h.file.WriteTmpPruned(sortedPositions(prunePos))
}

// ReplaceWithTmp installs the .tmp file written by WriteTmpPruned.
func (h *HashFile) ReplaceWithTmp() error { return h.file.ReplaceWithTmp() }

// Path returns the file's on-disk path.
func (h *HashFile) Path() string { return h.file.Path() }

func wrapCorrupted(pos uint64, err error) error {
	return txerr.WithPos(txerr.KindCorruptedData, pos, err)
}
