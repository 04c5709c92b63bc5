package pmmr

// Element is the contract a leaf value must satisfy to be stored in a PMMR.
// It replaces the source's PMMRable/Hashed/DefaultHashable trait chain with
// a single small interface: a serializer, a size hint, and a
// position-bound hash.
type Element interface {
	// Bytes returns the element's serialized form, as written to the data
	// file.
	Bytes() ([]byte, error)

	// ElementSize returns the fixed on-disk size of the element, or false
	// when elements of this type are variable-length (in which case the
	// companion size file records each element's actual length).
	ElementSize() (size int, fixed bool)

	// HashWithIndex returns the domain-separated leaf hash for this
	// element at the given postorder position.
	HashWithIndex(pos uint64) Hash
}

// Backend is the storage capability a PMMR needs from whatever holds its
// nodes: append new leaves/hashes, read hashes and data back, remove and
// rewind, and report diagnostics. The on-disk prunable backend and an
// in-memory slice-backed backend (used in tests) both satisfy it.
type Backend interface {
	// Append stores a new leaf together with hashes: the leaf's own hash
	// followed by the hashes of any ancestors it completes.
	Append(leaf Element, hashes []Hash) error

	// AppendPrunedSubtree stores the hash of a subtree root being
	// restored without its leaves (e.g. received from a peer during
	// fast sync).
	AppendPrunedSubtree(hash Hash, pos uint64) error

	// AppendHash stores a single interior hash, used while backfilling
	// ancestors above a restored pruned subtree.
	AppendHash(hash Hash) error

	// GetHash returns the hash at pos, honoring the leaf set (a pruned
	// or removed leaf is absent).
	GetHash(pos uint64) (Hash, bool)

	// GetData returns the leaf element at pos, or false if pos is not a
	// live leaf.
	GetData(pos uint64) (Element, bool)

	// GetFromFile returns the hash at pos straight from the hash file,
	// ignoring the leaf set (used to build proofs that must still cover
	// spent-but-not-yet-compacted leaves).
	GetFromFile(pos uint64) (Hash, bool)

	// GetPeakFromFile returns the hash at pos, a position known to be an
	// uncompacted peak.
	GetPeakFromFile(pos uint64) (Hash, bool)

	// Remove clears the leaf-set bit for a leaf position. It never
	// touches the hash or data files.
	Remove(pos uint64) error

	// Rewind truncates the backend to leafPos (already rounded up to a
	// leaf boundary) and re-admits the positions in rewindRmPos to the
	// leaf set.
	Rewind(leafPos uint64, rewindRmPos []uint64) error

	// ResetPruneList clears the prune list (used only by the in-memory
	// test backend).
	ResetPruneList()

	// UnprunedSize returns the total node count, including pruned and
	// removed positions.
	UnprunedSize() uint64

	// DumpStats writes backend diagnostics to the log.
	DumpStats()
}
