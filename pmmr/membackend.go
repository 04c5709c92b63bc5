package pmmr

// MemBackend is a small in-memory, non-prunable Backend, used for
// short-lived accumulators that never need persistence or compaction —
// the bitmap accumulator over the 1024-bit live-leaf chunks is the only
// consumer in this engine, mirroring the source's own VecBackend used
// for exactly that purpose.
type MemBackend struct {
	hashes []Hash
	data   []Element
}

// NewMemBackend returns an empty in-memory backend.
func NewMemBackend() *MemBackend { return &MemBackend{} }

func (b *MemBackend) Append(leaf Element, hashes []Hash) error {
	b.data = append(b.data, leaf)
	b.hashes = append(b.hashes, hashes...)
	return nil
}

func (b *MemBackend) AppendPrunedSubtree(hash Hash, pos uint64) error {
	b.hashes = append(b.hashes, hash)
	return nil
}

func (b *MemBackend) AppendHash(hash Hash) error {
	b.hashes = append(b.hashes, hash)
	return nil
}

func (b *MemBackend) GetHash(pos uint64) (Hash, bool) { return b.GetFromFile(pos) }

func (b *MemBackend) GetData(pos uint64) (Element, bool) {
	leafIdx, ok := PMMRLeafToInsertionIndex(pos)
	if !ok || leafIdx >= uint64(len(b.data)) {
		return nil, false
	}
	return b.data[leafIdx], true
}

func (b *MemBackend) GetFromFile(pos uint64) (Hash, bool) {
	if pos >= uint64(len(b.hashes)) {
		return Hash{}, false
	}
	return b.hashes[pos], true
}

func (b *MemBackend) GetPeakFromFile(pos uint64) (Hash, bool) { return b.GetFromFile(pos) }

func (b *MemBackend) Remove(pos uint64) error { return nil }

func (b *MemBackend) Rewind(leafPos uint64, rewindRmPos []uint64) error {
	if leafPos <= uint64(len(b.hashes)) {
		b.hashes = b.hashes[:leafPos]
	}
	if nLeaves, ok := PMMRLeafToInsertionIndex(leafPos); ok && nLeaves <= uint64(len(b.data)) {
		b.data = b.data[:nLeaves]
	}
	return nil
}

func (b *MemBackend) ResetPruneList() {}

func (b *MemBackend) UnprunedSize() uint64 { return uint64(len(b.hashes)) }

func (b *MemBackend) DumpStats() {}

// Size is the backend's current unpruned size, used by callers (like the
// bitmap accumulator) that need to reopen a PMMR view without keeping
// their own size bookkeeping.
func (b *MemBackend) Size() uint64 { return uint64(len(b.hashes)) }

// LeafPosIter returns every leaf position in insertion order.
func (b *MemBackend) LeafPosIter() []uint64 {
	out := make([]uint64, 0, len(b.data))
	for i := range b.data {
		out = append(out, InsertionToPMMRIndex(uint64(i)))
	}
	return out
}
