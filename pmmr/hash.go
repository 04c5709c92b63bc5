package pmmr

import (
	"crypto/sha256"
	"encoding/binary"
)

// HashSize is the fixed size in bytes of every node hash.
const HashSize = 32

// Hash is a node hash: 32 bytes, domain-separated by the position of the
// node it identifies.
type Hash [HashSize]byte

// ZeroHash is the root reported for an empty MMR.
var ZeroHash Hash

// HashLeaf computes the domain-separated leaf hash H(pos || payload) for
// the leaf at position pos carrying the given serialized payload.
func HashLeaf(pos uint64, payload []byte) Hash {
	h := sha256.New()
	writeUint64(h, pos)
	h.Write(payload)
	var out Hash
	h.Sum(out[:0])
	return out
}

// HashParent computes the domain-separated interior node hash
// H(parentPos || left || right) for a node formed by combining two
// children.
func HashParent(parentPos uint64, left, right Hash) Hash {
	h := sha256.New()
	writeUint64(h, parentPos)
	h.Write(left[:])
	h.Write(right[:])
	var out Hash
	h.Sum(out[:0])
	return out
}

// writeUint64 writes value to hasher in big-endian layout, matching the
// wire layout used for every other multi-byte integer on disk.
func writeUint64(hasher interface{ Write([]byte) (int, error) }, value uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], value)
	hasher.Write(b[:])
}
