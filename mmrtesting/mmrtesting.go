// Package mmrtesting supplies the shared fixtures used across this
// module's test suites: a deterministic leaf element, a temp-dir harness,
// and byte-for-byte file comparison, following the donor's own
// mmrtesting package (NewTestContext/TestConfig) but scoped to a local,
// disk-backed accumulator instead of a blob-store-backed massif.
package mmrtesting

import (
	"encoding/binary"
	"os"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/mimblewimble/txhashset/pmmr"
)

// TestElem is a fixed 4-byte leaf element, mirroring the donor mmr
// package's own TestElem([4]byte) fixture used throughout its table
// tests.
type TestElem [4]byte

// NewTestElem builds a TestElem from its four big-endian bytes, matching
// the literal scenarios in the specification (e.g. TestElem([0,0,0,k])).
func NewTestElem(a, b, c, d byte) TestElem { return TestElem{a, b, c, d} }

// NewTestElemFromIndex builds the k'th TestElem as the spec's end-to-end
// scenarios do: TestElem([0,0,0,k]) for k in [1,255].
func NewTestElemFromIndex(k byte) TestElem { return TestElem{0, 0, 0, k} }

// Bytes returns the element's 4-byte serialized form.
func (e TestElem) Bytes() ([]byte, error) { return e[:], nil }

// ElementSize reports TestElem's fixed 4-byte size.
func (e TestElem) ElementSize() (int, bool) { return 4, true }

// HashWithIndex hashes the element's bytes at the given position,
// matching the domain-separation rule every leaf in this engine uses.
func (e TestElem) HashWithIndex(pos uint64) pmmr.Hash {
	return pmmr.HashLeaf(pos, e[:])
}

// DecodeTestElem deserializes a TestElem from its 4-byte wire form.
func DecodeTestElem(data []byte) (TestElem, error) {
	var e TestElem
	copy(e[:], data)
	return e, nil
}

var _ pmmr.Element = TestElem{}

// VarTestElem is a variable-length leaf element used to exercise the
// size-file recovery path (§4.B), wrapping an arbitrary byte payload
// instead of TestElem's fixed 4 bytes.
type VarTestElem []byte

// NewVarTestElem builds a variable-size element of 8+extra bytes: idx as
// eight big-endian bytes followed by extra zero bytes, so a caller that
// varies extra gives size-file recovery real variance to reconstruct.
func NewVarTestElem(idx uint64, extra int) VarTestElem {
	buf := make([]byte, 8+extra)
	binary.BigEndian.PutUint64(buf[:8], idx)
	return VarTestElem(buf)
}

// Bytes returns the element's serialized bytes (itself).
func (e VarTestElem) Bytes() ([]byte, error) { return e, nil }

// ElementSize reports that VarTestElem is variable-length.
func (e VarTestElem) ElementSize() (int, bool) { return 0, false }

// HashWithIndex hashes the element's payload at the given position.
func (e VarTestElem) HashWithIndex(pos uint64) pmmr.Hash {
	return pmmr.HashLeaf(pos, e)
}

// DecodeVarTestElem deserializes a VarTestElem, copying data so the
// decoded value does not alias the caller's (possibly mmap'd) buffer.
func DecodeVarTestElem(data []byte) (VarTestElem, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return VarTestElem(out), nil
}

var _ pmmr.Element = VarTestElem(nil)

// TempDir returns a fresh, test-scoped directory, cleaned up automatically
// when t completes — the donor's own pattern for giving every backend
// test an isolated set of pmmr_*.bin files.
func TempDir(t *testing.T) string {
	t.Helper()
	return t.TempDir()
}

// NewLogger returns a zap logger that writes to t.Log, following the
// donor's convention of threading a *zap.Logger into every constructor
// that performs I/O instead of relying on a global logger.
func NewLogger(t *testing.T) *zap.Logger {
	t.Helper()
	return zaptest.NewLogger(t)
}

// RequireIdenticalFiles fails t unless the files at a and b have
// identical contents, used by the rewind-is-a-left-inverse-of-append
// property tests to compare a backend against a checkpoint copy.
func RequireIdenticalFiles(t *testing.T, a, b string) {
	t.Helper()
	da, err := os.ReadFile(a)
	if err != nil {
		t.Fatalf("mmrtesting: reading %s: %v", a, err)
	}
	db, err := os.ReadFile(b)
	if err != nil {
		t.Fatalf("mmrtesting: reading %s: %v", b, err)
	}
	if len(da) != len(db) {
		t.Fatalf("mmrtesting: %s and %s differ in length: %d vs %d", a, b, len(da), len(db))
	}
	for i := range da {
		if da[i] != db[i] {
			t.Fatalf("mmrtesting: %s and %s differ at byte %d", a, b, i)
		}
	}
}

// CopyFile copies src to dst, used to snapshot a backend's files before
// a mutation that a test intends to later reverse and compare against.
func CopyFile(t *testing.T, src, dst string) {
	t.Helper()
	data, err := os.ReadFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		t.Fatalf("mmrtesting: reading %s: %v", src, err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		t.Fatalf("mmrtesting: writing %s: %v", dst, err)
	}
}
