package pmmrstore

import (
	"go.uber.org/zap"

	"github.com/mimblewimble/txhashset/pmmr"
)

// Decoder deserializes a leaf element from its on-disk byte form. Supplied
// by the caller for whichever concrete element type a DataFile stores;
// this is the entire "Readable" half of the source's
// PMMRable/Hashed/DefaultHashable trait chain.
type Decoder[T pmmr.Element] func(data []byte) (T, error)

// DataFile is the typed view over an AppendOnlyFile storing leaf elements,
// fixed or variable size.
type DataFile[T pmmr.Element] struct {
	file    *AppendOnlyFile
	decode  Decoder[T]
	log     *zap.Logger
}

// OpenDataFileFixed opens (or creates) a fixed-element-size data file.
func OpenDataFileFixed[T pmmr.Element](path string, elmtSize uint16, decode Decoder[T], log *zap.Logger, opts ...FileOptions) (*DataFile[T], error) {
	f, err := OpenFixed(path, elmtSize, log, opts...)
	if err != nil {
		return nil, err
	}
	return &DataFile[T]{file: f, decode: decode, log: log}, nil
}

// OpenDataFileVariable opens (or creates) a variable-element-size data
// file with its companion size file, rebuilding the size file from the
// data file's own framing if the two were found inconsistent on open.
func OpenDataFileVariable[T pmmr.Element](path, sizeFilePath string, decode Decoder[T], log *zap.Logger, opts ...FileOptions) (*DataFile[T], error) {
	f, err := OpenVariable(path, sizeFilePath, log, opts...)
	if err != nil {
		return nil, err
	}
	df := &DataFile[T]{file: f, decode: decode, log: log}
	if f.NeedsSizeRebuild() {
		if err := df.rebuildSizeFileIfNeeded(); err != nil {
			return nil, err
		}
	}
	return df, nil
}

// rebuildSizeFileIfNeeded scans the data file's 2-byte length prefixes
// (scanLengths), recording each element's framed length, and rewrites the
// size file from them; elements are not decoded.
func (d *DataFile[T]) rebuildSizeFileIfNeeded() error {
	lengths, err := d.scanLengths()
	if err != nil {
		return err
	}
	if err := d.file.RebuildFromLengths(lengths); err != nil {
		return err
	}
	return d.file.init()
}

// scanLengths recovers each element's framed byte length (2-byte prefix
// plus payload) directly from the data file's own length prefixes, the
// self-delimiting framing this package adds in front of every
// variable-size element precisely so the size file can be rebuilt without
// needing to fully deserialize T. The recorded length matches what the
// live Append path stores in the size file — the whole framed record, not
// just the payload — so a rebuilt size file produces the same
// offset/length pairs a normal Append would have.
func (d *DataFile[T]) scanLengths() ([]uint16, error) {
	raw, err := readFileBytes(d.file.path)
	if err != nil {
		return nil, err
	}
	var lengths []uint16
	offset := 0
	for offset+2 <= len(raw) {
		_, consumed, err := peekLength(raw[offset:])
		if err != nil {
			return nil, err
		}
		lengths = append(lengths, uint16(consumed))
		offset += consumed
	}
	return lengths, nil
}

// Append buffers a new element for the next Flush. Variable-size elements
// are framed with a 2-byte big-endian length prefix so the size file can
// be rebuilt from the data file alone after a crash (§4.B recovery).
func (d *DataFile[T]) Append(elt T) error {
	data, err := elt.Bytes()
	if err != nil {
		return err
	}
	if _, fixed := elt.ElementSize(); fixed {
		return d.file.Append(data)
	}
	return d.file.Append(frameVariable(data))
}

// Read returns the element at the given (already shift-adjusted) position.
func (d *DataFile[T]) Read(pos uint64) (T, bool) {
	var zero T
	data, err := d.file.Read(pos)
	if err != nil || data == nil {
		return zero, false
	}
	if !d.file.size.fixed {
		data = unframeVariable(data)
	}
	elt, err := d.decode(data)
	if err != nil {
		return zero, false
	}
	return elt, true
}

// Size returns the element count.
func (d *DataFile[T]) Size() uint64 {
	n, err := d.file.SizeInElements()
	if err != nil {
		return 0
	}
	return n
}

// Rewind truncates the logical size to pos elements.
func (d *DataFile[T]) Rewind(pos uint64) { d.file.Rewind(pos) }

// Flush persists buffered writes.
func (d *DataFile[T]) Flush() error { return d.file.Flush() }

// Discard drops buffered writes.
func (d *DataFile[T]) Discard() { d.file.Discard() }

// Release drops file handles and the memory map.
func (d *DataFile[T]) Release() { d.file.Release() }

// WriteTmpPruned streams the file to a .tmp sibling omitting leafPos
// (already shifted leaf-index positions).
func (d *DataFile[T]) WriteTmpPruned(leafPos []uint64) error {
	return d.file.WriteTmpPruned(sortedPositions(leafPos))
}

// ReplaceWithTmp installs the .tmp file, then rebuilds the size file to
// match the now-pruned data.
func (d *DataFile[T]) ReplaceWithTmp() error {
	if err := d.file.ReplaceWithTmp(); err != nil {
		return err
	}
	if d.file.NeedsSizeRebuild() {
		return d.rebuildSizeFileIfNeeded()
	}
	return nil
}

// Path returns the file's on-disk path.
func (d *DataFile[T]) Path() string { return d.file.Path() }
