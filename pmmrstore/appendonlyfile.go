// Package pmmrstore implements the disk-backed, prunable PMMR storage
// backend: an append-only byte-stream abstraction, typed hash/data file
// views over it, the leaf-set and prune-list bitmaps, and the backend that
// glues them into the operations pmmr.Backend requires.
package pmmrstore

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/edsrzf/mmap-go"
	"go.uber.org/zap"

	"github.com/mimblewimble/txhashset/txerr"
)

// sizeInfo distinguishes a fixed-size element layout (elmtSize bytes each)
// from a variable-size layout, where a companion size file records each
// element's byte offset and length.
type sizeInfo struct {
	fixed    bool
	elmtSize uint16
	sizeFile *AppendOnlyFile
}

// AppendOnlyFile wraps a single on-disk byte stream that can only be grown
// (append), never edited in place, but which can be read at any position
// via a memory-mapped view, and which supports a buffered tail, a
// rewind/flush/discard cycle, and pruned-rewrite compaction.
//
// Writes land in an in-memory buffer first. flush appends the buffer to
// disk and re-creates the memory map; discard drops the buffer instead.
// rewind sets the logical end of the file to an earlier position and
// remembers the previous end so the next flush truncates the on-disk file
// and the next discard restores the in-memory view without having touched
// disk at all.
type AppendOnlyFile struct {
	path string
	file *os.File
	mm   mmap.MMap

	size sizeInfo

	buffer         []byte
	bufferStartPos uint64
	bufferStartBak uint64

	// needsSizeRebuild is set when OpenVariable finds the size file's
	// recorded lengths don't sum to the data file's byte length. Only the
	// typed DataFile layer (which knows how to frame/deserialize T) can
	// actually rebuild it; see DataFile.rebuildSizeFileIfNeeded.
	needsSizeRebuild bool

	useMmap  bool
	fileMode os.FileMode

	log *zap.Logger
}

// FileOptions carries the subset of pmmrstore.Options that affect how an
// individual AppendOnlyFile is opened: whether reads are served from a
// memory-mapped view and what permission bits new files get.
type FileOptions struct {
	UseMmap  bool
	FileMode os.FileMode
}

func defaultFileOptions() FileOptions {
	return FileOptions{UseMmap: true, FileMode: 0o644}
}

// OpenFixed opens (or creates) an append-only file of fixed-size elements.
func OpenFixed(path string, elmtSize uint16, log *zap.Logger, opts ...FileOptions) (*AppendOnlyFile, error) {
	if log == nil {
		log = zap.NewNop()
	}
	fo := defaultFileOptions()
	if len(opts) > 0 {
		fo = opts[0]
	}
	f := &AppendOnlyFile{
		path:     path,
		size:     sizeInfo{fixed: true, elmtSize: elmtSize},
		useMmap:  fo.UseMmap,
		fileMode: fo.FileMode,
		log:      log,
	}
	if err := f.init(); err != nil {
		return nil, err
	}
	return f, nil
}

// OpenVariable opens (or creates) an append-only file of variable-size
// elements, backed by a companion fixed-size-entry size file. When the two
// disagree it only flags the size file for rebuild (NeedsSizeRebuild); the
// rebuild itself is done by DataFile, which knows the element framing.
func OpenVariable(path string, sizeFilePath string, log *zap.Logger, opts ...FileOptions) (*AppendOnlyFile, error) {
	if log == nil {
		log = zap.NewNop()
	}
	fo := defaultFileOptions()
	if len(opts) > 0 {
		fo = opts[0]
	}
	sizeFile, err := OpenFixed(sizeFilePath, sizeEntryLen, log, fo)
	if err != nil {
		return nil, err
	}
	f := &AppendOnlyFile{
		path:     path,
		size:     sizeInfo{fixed: false, sizeFile: sizeFile},
		useMmap:  fo.UseMmap,
		fileMode: fo.FileMode,
		log:      log,
	}
	if err := f.init(); err != nil {
		return nil, err
	}

	expected, err := f.sizeBytes()
	if err != nil {
		return nil, err
	}
	sum, err := f.sumSizes()
	if err != nil {
		return nil, err
	}
	if sum != expected {
		log.Info("size file inconsistent with data file, rebuild required",
			zap.String("path", sizeFilePath), zap.Uint64("expected", expected), zap.Uint64("sum", sum))
		f.needsSizeRebuild = true
	}
	return f, nil
}

// NeedsSizeRebuild reports whether the size file's recorded lengths failed
// to sum to the data file's byte length on open, meaning a crash landed
// between the data-file flush and the size-file flush (§5's ordering
// guarantee names exactly this window). The caller (DataFile) must rebuild
// it from the data file's own framing before trusting reads by position.
func (f *AppendOnlyFile) NeedsSizeRebuild() bool { return f.needsSizeRebuild }

func (f *AppendOnlyFile) init() error {
	mode := f.fileMode
	if mode == 0 {
		mode = 0o644
	}
	file, err := os.OpenFile(f.path, os.O_RDWR|os.O_CREATE, mode)
	if err != nil {
		return txerr.New(txerr.KindIO, err)
	}
	f.file = file

	sz, err := f.sizeBytes()
	if err != nil {
		return err
	}
	if sz == 0 || !f.useMmap {
		f.bufferStartPos = 0
		if sz > 0 {
			n, err := f.sizeInElements()
			if err != nil {
				return err
			}
			f.bufferStartPos = n
		}
		return nil
	}
	m, err := mmap.Map(file, mmap.RDONLY, 0)
	if err != nil {
		return txerr.New(txerr.KindIO, err)
	}
	f.mm = m
	n, err := f.sizeInElements()
	if err != nil {
		return err
	}
	f.bufferStartPos = n
	return nil
}

func (f *AppendOnlyFile) sizeBytes() (uint64, error) {
	info, err := os.Stat(f.path)
	if err != nil {
		return 0, txerr.New(txerr.KindIO, err)
	}
	return uint64(info.Size()), nil
}

func (f *AppendOnlyFile) sizeInElements() (uint64, error) {
	if f.size.fixed {
		sz, err := f.sizeBytes()
		if err != nil {
			return 0, err
		}
		return sz / uint64(f.size.elmtSize), nil
	}
	return f.size.sizeFile.sizeUnsyncInElements()
}

func (f *AppendOnlyFile) sizeUnsyncInElements() (uint64, error) {
	if f.size.fixed {
		return f.bufferStartPos + uint64(len(f.buffer))/uint64(f.size.elmtSize), nil
	}
	return f.size.sizeFile.sizeUnsyncInElements()
}

// SizeInElements returns the number of elements currently stored
// (including anything still only in the buffer).
func (f *AppendOnlyFile) SizeInElements() (uint64, error) { return f.sizeUnsyncInElements() }

// Append buffers bytes for later flush, recording an offset/length entry
// in the companion size file first when this file holds variable-size
// elements.
func (f *AppendOnlyFile) Append(data []byte) error {
	if !f.size.fixed {
		nextPos, err := f.size.sizeFile.sizeUnsyncInElements()
		if err != nil {
			return err
		}
		var offset uint64
		if nextPos > 0 {
			prev, err := f.size.sizeFile.readElement(nextPos - 1)
			if err != nil {
				return err
			}
			entry := decodeSizeEntry(prev)
			offset = entry.Offset + uint64(entry.Size)
		}
		if err := f.size.sizeFile.Append(encodeSizeEntry(sizeEntry{Offset: offset, Size: uint16(len(data))})); err != nil {
			return err
		}
	}
	f.buffer = append(f.buffer, data...)
	return nil
}

// offsetAndSize returns the byte offset and length of element pos.
func (f *AppendOnlyFile) offsetAndSize(pos uint64) (uint64, uint16, error) {
	if f.size.fixed {
		return pos * uint64(f.size.elmtSize), f.size.elmtSize, nil
	}
	data, err := f.size.sizeFile.readElement(pos)
	if err != nil {
		return 0, 0, err
	}
	entry := decodeSizeEntry(data)
	return entry.Offset, entry.Size, nil
}

// Rewind sets the logical end of the file to pos, remembering the prior
// end so a later flush can truncate and a later discard can restore.
func (f *AppendOnlyFile) Rewind(pos uint64) {
	if !f.size.fixed {
		f.size.sizeFile.Rewind(pos)
	}
	if f.bufferStartBak == 0 {
		f.bufferStartBak = f.bufferStartPos
	}
	f.bufferStartPos = pos
}

// Flush appends the buffer to disk, truncating first if a Rewind is
// pending, then re-creates the memory map.
func (f *AppendOnlyFile) Flush() error {
	if !f.size.fixed {
		if err := f.size.sizeFile.Flush(); err != nil {
			return err
		}
	}

	if f.bufferStartBak > 0 {
		f.mm = nil
		f.file = nil

		var newLen int64
		if f.bufferStartPos == 0 {
			newLen = 0
		} else {
			offset, size, err := f.offsetAndSize(f.bufferStartPos - 1)
			if err != nil {
				return err
			}
			newLen = int64(offset + uint64(size))
		}
		if err := os.Truncate(f.path, newLen); err != nil && !os.IsNotExist(err) {
			return txerr.New(txerr.KindIO, err)
		}
	}

	mode := f.fileMode
	if mode == 0 {
		mode = 0o644
	}
	file, err := os.OpenFile(f.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, mode)
	if err != nil {
		return txerr.New(txerr.KindIO, err)
	}
	f.file = file
	f.bufferStartBak = 0

	if _, err := f.file.Write(f.buffer); err != nil {
		return txerr.New(txerr.KindIO, err)
	}
	if err := f.file.Sync(); err != nil {
		return txerr.New(txerr.KindIO, err)
	}
	f.buffer = nil

	n, err := f.sizeInElements()
	if err != nil {
		return err
	}
	f.bufferStartPos = n

	sz, err := f.sizeBytes()
	if err != nil {
		return err
	}
	if sz == 0 || !f.useMmap {
		f.mm = nil
	} else {
		m, err := mmap.Map(f.file, mmap.RDONLY, 0)
		if err != nil {
			return txerr.New(txerr.KindIO, err)
		}
		f.mm = m
	}
	return nil
}

// Discard drops the buffer and undoes any pending Rewind without touching
// disk.
func (f *AppendOnlyFile) Discard() {
	if f.bufferStartBak > 0 {
		f.bufferStartPos = f.bufferStartBak
		f.bufferStartBak = 0
	}
	if !f.size.fixed {
		f.size.sizeFile.Discard()
	}
	f.buffer = nil
}

// Read returns the bytes for logical element pos, or nil if pos is out of
// range. The returned slice aliases the mmap or the buffer and must not be
// retained past the next Flush.
func (f *AppendOnlyFile) Read(pos uint64) ([]byte, error) {
	n, err := f.sizeUnsyncInElements()
	if err != nil {
		return nil, err
	}
	if pos >= n {
		return nil, nil
	}
	offset, length, err := f.offsetAndSize(pos)
	if err != nil {
		return nil, err
	}
	if pos < f.bufferStartPos {
		return f.readFromMmap(offset, length), nil
	}
	bufOffset, _, err := f.offsetAndSize(f.bufferStartPos)
	if err != nil {
		return nil, err
	}
	rel := int64(offset) - int64(bufOffset)
	if rel < 0 {
		rel = 0
	}
	return f.readFromBuffer(uint64(rel), length), nil
}

func (f *AppendOnlyFile) readElement(pos uint64) ([]byte, error) { return f.Read(pos) }

func (f *AppendOnlyFile) readFromBuffer(offset uint64, length uint16) []byte {
	end := offset + uint64(length)
	if uint64(len(f.buffer)) < end {
		return nil
	}
	return f.buffer[offset:end]
}

func (f *AppendOnlyFile) readFromMmap(offset uint64, length uint16) []byte {
	if f.mm == nil {
		return f.readFromHandle(offset, length)
	}
	end := offset + uint64(length)
	if uint64(len(f.mm)) < end {
		return nil
	}
	return f.mm[offset:end]
}

// readFromHandle serves a read directly off the file handle, used when
// WithMemoryMap(false) disables the mmap'd view.
func (f *AppendOnlyFile) readFromHandle(offset uint64, length uint16) []byte {
	if f.file == nil {
		return nil
	}
	buf := make([]byte, length)
	if _, err := f.file.ReadAt(buf, int64(offset)); err != nil {
		return nil
	}
	return buf
}

func (f *AppendOnlyFile) sumSizes() (uint64, error) {
	if f.size.fixed {
		return 0, fmt.Errorf("pmmrstore: sumSizes called on fixed-size file")
	}
	var sum uint64
	n := f.bufferStartPos
	for pos := uint64(0); pos < n; pos++ {
		data, err := f.size.sizeFile.readElement(pos)
		if err != nil {
			return 0, err
		}
		entry := decodeSizeEntry(data)
		sum += uint64(entry.Size)
	}
	return sum, nil
}

func (f *AppendOnlyFile) tmpPath() string {
	return f.path + ".tmp"
}

// WriteTmpPruned streams the file to a .tmp sibling, skipping the given
// (already sorted, ascending) positions.
func (f *AppendOnlyFile) WriteTmpPruned(prunePos []uint64) error {
	src, err := os.Open(f.path)
	if err != nil {
		return txerr.New(txerr.KindIO, err)
	}
	defer src.Close()

	dst, err := os.Create(f.tmpPath())
	if err != nil {
		return txerr.New(txerr.KindIO, err)
	}
	defer dst.Close()

	skip := make(map[uint64]struct{}, len(prunePos))
	for _, p := range prunePos {
		skip[p] = struct{}{}
	}

	var current uint64
	reader := newElementReader(src, f.size)
	for {
		elem, err := reader.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return txerr.New(txerr.KindCorruptedData, err)
		}
		if _, ok := skip[current]; !ok {
			if _, err := dst.Write(elem); err != nil {
				return txerr.New(txerr.KindIO, err)
			}
		}
		current++
	}
	return nil
}

// ReplaceWithTmp atomically replaces the file with its .tmp counterpart.
// For variable-size files the caller must follow up with
// RebuildFromLengths (via DataFile.rebuildSizeFileIfNeeded) since the size
// file is now stale against the pruned data.
func (f *AppendOnlyFile) ReplaceWithTmp() error {
	if err := f.replace(f.tmpPath()); err != nil {
		return err
	}
	if !f.size.fixed {
		f.needsSizeRebuild = true
	}
	return f.init()
}

func (f *AppendOnlyFile) replace(with string) error {
	f.Release()
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return txerr.New(txerr.KindIO, err)
	}
	if err := os.Rename(with, f.path); err != nil {
		return txerr.New(txerr.KindIO, err)
	}
	return nil
}

// RebuildFromLengths rewrites the size file from a sequence of element
// byte lengths read off the data file by a caller that knows how to frame
// its own element type (see DataFile.rebuildSizeFileIfNeeded).
func (f *AppendOnlyFile) RebuildFromLengths(lengths []uint16) error {
	if f.size.fixed {
		return fmt.Errorf("pmmrstore: RebuildFromLengths called on fixed-size file")
	}
	tmpPath := f.size.sizeFile.path + ".tmp"
	dst, err := os.Create(tmpPath)
	if err != nil {
		return txerr.New(txerr.KindIO, err)
	}
	defer dst.Close()

	var offset uint64
	for _, size := range lengths {
		if _, err := dst.Write(encodeSizeEntry(sizeEntry{Offset: offset, Size: size})); err != nil {
			return txerr.New(txerr.KindIO, err)
		}
		offset += uint64(size)
	}
	if err := f.size.sizeFile.replace(tmpPath); err != nil {
		return err
	}
	return f.size.sizeFile.init()
}

// Release drops the file handle and memory map (and, transitively, the
// size file's).
func (f *AppendOnlyFile) Release() {
	f.mm = nil
	f.file = nil
	if !f.size.fixed && f.size.sizeFile != nil {
		f.size.sizeFile.Release()
	}
}

// Path returns the file's on-disk path.
func (f *AppendOnlyFile) Path() string { return f.path }

// AsTempFile copies the file to a fresh os.CreateTemp file, seeked back to
// the start, giving callers a consistent snapshot without locking the
// live file.
func (f *AppendOnlyFile) AsTempFile() (*os.File, error) {
	src, err := os.Open(f.path)
	if err != nil {
		return nil, txerr.New(txerr.KindIO, err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", filepath.Base(f.path)+"-*")
	if err != nil {
		return nil, txerr.New(txerr.KindIO, err)
	}
	if _, err := io.Copy(tmp, src); err != nil {
		return nil, txerr.New(txerr.KindIO, err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, txerr.New(txerr.KindIO, err)
	}
	return tmp, nil
}

// elementReader streams fixed or variable framed elements from a data
// file for WriteTmpPruned; it relies on the size file already being
// consistent (callers rebuild it first when that is not guaranteed).
type elementReader struct {
	r        io.Reader
	fixed    bool
	elmtSize uint16
	sizeFile *AppendOnlyFile
	pos      uint64
	buf      *bytes.Buffer
}

func newElementReader(r io.Reader, si sizeInfo) *elementReader {
	return &elementReader{r: r, fixed: si.fixed, elmtSize: si.elmtSize, sizeFile: si.sizeFile, buf: &bytes.Buffer{}}
}

func (er *elementReader) next() ([]byte, error) {
	if er.fixed {
		buf := make([]byte, er.elmtSize)
		if _, err := io.ReadFull(er.r, buf); err != nil {
			return nil, err
		}
		return buf, nil
	}
	if er.sizeFile == nil {
		return nil, io.EOF
	}
	data, err := er.sizeFile.readElement(er.pos)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, io.EOF
	}
	entry := decodeSizeEntry(data)
	buf := make([]byte, entry.Size)
	if _, err := io.ReadFull(er.r, buf); err != nil {
		return nil, err
	}
	er.pos++
	return buf, nil
}

// sortedPositions returns a sorted copy of positions, used by compaction
// before it hands removal lists to WriteTmpPruned.
func sortedPositions(positions []uint64) []uint64 {
	out := make([]uint64, len(positions))
	copy(out, positions)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
