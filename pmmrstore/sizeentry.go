package pmmrstore

import "encoding/binary"

// sizeEntryLen is the fixed on-disk width of a size-file record: an 8-byte
// big-endian offset followed by a 2-byte big-endian length.
const sizeEntryLen = 10

// sizeEntry is a single record of pmmr_size.bin: the byte offset and
// length of one variable-size element in the companion data file.
type sizeEntry struct {
	Offset uint64
	Size   uint16
}

func encodeSizeEntry(e sizeEntry) []byte {
	buf := make([]byte, sizeEntryLen)
	binary.BigEndian.PutUint64(buf[0:8], e.Offset)
	binary.BigEndian.PutUint16(buf[8:10], e.Size)
	return buf
}

func decodeSizeEntry(data []byte) sizeEntry {
	if len(data) < sizeEntryLen {
		return sizeEntry{}
	}
	return sizeEntry{
		Offset: binary.BigEndian.Uint64(data[0:8]),
		Size:   binary.BigEndian.Uint16(data[8:10]),
	}
}
