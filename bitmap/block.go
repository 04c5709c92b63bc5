package bitmap

import (
	"io"

	"github.com/mimblewimble/txhashset/txerr"
)

// Block-level wire constants (§6). NBits is 2^16 bits per block; NChunks
// is how many 1024-bit chunks that spans.
const (
	NBits   = 1 << 16
	NChunks = NBits / ChunkBits
)

// blockMode tags which of the three encodings a Block chose.
type blockMode uint8

const (
	modeRaw blockMode = iota
	modePositive
	modeNegative
)

// Block is 2^16 bits (up to 64 chunks) serialized with whichever of three
// encodings is cheapest: raw bytes, positive indices of set bits, or
// positive indices of clear bits.
type Block struct {
	bits []bool // len is nChunks * ChunkBits
}

// NewBlock returns an all-clear block spanning nChunks chunks.
func NewBlock(nChunks int) *Block {
	return &Block{bits: make([]bool, nChunks*ChunkBits)}
}

// NChunks returns how many chunks this block spans.
func (b *Block) NChunks() int { return len(b.bits) / ChunkBits }

// Set assigns bit i (0-based within the block) to value.
func (b *Block) Set(i int, value bool) { b.bits[i] = value }

// Get reports whether bit i is set.
func (b *Block) Get(i int) bool { return b.bits[i] }

// Encode writes b's wire form: one byte of chunk count, one mode byte,
// then the mode-specific payload.
func (b *Block) Encode(w io.Writer) error {
	length := len(b.bits)
	if length > NBits {
		return txerr.New(txerr.KindTooLarge, nil)
	}
	if _, err := w.Write([]byte{byte(length / ChunkBits)}); err != nil {
		return err
	}

	countPos := 0
	for _, v := range b.bits {
		if v {
			countPos++
		}
	}
	countNeg := length - countPos
	threshold := NBits / 16

	switch {
	case countPos < threshold:
		if err := writeMode(w, modePositive); err != nil {
			return err
		}
		if err := writeUint16(w, uint16(countPos)); err != nil {
			return err
		}
		for i, v := range b.bits {
			if v {
				if err := writeUint16(w, uint16(i)); err != nil {
					return err
				}
			}
		}
	case countNeg < threshold:
		if err := writeMode(w, modeNegative); err != nil {
			return err
		}
		if err := writeUint16(w, uint16(countNeg)); err != nil {
			return err
		}
		for i, v := range b.bits {
			if !v {
				if err := writeUint16(w, uint16(i)); err != nil {
					return err
				}
			}
		}
	default:
		if err := writeMode(w, modeRaw); err != nil {
			return err
		}
		raw := packBits(b.bits)
		if _, err := w.Write(raw); err != nil {
			return err
		}
	}
	return nil
}

// DecodeBlock reads the wire form written by Encode, rejecting a chunk
// count above NChunks (§6, §7 TooLarge).
func DecodeBlock(r io.Reader) (*Block, error) {
	var hdr [1]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, txerr.New(txerr.KindIO, err)
	}
	nChunks := int(hdr[0])
	if nChunks > NChunks {
		return nil, txerr.New(txerr.KindTooLarge, nil)
	}
	nBits := nChunks * ChunkBits

	mode, err := readMode(r)
	if err != nil {
		return nil, err
	}

	bits := make([]bool, nBits)
	switch mode {
	case modeRaw:
		raw := make([]byte, nBits/8)
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, txerr.New(txerr.KindIO, err)
		}
		unpackBits(raw, bits)
	case modePositive:
		n, err := readUint16(r)
		if err != nil {
			return nil, err
		}
		for i := uint16(0); i < n; i++ {
			idx, err := readUint16(r)
			if err != nil {
				return nil, err
			}
			bits[idx] = true
		}
	case modeNegative:
		for i := range bits {
			bits[i] = true
		}
		n, err := readUint16(r)
		if err != nil {
			return nil, err
		}
		for i := uint16(0); i < n; i++ {
			idx, err := readUint16(r)
			if err != nil {
				return nil, err
			}
			bits[idx] = false
		}
	default:
		return nil, txerr.New(txerr.KindCorruptedData, nil)
	}
	return &Block{bits: bits}, nil
}

func packBits(bits []bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, v := range bits {
		if v {
			out[i/8] |= 1 << (7 - uint(i%8))
		}
	}
	return out
}

func unpackBits(raw []byte, bits []bool) {
	for i := range bits {
		bits[i] = raw[i/8]&(1<<(7-uint(i%8))) != 0
	}
}

func writeMode(w io.Writer, m blockMode) error {
	_, err := w.Write([]byte{byte(m)})
	return err
}

func readMode(r io.Reader) (blockMode, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, txerr.New(txerr.KindIO, err)
	}
	return blockMode(buf[0]), nil
}

func writeUint16(w io.Writer, v uint16) error {
	_, err := w.Write([]byte{byte(v >> 8), byte(v)})
	return err
}

func readUint16(r io.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, txerr.New(txerr.KindIO, err)
	}
	return uint16(buf[0])<<8 | uint16(buf[1]), nil
}
