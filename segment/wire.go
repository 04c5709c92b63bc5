package segment

import (
	"encoding/binary"
	"io"

	"github.com/mimblewimble/txhashset/pmmr"
	"github.com/mimblewimble/txhashset/txerr"
)

// Decoder deserializes one leaf element's wire bytes, mirroring
// pmmrstore.Decoder for the data file.
type Decoder[T pmmr.Element] func([]byte) (T, error)

// EncodeIdentifier writes the fixed-width wire form of id: a one-byte
// height followed by an eight-byte big-endian index.
func EncodeIdentifier(w io.Writer, id Identifier) error {
	var buf [9]byte
	buf[0] = id.Height
	binary.BigEndian.PutUint64(buf[1:], id.Idx)
	_, err := w.Write(buf[:])
	return err
}

// DecodeIdentifier reads the wire form written by EncodeIdentifier.
func DecodeIdentifier(r io.Reader) (Identifier, error) {
	var buf [9]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Identifier{}, txerr.New(txerr.KindIO, err)
	}
	return Identifier{Height: buf[0], Idx: binary.BigEndian.Uint64(buf[1:])}, nil
}

// EncodeProof writes n followed by n raw 32-byte hashes.
func EncodeProof(w io.Writer, p Proof) error {
	if err := writeUint64(w, uint64(len(p.Hashes))); err != nil {
		return err
	}
	for _, h := range p.Hashes {
		if _, err := w.Write(h[:]); err != nil {
			return err
		}
	}
	return nil
}

// DecodeProof reads the wire form written by EncodeProof.
func DecodeProof(r io.Reader) (Proof, error) {
	n, err := readUint64(r)
	if err != nil {
		return Proof{}, err
	}
	if n == 0 {
		return Proof{}, nil
	}
	hashes := make([]pmmr.Hash, n)
	for i := range hashes {
		if _, err := io.ReadFull(r, hashes[i][:]); err != nil {
			return Proof{}, txerr.New(txerr.KindIO, err)
		}
	}
	return Proof{Hashes: hashes}, nil
}

// Encode writes s's wire form (§6): identifier, then each interior hash
// keyed by its 1-based position, then each leaf keyed the same way, then
// the proof. A fixed-size leaf is written as its raw bytes; a leaf whose
// ElementSize reports variable size is preceded by its u64 byte length.
func Encode[T pmmr.Element](w io.Writer, s Segment[T]) error {
	if err := EncodeIdentifier(w, s.ID); err != nil {
		return err
	}

	if err := writeUint64(w, uint64(len(s.Hashes))); err != nil {
		return err
	}
	for _, pos := range s.HashPos {
		if err := writeUint64(w, 1+pos); err != nil {
			return err
		}
	}
	for _, h := range s.Hashes {
		if _, err := w.Write(h[:]); err != nil {
			return err
		}
	}

	if err := writeUint64(w, uint64(len(s.LeafData))); err != nil {
		return err
	}
	for _, pos := range s.LeafPos {
		if err := writeUint64(w, 1+pos); err != nil {
			return err
		}
	}
	for _, data := range s.LeafData {
		raw, err := data.Bytes()
		if err != nil {
			return err
		}
		if _, fixed := data.ElementSize(); !fixed {
			if err := writeUint64(w, uint64(len(raw))); err != nil {
				return err
			}
		}
		if _, err := w.Write(raw); err != nil {
			return err
		}
	}

	return EncodeProof(w, s.Proof)
}

// Decode reads the wire form written by Encode. elmtSize and fixed
// describe the leaf element's layout, matching the backend it was
// extracted from.
func Decode[T pmmr.Element](r io.Reader, elmtSize uint16, fixed bool, decode Decoder[T]) (Segment[T], error) {
	id, err := DecodeIdentifier(r)
	if err != nil {
		return Segment[T]{}, err
	}

	nHashes, err := readUint64(r)
	if err != nil {
		return Segment[T]{}, err
	}
	hashPos := make([]uint64, nHashes)
	var last uint64
	for i := range hashPos {
		pos, err := readUint64(r)
		if err != nil {
			return Segment[T]{}, err
		}
		if pos <= last {
			return Segment[T]{}, txerr.New(txerr.KindCorruptedData, nil)
		}
		last = pos
		hashPos[i] = pos - 1
	}
	hashes := make([]pmmr.Hash, nHashes)
	for i := range hashes {
		if _, err := io.ReadFull(r, hashes[i][:]); err != nil {
			return Segment[T]{}, txerr.New(txerr.KindIO, err)
		}
	}

	nLeaves, err := readUint64(r)
	if err != nil {
		return Segment[T]{}, err
	}
	leafPos := make([]uint64, nLeaves)
	last = 0
	for i := range leafPos {
		pos, err := readUint64(r)
		if err != nil {
			return Segment[T]{}, err
		}
		if pos <= last {
			return Segment[T]{}, txerr.New(txerr.KindCorruptedData, nil)
		}
		last = pos
		leafPos[i] = pos - 1
	}
	leafData := make([]T, nLeaves)
	for i := range leafData {
		var raw []byte
		if fixed {
			raw = make([]byte, elmtSize)
			if _, err := io.ReadFull(r, raw); err != nil {
				return Segment[T]{}, txerr.New(txerr.KindIO, err)
			}
		} else {
			n, err := readUint64(r)
			if err != nil {
				return Segment[T]{}, err
			}
			raw = make([]byte, n)
			if _, err := io.ReadFull(r, raw); err != nil {
				return Segment[T]{}, txerr.New(txerr.KindIO, err)
			}
		}
		elt, err := decode(raw)
		if err != nil {
			return Segment[T]{}, err
		}
		leafData[i] = elt
	}

	proof, err := DecodeProof(r)
	if err != nil {
		return Segment[T]{}, err
	}
	if nHashes == 0 {
		hashPos, hashes = nil, nil
	}
	if nLeaves == 0 {
		leafPos, leafData = nil, nil
	}

	return Segment[T]{ID: id, HashPos: hashPos, Hashes: hashes, LeafPos: leafPos, LeafData: leafData, Proof: proof}, nil
}

func writeUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, txerr.New(txerr.KindIO, err)
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}
