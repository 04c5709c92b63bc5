package pmmrstore

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/mimblewimble/txhashset/txerr"
)

// frameVariable prepends a 2-byte big-endian length to a variable-size
// element's serialized bytes, so the size file can be rebuilt by scanning
// the data file alone after a crash, without needing to fully deserialize
// every element (§4.B).
func frameVariable(data []byte) []byte {
	out := make([]byte, 2+len(data))
	binary.BigEndian.PutUint16(out[:2], uint16(len(data)))
	copy(out[2:], data)
	return out
}

// unframeVariable strips the 2-byte length prefix added by frameVariable.
func unframeVariable(framed []byte) []byte {
	if len(framed) < 2 {
		return nil
	}
	return framed[2:]
}

// peekLength reads the 2-byte frame length at the start of buf, returning
// the payload length and the total bytes consumed (prefix + payload).
func peekLength(buf []byte) (uint16, int, error) {
	if len(buf) < 2 {
		return 0, 0, fmt.Errorf("pmmrstore: truncated element frame")
	}
	n := binary.BigEndian.Uint16(buf[:2])
	total := 2 + int(n)
	if len(buf) < total {
		return 0, 0, fmt.Errorf("pmmrstore: truncated element frame, want %d bytes have %d", total, len(buf))
	}
	return n, total, nil
}

func readFileBytes(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, txerr.New(txerr.KindIO, err)
	}
	return data, nil
}
