package embedder

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeVector packs a float32 vector into the little-endian blob layout that
// sqlite-vec consumes: 4 bytes per component, no header.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

// DecodeVector unpacks a blob written by EncodeVector. The round-trip is
// exact for every finite float32.
func DecodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(blob))
	}
	v := make([]float32, len(blob)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return v, nil
}
