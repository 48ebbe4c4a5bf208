package storage

import (
	"encoding/binary"
	"fmt"
	"math"
)

// encodeVectors packs a vector set as: uint32 count, uint32 dims, then count*dims little-endian
// float32 values.
func encodeVectors(vs [][]float32) []byte {
	dims := 0
	if len(vs) > 0 {
		dims = len(vs[0])
	}
	buf := make([]byte, 8+4*len(vs)*dims)
	binary.LittleEndian.PutUint32(buf[0:], uint32(len(vs)))
	binary.LittleEndian.PutUint32(buf[4:], uint32(dims))
	off := 8
	for _, v := range vs {
		for _, f := range v {
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(f))
			off += 4
		}
	}
	return buf
}

func decodeVectors(b []byte) ([][]float32, error) {
	if len(b) < 8 {
		return nil, fmt.Errorf("vector blob too short: %d bytes", len(b))
	}
	count := int(binary.LittleEndian.Uint32(b[0:]))
	dims := int(binary.LittleEndian.Uint32(b[4:]))
	if len(b) != 8+4*count*dims {
		return nil, fmt.Errorf("vector blob size %d does not match %d x %d", len(b), count, dims)
	}
	out := make([][]float32, count)
	off := 8
	for i := range out {
		v := make([]float32, dims)
		for j := range v {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
			off += 4
		}
		out[i] = v
	}
	return out, nil
}
