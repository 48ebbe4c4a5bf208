package vector

import "math/bits"

// BinaryCode is a vector reduced to one sign bit per component, packed into uint64 words.
type BinaryCode []uint64

// EncodeBinary quantizes v by sign: components >= 0 become 1, the rest 0. Bit i of the vector
// lives in word i/64 at position i%64.
func EncodeBinary(v []float32) BinaryCode {
	code := make(BinaryCode, (len(v)+63)/64)
	for i, x := range v {
		if x >= 0 {
			code[i/64] |= 1 << (uint(i) % 64)
		}
	}
	return code
}

// EncodeBinarySet quantizes every vector in vs.
func EncodeBinarySet(vs [][]float32) []BinaryCode {
	out := make([]BinaryCode, len(vs))
	for i, v := range vs {
		out[i] = EncodeBinary(v)
	}
	return out
}

// HammingDistance counts the differing bits of two codes of equal length.
func HammingDistance(a, b BinaryCode) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dist int
	for i := 0; i < n; i++ {
		dist += bits.OnesCount64(a[i] ^ b[i])
	}
	return dist
}

// BinarySimilarity is the inner product of the ±1 vectors the codes stand for: agreeing bits
// minus disagreeing bits, in [-dims, dims].
func BinarySimilarity(a, b BinaryCode, dims int) float64 {
	return float64(dims - 2*HammingDistance(a, b))
}

// BinaryMaxSim is MaxSim computed on codes, used to pick candidates before exact rescoring.
func BinaryMaxSim(query, doc []BinaryCode, dims int) float64 {
	if len(doc) == 0 {
		return float64(-dims) * float64(len(query)+1)
	}
	var total float64
	for _, q := range query {
		best := float64(-dims - 1)
		for _, v := range doc {
			if sc := BinarySimilarity(q, v, dims); sc > best {
				best = sc
			}
		}
		total += best
	}
	return total
}
