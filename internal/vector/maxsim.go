package vector

import "math"

// MaxSim is the late-interaction score of a query set against a document set: for every query
// vector take its best match among the document vectors, then sum those maxima. Both sets must be
// prepared with the same Scorer. A single-vector collection is the 1x1 case, which reduces to
// Score. An empty document set scores negative infinity so it never outranks a real match.
func (s Scorer) MaxSim(query, doc [][]float32) float64 {
	if len(doc) == 0 {
		return math.Inf(-1)
	}
	var total float64
	for _, q := range query {
		best := math.Inf(-1)
		for _, v := range doc {
			if sc := s.Score(q, v); sc > best {
				best = sc
			}
		}
		total += best
	}
	return total
}
