// Package vector provides similarity metrics, max-sim aggregation, binary quantization, and the
// resident per-collection indexes searched by the store.
package vector

import (
	"math"

	"github.com/hyperjump/colindex/internal/models"
	"github.com/hyperjump/colindex/pkg/utils"
)

// Scorer computes similarity under one metric. Higher scores are always better: euclid scores
// are negated L2 distances.
type Scorer struct {
	metric models.Metric
}

// NewScorer returns a scorer for metric.
func NewScorer(metric models.Metric) Scorer {
	return Scorer{metric: metric}
}

// Metric returns the scorer's metric.
func (s Scorer) Metric() models.Metric { return s.metric }

// Prepare returns the copy of v that Score expects. For cosine the copy is L2-normalized so that
// callers never need to pre-normalize their inputs.
func (s Scorer) Prepare(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	if s.metric == models.MetricCosine {
		utils.NormalizeL2(out)
	}
	return out
}

// PrepareSet applies Prepare to every vector in vs.
func (s Scorer) PrepareSet(vs [][]float32) [][]float32 {
	out := make([][]float32, len(vs))
	for i, v := range vs {
		out[i] = s.Prepare(v)
	}
	return out
}

// Score returns the similarity of two prepared vectors.
func (s Scorer) Score(a, b []float32) float64 {
	if s.metric == models.MetricEuclid {
		return -math.Sqrt(SquaredL2(a, b))
	}
	return InnerProduct(a, b)
}

// Similarity prepares a and b and scores them. Use Scorer directly when one side is reused.
func Similarity(metric models.Metric, a, b []float32) float64 {
	s := NewScorer(metric)
	return s.Score(s.Prepare(a), s.Prepare(b))
}

// InnerProduct returns the inner product of two vectors, accumulated in float64.
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// SquaredL2 returns the squared Euclidean distance between two vectors.
func SquaredL2(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
