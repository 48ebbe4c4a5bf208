package embedding

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/hyperjump/colindex/internal/models"
	"github.com/hyperjump/colindex/pkg/utils"
)

// DefaultMaxTokens caps the token vectors produced for one text.
const DefaultMaxTokens = 256

// HashEmbedder is a deterministic embedder with no model: every token maps to a fixed
// pseudo-random unit vector seeded by its hash, so equal tokens always embed equally and texts
// sharing words score higher. It stands in for a real model in tests and offline pipelines.
type HashEmbedder struct {
	dimensions int
	maxTokens  int
}

// NewHashEmbedder returns an embedder producing vectors of the given dimensions.
func NewHashEmbedder(dimensions, maxTokens int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &HashEmbedder{dimensions: dimensions, maxTokens: maxTokens}
}

func (e *HashEmbedder) tokenVector(token string) []float32 {
	h := HashString(token)
	r := rand.New(rand.NewPCG(h, h^0x9e3779b97f4a7c15))
	v := make([]float32, e.dimensions)
	for i := range v {
		v[i] = float32(r.NormFloat64())
	}
	utils.NormalizeL2(v)
	return v
}

// EmbedTokens returns one unit vector per token.
func (e *HashEmbedder) EmbedTokens(ctx context.Context, text string) ([][]float32, error) {
	tokens := Tokens(text, e.maxTokens)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: text has no tokens", models.ErrEmptyQuery)
	}
	out := make([][]float32, len(tokens))
	for i, tok := range tokens {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		out[i] = e.tokenVector(tok)
	}
	return out, nil
}

// Embed returns the normalized mean of the token vectors.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	tokens, err := e.EmbedTokens(ctx, text)
	if err != nil {
		return nil, err
	}
	return MeanPool(tokens), nil
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for HashEmbedder.
func (e *HashEmbedder) Close() error {
	return nil
}

// MeanPool averages vectors and normalizes the result to unit length.
func MeanPool(vs [][]float32) []float32 {
	if len(vs) == 0 {
		return nil
	}
	out := make([]float32, len(vs[0]))
	for _, v := range vs {
		for i, x := range v {
			out[i] += x
		}
	}
	for i := range out {
		out[i] /= float32(len(vs))
	}
	utils.NormalizeL2(out)
	return out
}
