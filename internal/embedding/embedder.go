// Package embedding defines the embedder boundary, a deterministic hash embedder, and caching.
package embedding

import "context"

// Embedder produces vector embeddings for text. Embed returns one pooled vector for
// single-vector collections; EmbedTokens returns one vector per token for late-interaction
// (multi-vector) collections.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedTokens(ctx context.Context, text string) ([][]float32, error)
	Dimensions() int
	Close() error
}
