package embedding

import "context"

// CachedEmbedder memoizes another embedder's results by text.
type CachedEmbedder struct {
	Embedder
	pooled *EmbeddingCache[[]float32]
	tokens *EmbeddingCache[[][]float32]
}

// NewCachedEmbedder wraps e with LRU caches of the given capacity. capacity <= 0 returns e unchanged.
func NewCachedEmbedder(e Embedder, capacity int) Embedder {
	if capacity <= 0 {
		return e
	}
	return &CachedEmbedder{
		Embedder: e,
		pooled:   NewEmbeddingCache[[]float32](capacity),
		tokens:   NewEmbeddingCache[[][]float32](capacity),
	}
}

// Embed returns the cached pooled vector or computes and caches it.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.pooled.Get(text); ok {
		return v, nil
	}
	v, err := c.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.pooled.Set(text, v)
	return v, nil
}

// EmbedTokens returns the cached token vectors or computes and caches them.
func (c *CachedEmbedder) EmbedTokens(ctx context.Context, text string) ([][]float32, error) {
	if v, ok := c.tokens.Get(text); ok {
		return v, nil
	}
	v, err := c.Embedder.EmbedTokens(ctx, text)
	if err != nil {
		return nil, err
	}
	c.tokens.Set(text, v)
	return v, nil
}
