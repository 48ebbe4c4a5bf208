// Package search resolves caller queries against the vector store: defaults and caps top-k,
// embeds text queries with the collection's layout, and ranks the results.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/colindex/internal/config"
	"github.com/hyperjump/colindex/internal/embedding"
	"github.com/hyperjump/colindex/internal/models"
	"go.uber.org/zap"
)

// Store is the part of the vector store the engine reads from.
type Store interface {
	Collection(ctx context.Context, name string) (*models.CollectionInfo, error)
	Search(ctx context.Context, name string, req *models.SearchRequest) ([]*models.ScoredPoint, error)
}

// Engine runs similarity queries.
type Engine struct {
	store    Store
	embedder embedding.Embedder
	config   config.SearchConfig
	logger   *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a logger for query debug output.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithEmbedder enables text queries.
func WithEmbedder(emb embedding.Embedder) EngineOption {
	return func(e *Engine) { e.embedder = emb }
}

// NewEngine creates a search engine. It rejects a non-positive default top-k; a max below the
// default is raised to the default.
func NewEngine(store Store, cfg config.SearchConfig, opts ...EngineOption) (*Engine, error) {
	if cfg.DefaultTopK <= 0 {
		return nil, fmt.Errorf("%w: default top-k must be positive, got %d", models.ErrConfiguration, cfg.DefaultTopK)
	}
	if cfg.MaxTopK < cfg.DefaultTopK {
		cfg.MaxTopK = cfg.DefaultTopK
	}
	e := &Engine{store: store, config: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// DefaultTopK is the result count callers should use when a request leaves it out.
func (e *Engine) DefaultTopK() int {
	return e.config.DefaultTopK
}

func (e *Engine) checkTopK(topK int) error {
	switch {
	case topK <= 0:
		return fmt.Errorf("%w: top_k must be positive, got %d", models.ErrConfiguration, topK)
	case topK > e.config.MaxTopK:
		return fmt.Errorf("%w: top_k %d exceeds the limit of %d", models.ErrConfiguration, topK, e.config.MaxTopK)
	}
	return nil
}

// Search runs q and returns ranked results in store order.
func (e *Engine) Search(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, error) {
	startTime := time.Now()
	if q == nil || q.Collection == "" {
		return nil, fmt.Errorf("%w: collection is required", models.ErrConfiguration)
	}
	topK := q.TopK
	if err := e.checkTopK(topK); err != nil {
		return nil, err
	}
	var err error
	text := strings.TrimSpace(q.Text)
	vectors := q.Vectors
	switch {
	case !vectors.IsZero() && text != "":
		return nil, fmt.Errorf("%w: give either a query vector or query text, not both", models.ErrConfiguration)
	case vectors.IsZero() && text == "":
		return nil, fmt.Errorf("%w: query has no vector and no text", models.ErrEmptyQuery)
	case vectors.IsZero():
		vectors, err = e.embedText(ctx, q.Collection, text)
		if err != nil {
			return nil, err
		}
	}

	points, err := e.store.Search(ctx, q.Collection, &models.SearchRequest{
		Vectors: vectors,
		TopK:    topK,
		Filter:  q.Filter,
	})
	if err != nil {
		return nil, err
	}

	response := &models.SearchResponse{
		Collection: q.Collection,
		Results:    make([]*models.SearchResult, 0, len(points)),
		Total:      len(points),
		TopK:       topK,
		Text:       text,
	}
	for i, p := range points {
		response.Results = append(response.Results, &models.SearchResult{
			Reference: p.ID,
			Score:     p.Score,
			Rank:      i + 1,
			Payload:   p.Payload,
		})
	}
	response.QueryTime = time.Since(startTime).Milliseconds()
	e.logger.Debug("search completed",
		zap.String("collection", q.Collection),
		zap.Int("top_k", topK),
		zap.Int("results", len(points)),
		zap.Bool("text", text != ""),
		zap.Int64("query_time_ms", response.QueryTime))
	return response, nil
}

func (e *Engine) embedText(ctx context.Context, collection, text string) (models.Vectors, error) {
	if e.embedder == nil {
		return models.Vectors{}, fmt.Errorf("%w: text queries need an embedder", models.ErrConfiguration)
	}
	info, err := e.store.Collection(ctx, collection)
	if err != nil {
		return models.Vectors{}, err
	}
	if info.Layout == models.LayoutMulti {
		vs, err := e.embedder.EmbedTokens(ctx, text)
		if err != nil {
			return models.Vectors{}, fmt.Errorf("embedding failed: %w", err)
		}
		return models.MultiVector(vs), nil
	}
	v, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return models.Vectors{}, fmt.Errorf("embedding failed: %w", err)
	}
	return models.DenseVector(v), nil
}
