// Package keyword provides full-text matching over record payloads.
package keyword

import (
	"context"
)

// MatchOptions optional parameters for Match. Nil means exact term matching.
type MatchOptions struct {
	// Fuzziness is the maximum Levenshtein edit distance per term (1 or 2). 0 disables fuzzy matching.
	Fuzziness int
}

// TextIndex indexes the string values of payloads and answers which records contain a text.
type TextIndex interface {
	Index(ctx context.Context, id string, payload map[string]any) error
	// IndexBatch indexes many payloads at once; a nil payload deletes the id.
	IndexBatch(ctx context.Context, payloads map[string]map[string]any) error
	Delete(ctx context.Context, ids ...string) error
	// Match returns the ids whose payload text contains every term of text, with their scores.
	Match(ctx context.Context, text string, opts *MatchOptions) (map[string]float64, error)
	// DocCount returns the total number of documents in the index.
	DocCount() (uint64, error)
	Close() error
}
