package vector

import (
	"fmt"

	"github.com/hyperjump/colindex/internal/models"
)

// IndexType represents the resident representation of a collection.
type IndexType string

const (
	// IndexTypeMemory keeps full-precision vectors and scores exactly.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeBinary keeps 1-bit sign codes; results must be rescored.
	IndexTypeBinary IndexType = "binary"
)

// NewIndex creates the resident index a collection configuration calls for.
func NewIndex(cfg *models.CollectionConfig) (Index, error) {
	scorer := NewScorer(cfg.Metric)
	if cfg.Quantization.Enabled() {
		switch cfg.Quantization.Type {
		case models.QuantizationBinary:
			return NewBinaryIndex(cfg.Dimensions, scorer)
		default:
			return nil, fmt.Errorf("%w: unsupported quantization %q", models.ErrConfiguration, cfg.Quantization.Type)
		}
	}
	return NewMemoryIndex(cfg.Dimensions, scorer)
}
