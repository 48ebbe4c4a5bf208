package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// APIResponse is the envelope of every HTTP API response. Successful calls set Result and
// Status "ok"; failures set Error, Kind, and Status "error".
type APIResponse struct {
	Result any       `json:"result,omitempty"`
	Status string    `json:"status"`
	Time   float64   `json:"time,omitempty"`
	Error  string    `json:"error,omitempty"`
	Kind   ErrorKind `json:"kind,omitempty"`
}

// MultivectorConfig selects the multi-vector layout on collection creation.
type MultivectorConfig struct {
	Comparator string `json:"comparator"`
}

// QuantizationRequest accepts {"type": "binary"} as well as {"binary": {...}}.
type QuantizationRequest struct {
	Type              string          `json:"type,omitempty"`
	Binary            json.RawMessage `json:"binary,omitempty"`
	RescoreMultiplier int             `json:"rescore_multiplier,omitempty"`
}

// CreateCollectionRequest is the body of POST /collection/{name}. Aliases are accepted for the
// vector size and distance so clients of other vector stores can send their usual keys.
type CreateCollectionRequest struct {
	Dimensions        int                  `json:"dimensions,omitempty"`
	VectorSize        int                  `json:"vector_size,omitempty"`
	Metric            string               `json:"metric,omitempty"`
	Distance          string               `json:"distance,omitempty"`
	Layout            string               `json:"layout,omitempty"`
	MultivectorConfig *MultivectorConfig   `json:"multivector_config,omitempty"`
	Quantization      *QuantizationRequest `json:"quantization,omitempty"`
	Recreate          bool                 `json:"recreate,omitempty"`
}

// NewCreateCollectionRequest builds the canonical request for cfg.
func NewCreateCollectionRequest(cfg CollectionConfig, recreate bool) *CreateCollectionRequest {
	req := &CreateCollectionRequest{
		Dimensions: cfg.Dimensions,
		Metric:     string(cfg.Metric),
		Layout:     string(cfg.Layout),
		Recreate:   recreate,
	}
	if cfg.Quantization.Enabled() {
		req.Quantization = &QuantizationRequest{
			Type:              string(cfg.Quantization.Type),
			RescoreMultiplier: cfg.Quantization.RescoreMultiplier,
		}
	}
	return req
}

// Config resolves the aliases into a collection configuration named name. It does not validate.
func (r *CreateCollectionRequest) Config(name string) (CollectionConfig, error) {
	cfg := CollectionConfig{
		Name:       name,
		Dimensions: r.Dimensions,
		Metric:     Metric(r.Metric),
		Layout:     Layout(r.Layout),
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = r.VectorSize
	}
	if cfg.Metric == "" {
		cfg.Metric = Metric(r.Distance)
	}
	if r.MultivectorConfig != nil {
		if !strings.EqualFold(r.MultivectorConfig.Comparator, "max_sim") {
			return cfg, fmt.Errorf("%w: unsupported multivector comparator %q", ErrConfiguration, r.MultivectorConfig.Comparator)
		}
		if cfg.Layout != "" {
			l, err := ParseLayout(string(cfg.Layout))
			if err != nil {
				return cfg, err
			}
			if l != LayoutMulti {
				return cfg, fmt.Errorf("%w: multivector_config conflicts with layout %q", ErrConfiguration, cfg.Layout)
			}
		}
		cfg.Layout = LayoutMulti
	}
	if q := r.Quantization; q != nil {
		typ := QuantizationType(q.Type)
		if typ == "" && len(q.Binary) > 0 {
			typ = QuantizationBinary
		}
		cfg.Quantization = &QuantizationPolicy{Type: typ, RescoreMultiplier: q.RescoreMultiplier}
	}
	return cfg, nil
}

// PointID is a record id on the wire: a string or a non-negative integer.
type PointID string

// UnmarshalJSON accepts strings and integers.
func (p *PointID) UnmarshalJSON(data []byte) error {
	id, err := ParseID(data)
	if err != nil {
		return err
	}
	*p = PointID(id)
	return nil
}

// UpsertPointsRequest is the object form of the POST /points/{name} body; a bare array of
// records is accepted as well.
type UpsertPointsRequest struct {
	Points []*VectorRecord `json:"points"`
}

// DeletePointsRequest is the body of POST /points/{name}/delete. Exactly one of IDs and Filter
// is expected.
type DeletePointsRequest struct {
	IDs    []PointID `json:"ids,omitempty"`
	Filter *Filter   `json:"filter,omitempty"`
}

// StringIDs returns the ids as plain strings.
func (r *DeletePointsRequest) StringIDs() []string {
	out := make([]string, len(r.IDs))
	for i, id := range r.IDs {
		out[i] = string(id)
	}
	return out
}

// CountResult reports how many records an operation affected.
type CountResult struct {
	Count int `json:"count"`
}

// SearchBody is the body of POST /search/{name}. query_vector and limit are aliases of vector
// and top_k.
type SearchBody struct {
	Vector      Vectors `json:"vector"`
	QueryVector Vectors `json:"query_vector"`
	Text        string  `json:"text,omitempty"`
	TopK        *int    `json:"top_k,omitempty"`
	Limit       *int    `json:"limit,omitempty"`
	Filter      *Filter `json:"filter,omitempty"`
}

// Query resolves the aliases into a query against collection. defaultTopK is used only when
// both top_k and limit are absent; an explicit value, zero included, is passed through.
func (b *SearchBody) Query(collection string, defaultTopK int) *SearchQuery {
	q := &SearchQuery{
		Collection: collection,
		Vectors:    b.Vector,
		Text:       b.Text,
		TopK:       defaultTopK,
		Filter:     b.Filter,
	}
	if q.Vectors.IsZero() {
		q.Vectors = b.QueryVector
	}
	switch {
	case b.TopK != nil:
		q.TopK = *b.TopK
	case b.Limit != nil:
		q.TopK = *b.Limit
	}
	return q
}

// ServiceStatus is the body of GET /api/v1/status.
type ServiceStatus struct {
	Version          string            `json:"version,omitempty"`
	Collections      []*CollectionInfo `json:"collections"`
	Points           int64             `json:"points"`
	DiskUsageBytes   int64             `json:"disk_usage_bytes"`
	DatabasePath     string            `json:"database_path,omitempty"`
	WatchDirectories []string          `json:"watch_directories,omitempty"`
}
