package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Metric is the similarity function a collection scores with.
type Metric string

const (
	MetricCosine Metric = "cosine"
	MetricDot    Metric = "dot"
	MetricEuclid Metric = "euclid"
)

// ParseMetric accepts the canonical names plus the capitalized forms used by other vector
// stores ("Cosine", "Dot", "Euclid"). Empty defaults to cosine.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cosine":
		return MetricCosine, nil
	case "dot", "dot_product", "dotproduct", "ip":
		return MetricDot, nil
	case "euclid", "euclidean", "l2":
		return MetricEuclid, nil
	default:
		return "", fmt.Errorf("%w: unknown distance metric %q", ErrConfiguration, s)
	}
}

// Layout decides whether a record holds one vector or a set scored with max-sim.
type Layout string

const (
	LayoutSingle Layout = "single"
	LayoutMulti  Layout = "multi"
)

// ParseLayout accepts "single" and "multi" (plus "multivector"/"max_sim" aliases). Empty defaults
// to single.
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "single", "dense":
		return LayoutSingle, nil
	case "multi", "multivector", "multi_vector", "max_sim":
		return LayoutMulti, nil
	default:
		return "", fmt.Errorf("%w: unknown layout %q", ErrConfiguration, s)
	}
}

// QuantizationType names a lossy resident representation.
type QuantizationType string

const (
	QuantizationNone   QuantizationType = "none"
	QuantizationBinary QuantizationType = "binary"
)

// DefaultRescoreMultiplier is how many candidates per requested result the quantized phase keeps
// before exact rescoring.
const DefaultRescoreMultiplier = 4

// QuantizationPolicy describes the compressed representation kept in memory. Full-precision
// vectors stay in secondary storage and are used to rescore the final ranking.
type QuantizationPolicy struct {
	Type              QuantizationType `json:"type" yaml:"type"`
	RescoreMultiplier int              `json:"rescore_multiplier,omitempty" yaml:"rescore_multiplier"`
}

// Enabled reports whether the policy compresses vectors.
func (q *QuantizationPolicy) Enabled() bool {
	return q != nil && q.Type != "" && q.Type != QuantizationNone
}

// Multiplier returns the candidate oversampling factor, defaulting when unset.
func (q *QuantizationPolicy) Multiplier() int {
	if q == nil || q.RescoreMultiplier <= 0 {
		return DefaultRescoreMultiplier
	}
	return q.RescoreMultiplier
}

var collectionNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// CollectionConfig is the fixed configuration of a collection.
type CollectionConfig struct {
	Name         string              `json:"name"`
	Dimensions   int                 `json:"dimensions"`
	Metric       Metric              `json:"metric"`
	Layout       Layout              `json:"layout"`
	Quantization *QuantizationPolicy `json:"quantization,omitempty"`
}

// Validate normalizes metric/layout/quantization spellings and rejects invalid parameters with
// ErrConfiguration.
func (c *CollectionConfig) Validate() error {
	if !collectionNamePattern.MatchString(c.Name) {
		return fmt.Errorf("%w: invalid collection name %q", ErrConfiguration, c.Name)
	}
	if c.Dimensions <= 0 {
		return fmt.Errorf("%w: dimensions must be positive, got %d", ErrConfiguration, c.Dimensions)
	}
	metric, err := ParseMetric(string(c.Metric))
	if err != nil {
		return err
	}
	c.Metric = metric
	layout, err := ParseLayout(string(c.Layout))
	if err != nil {
		return err
	}
	c.Layout = layout
	if c.Quantization != nil {
		switch QuantizationType(strings.ToLower(string(c.Quantization.Type))) {
		case "", QuantizationNone:
			c.Quantization = nil
		case QuantizationBinary:
			c.Quantization.Type = QuantizationBinary
			if c.Quantization.RescoreMultiplier < 0 {
				return fmt.Errorf("%w: rescore_multiplier must not be negative", ErrConfiguration)
			}
		default:
			return fmt.Errorf("%w: unknown quantization %q", ErrConfiguration, c.Quantization.Type)
		}
	}
	return nil
}

// Equivalent returns "" when other has the same vector configuration, otherwise the name of the
// first differing field.
func (c *CollectionConfig) Equivalent(other *CollectionConfig) string {
	switch {
	case c.Dimensions != other.Dimensions:
		return "dimensions"
	case c.Metric != other.Metric:
		return "metric"
	case c.Layout != other.Layout:
		return "layout"
	case c.Quantization.Enabled() != other.Quantization.Enabled():
		return "quantization"
	case c.Quantization.Enabled() && c.Quantization.Multiplier() != other.Quantization.Multiplier():
		return "quantization.rescore_multiplier"
	}
	return ""
}

// CollectionInfo is a collection's configuration plus live statistics.
type CollectionInfo struct {
	CollectionConfig
	PointsCount int64     `json:"points_count"`
	CreatedAt   time.Time `json:"created_at"`
}
