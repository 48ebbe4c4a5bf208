package models

import (
	"encoding/json"
	"strings"
)

// FieldCondition matches a payload value at a dotted key path. Match compares a scalar for
// equality; Any matches when the value equals one of its elements. When the payload value is an
// array, the condition holds if any element matches.
type FieldCondition struct {
	Key   string `json:"key"`
	Match any    `json:"match,omitempty"`
	Any   []any  `json:"any,omitempty"`
}

// Filter restricts search candidates before scoring.
type Filter struct {
	Must    []FieldCondition `json:"must,omitempty"`
	MustNot []FieldCondition `json:"must_not,omitempty"`
	// Text is a full-text match against the payload's string fields.
	Text string `json:"text,omitempty"`
}

// IsEmpty reports whether the filter places no restriction.
func (f *Filter) IsEmpty() bool {
	return f == nil || (len(f.Must) == 0 && len(f.MustNot) == 0 && strings.TrimSpace(f.Text) == "")
}

// MatchPayload evaluates the field conditions (not Text) against a decoded payload.
func (f *Filter) MatchPayload(payload map[string]any) bool {
	if f == nil {
		return true
	}
	for _, c := range f.Must {
		if !c.matches(payload) {
			return false
		}
	}
	for _, c := range f.MustNot {
		if c.matches(payload) {
			return false
		}
	}
	return true
}

func (c FieldCondition) matches(payload map[string]any) bool {
	v, ok := lookup(payload, c.Key)
	if !ok {
		return false
	}
	if arr, isArr := v.([]any); isArr {
		for _, el := range arr {
			if c.matchValue(el) {
				return true
			}
		}
		return false
	}
	return c.matchValue(v)
}

func (c FieldCondition) matchValue(v any) bool {
	if c.Any != nil {
		for _, want := range c.Any {
			if valuesEqual(v, want) {
				return true
			}
		}
		return false
	}
	return valuesEqual(v, c.Match)
}

func lookup(payload map[string]any, key string) (any, bool) {
	var cur any = payload
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func valuesEqual(a, b any) bool {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum || bNum {
		return aNum && bNum && af == bf
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// SearchRequest is a store-level similarity query.
type SearchRequest struct {
	Vectors Vectors `json:"vector"`
	TopK    int     `json:"top_k"`
	Filter  *Filter `json:"filter,omitempty"`
}

// ScoredPoint is one store search hit.
type ScoredPoint struct {
	ID      string          `json:"id"`
	Score   float64         `json:"score"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SearchQuery is a caller-facing query. Exactly one of Vectors and Text is expected; a text
// query is embedded according to the collection's layout.
type SearchQuery struct {
	Collection string  `json:"collection,omitempty"`
	Vectors    Vectors `json:"vector"`
	Text       string  `json:"text,omitempty"`
	// TopK must be positive and within the engine's limit.
	TopK   int     `json:"top_k"`
	Filter *Filter `json:"filter,omitempty"`
}
