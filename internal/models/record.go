// Package models defines the records, collections, queries, and error classes shared by every layer.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Vectors holds either one dense vector or a set of token vectors. Exactly one of Dense and Multi
// is set on a valid value.
type Vectors struct {
	Dense []float32
	Multi [][]float32
}

// DenseVector wraps a single vector.
func DenseVector(v []float32) Vectors { return Vectors{Dense: v} }

// MultiVector wraps a vector set.
func MultiVector(vs [][]float32) Vectors { return Vectors{Multi: vs} }

// IsMulti reports whether the value was given as a vector set.
func (v Vectors) IsMulti() bool { return v.Multi != nil }

// IsZero reports whether no vector was given.
func (v Vectors) IsZero() bool { return v.Dense == nil && v.Multi == nil }

// Set returns the value as a vector set; a dense vector becomes a one-element set.
func (v Vectors) Set() [][]float32 {
	if v.Multi != nil {
		return v.Multi
	}
	if v.Dense != nil {
		return [][]float32{v.Dense}
	}
	return nil
}

// Count returns the number of vectors.
func (v Vectors) Count() int {
	if v.Multi != nil {
		return len(v.Multi)
	}
	if v.Dense != nil {
		return 1
	}
	return 0
}

// MarshalJSON encodes a dense vector as [f, ...] and a set as [[f, ...], ...].
func (v Vectors) MarshalJSON() ([]byte, error) {
	if v.Multi != nil {
		return json.Marshal(v.Multi)
	}
	if v.Dense != nil {
		return json.Marshal(v.Dense)
	}
	return []byte("null"), nil
}

// UnmarshalJSON accepts either nesting depth and keeps the shape the caller used.
func (v *Vectors) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = Vectors{}
		return nil
	}
	if len(data) == 0 || data[0] != '[' {
		return fmt.Errorf("%w: vector must be an array", ErrConfiguration)
	}
	inner := bytes.TrimSpace(data[1:])
	if len(inner) > 0 && inner[0] == '[' {
		var multi [][]float32
		if err := json.Unmarshal(data, &multi); err != nil {
			return fmt.Errorf("%w: invalid multi-vector: %v", ErrConfiguration, err)
		}
		*v = Vectors{Multi: multi}
		return nil
	}
	dense := []float32{}
	if err := json.Unmarshal(data, &dense); err != nil {
		return fmt.Errorf("%w: invalid vector: %v", ErrConfiguration, err)
	}
	*v = Vectors{Dense: dense}
	return nil
}

// CheckShape verifies every vector has dims components and that the shape fits the layout.
// id is only used in the error message.
func (v Vectors) CheckShape(id string, dims int, layout Layout) error {
	if v.IsZero() {
		return fmt.Errorf("%w: record %q has no vector", ErrShape, id)
	}
	if v.IsMulti() && layout == LayoutSingle {
		return fmt.Errorf("%w: record %q has %d vectors but the collection is single-vector", ErrShape, id, len(v.Multi))
	}
	set := v.Set()
	if len(set) == 0 {
		return fmt.Errorf("%w: record %q has an empty vector set", ErrShape, id)
	}
	for _, vec := range set {
		if len(vec) != dims {
			return &ShapeError{Expected: dims, Actual: len(vec), ID: id}
		}
	}
	return nil
}

// VectorRecord is one document representation submitted for indexing. Payload is kept as the
// submitted bytes and never interpreted by the write path.
type VectorRecord struct {
	ID      string          `json:"id"`
	Vector  Vectors         `json:"vector"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// UnmarshalJSON validates the schema-less record eagerly: "vector" is required, "id" may be a
// string or an integer, and "payload" must be an object when present.
func (r *VectorRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: record must be a JSON object: %v", ErrConfiguration, err)
	}
	vecRaw, ok := raw["vector"]
	if !ok {
		return fmt.Errorf("%w: record is missing required key %q", ErrConfiguration, "vector")
	}
	var rec VectorRecord
	if err := rec.Vector.UnmarshalJSON(vecRaw); err != nil {
		return err
	}
	if idRaw, ok := raw["id"]; ok {
		id, err := ParseID(idRaw)
		if err != nil {
			return err
		}
		rec.ID = id
	}
	if p, ok := raw["payload"]; ok {
		p = bytes.TrimSpace(p)
		switch {
		case bytes.Equal(p, []byte("null")):
		case len(p) > 0 && p[0] == '{':
			rec.Payload = p
		default:
			return fmt.Errorf("%w: payload must be an object", ErrConfiguration)
		}
	}
	*r = rec
	return nil
}

// ParseID normalizes a JSON id: strings are kept, non-negative integers become their decimal
// string, and null yields "".
func ParseID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("%w: invalid id: %v", ErrConfiguration, err)
		}
		return s, nil
	}
	n, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: id must be a string or a non-negative integer, got %s", ErrConfiguration, raw)
	}
	return strconv.FormatUint(n, 10), nil
}

// Validate checks the keys every record needs before it is placed in a batch.
func (r *VectorRecord) Validate() error {
	if r.Vector.IsZero() {
		return fmt.Errorf("%w: record %q is missing required key %q", ErrConfiguration, r.ID, "vector")
	}
	if len(r.Payload) > 0 && !json.Valid(r.Payload) {
		return fmt.Errorf("%w: record %q has an invalid payload", ErrConfiguration, r.ID)
	}
	return nil
}

// EnsureID assigns a random UUID when the caller did not supply an id. It runs once, at batch
// construction, so retried submissions reuse the same id.
func (r *VectorRecord) EnsureID() {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
}

// StoredPoint is a record as persisted: normalized to a vector set and stamped with the
// insertion sequence used to break score ties.
type StoredPoint struct {
	ID      string
	Seq     int64
	Vectors [][]float32
	Payload json.RawMessage
}
