package models

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestVectorRecord_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantErr   error
		wantID    string
		wantMulti bool
		wantCount int
	}{
		{"dense", `{"id":"a","vector":[1,2,3]}`, nil, "a", false, 1},
		{"multi", `{"id":"b","vector":[[1,2],[3,4],[5,6]]}`, nil, "b", true, 3},
		{"integer id", `{"id":42,"vector":[1]}`, nil, "42", false, 1},
		{"no id", `{"vector":[1]}`, nil, "", false, 1},
		{"missing vector", `{"id":"c","payload":{}}`, ErrConfiguration, "", false, 0},
		{"negative id", `{"id":-1,"vector":[1]}`, ErrConfiguration, "", false, 0},
		{"payload not object", `{"id":"d","vector":[1],"payload":[1]}`, ErrConfiguration, "", false, 0},
		{"vector not array", `{"id":"e","vector":"x"}`, ErrConfiguration, "", false, 0},
		{"not an object", `[1,2]`, ErrConfiguration, "", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec VectorRecord
			err := json.Unmarshal([]byte(tt.input), &rec)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if rec.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", rec.ID, tt.wantID)
			}
			if rec.Vector.IsMulti() != tt.wantMulti {
				t.Errorf("IsMulti = %v", rec.Vector.IsMulti())
			}
			if rec.Vector.Count() != tt.wantCount {
				t.Errorf("Count = %d, want %d", rec.Vector.Count(), tt.wantCount)
			}
		})
	}
}

func TestVectorRecord_PayloadKeptVerbatim(t *testing.T) {
	payload := `{"b": 1,  "a": {"nested": [true, null]}, "text": "página"}`
	var rec VectorRecord
	if err := json.Unmarshal([]byte(`{"id":"x","vector":[0.5],"payload":`+payload+`}`), &rec); err != nil {
		t.Fatal(err)
	}
	if string(rec.Payload) != payload {
		t.Errorf("payload = %s, want %s", rec.Payload, payload)
	}
}

func TestVectors_MarshalRoundTripKeepsShape(t *testing.T) {
	dense, _ := json.Marshal(DenseVector([]float32{1, 2}))
	if string(dense) != "[1,2]" {
		t.Errorf("dense = %s", dense)
	}
	multi, _ := json.Marshal(MultiVector([][]float32{{1}, {2}}))
	if string(multi) != "[[1],[2]]" {
		t.Errorf("multi = %s", multi)
	}
}

func TestVectors_CheckShape(t *testing.T) {
	tests := []struct {
		name   string
		v      Vectors
		layout Layout
		want   error
	}{
		{"dense ok", DenseVector([]float32{1, 2, 3}), LayoutSingle, nil},
		{"dense in multi", DenseVector([]float32{1, 2, 3}), LayoutMulti, nil},
		{"multi ok", MultiVector([][]float32{{1, 2, 3}, {4, 5, 6}}), LayoutMulti, nil},
		{"multi in single", MultiVector([][]float32{{1, 2, 3}}), LayoutSingle, ErrShape},
		{"short dense", DenseVector([]float32{1, 2}), LayoutSingle, ErrShape},
		{"one bad token", MultiVector([][]float32{{1, 2, 3}, {4, 5}}), LayoutMulti, ErrShape},
		{"empty set", MultiVector([][]float32{}), LayoutMulti, ErrShape},
		{"zero", Vectors{}, LayoutSingle, ErrShape},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.v.CheckShape("r", 3, tt.layout)
			if tt.want == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestShapeError_Is(t *testing.T) {
	err := error(&ShapeError{Expected: 4, Actual: 3, ID: "a"})
	if !errors.Is(err, ErrShape) {
		t.Error("ShapeError should match ErrShape")
	}
	if Kind(err) != KindShape {
		t.Errorf("Kind = %s", Kind(err))
	}
	var se *ShapeError
	if !errors.As(err, &se) || se.Expected != 4 {
		t.Error("errors.As should recover the ShapeError")
	}
}

func TestVectorRecord_EnsureID(t *testing.T) {
	rec := &VectorRecord{Vector: DenseVector([]float32{1})}
	rec.EnsureID()
	if rec.ID == "" {
		t.Fatal("EnsureID left the id empty")
	}
	first := rec.ID
	rec.EnsureID()
	if rec.ID != first {
		t.Error("EnsureID must not replace an existing id")
	}
}

func TestCollectionConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     CollectionConfig
		wantErr bool
	}{
		{"defaults", CollectionConfig{Name: "docs", Dimensions: 4}, false},
		{"qdrant spelling", CollectionConfig{Name: "docs", Dimensions: 4, Metric: "Cosine", Layout: "max_sim"}, false},
		{"zero dims", CollectionConfig{Name: "docs", Dimensions: 0}, true},
		{"bad layout", CollectionConfig{Name: "docs", Dimensions: 4, Layout: "tree"}, true},
		{"bad metric", CollectionConfig{Name: "docs", Dimensions: 4, Metric: "manhattan"}, true},
		{"bad name", CollectionConfig{Name: "a/b", Dimensions: 4}, true},
		{"bad quantization", CollectionConfig{Name: "docs", Dimensions: 4, Quantization: &QuantizationPolicy{Type: "pq"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrConfiguration) {
				t.Errorf("error should be ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestCollectionConfig_Equivalent(t *testing.T) {
	a := CollectionConfig{Name: "x", Dimensions: 4, Metric: MetricCosine, Layout: LayoutMulti}
	b := a
	if d := a.Equivalent(&b); d != "" {
		t.Errorf("identical configs differ in %s", d)
	}
	b.Quantization = &QuantizationPolicy{Type: QuantizationBinary}
	if d := a.Equivalent(&b); d != "quantization" {
		t.Errorf("diff = %q, want quantization", d)
	}
	c := a
	c.Layout = LayoutSingle
	if d := a.Equivalent(&c); d != "layout" {
		t.Errorf("diff = %q, want layout", d)
	}
}
