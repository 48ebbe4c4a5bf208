package models

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestCreateCollectionRequest_Config(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    CollectionConfig
		wantErr error
	}{
		{
			name: "canonical",
			body: `{"dimensions": 4, "metric": "dot", "layout": "multi"}`,
			want: CollectionConfig{Name: "c", Dimensions: 4, Metric: MetricDot, Layout: LayoutMulti},
		},
		{
			name: "aliases",
			body: `{"vector_size": 8, "distance": "Cosine", "multivector_config": {"comparator": "max_sim"}}`,
			want: CollectionConfig{Name: "c", Dimensions: 8, Metric: MetricCosine, Layout: LayoutMulti},
		},
		{
			name: "binary object",
			body: `{"dimensions": 2, "quantization": {"binary": {"always_ram": true}, "rescore_multiplier": 8}}`,
			want: CollectionConfig{Name: "c", Dimensions: 2, Metric: MetricCosine, Layout: LayoutSingle,
				Quantization: &QuantizationPolicy{Type: QuantizationBinary, RescoreMultiplier: 8}},
		},
		{
			name:    "unknown comparator",
			body:    `{"dimensions": 2, "multivector_config": {"comparator": "sum"}}`,
			wantErr: ErrConfiguration,
		},
		{
			name:    "comparator conflicts with layout",
			body:    `{"dimensions": 2, "layout": "single", "multivector_config": {"comparator": "max_sim"}}`,
			wantErr: ErrConfiguration,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req CreateCollectionRequest
			if err := json.Unmarshal([]byte(tt.body), &req); err != nil {
				t.Fatal(err)
			}
			cfg, err := req.Config("c")
			if err == nil {
				err = cfg.Validate()
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(cfg, tt.want) {
				t.Errorf("config = %+v, want %+v", cfg, tt.want)
			}
		})
	}
}

func TestNewCreateCollectionRequest_roundTrip(t *testing.T) {
	cfg := CollectionConfig{Name: "c", Dimensions: 3, Metric: MetricEuclid, Layout: LayoutMulti,
		Quantization: &QuantizationPolicy{Type: QuantizationBinary, RescoreMultiplier: 2}}
	got, err := NewCreateCollectionRequest(cfg, false).Config("c")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, cfg) {
		t.Errorf("got %+v, want %+v", got, cfg)
	}
}

func TestDeletePointsRequest_mixedIDs(t *testing.T) {
	var req DeletePointsRequest
	if err := json.Unmarshal([]byte(`{"ids": ["a", 42]}`), &req); err != nil {
		t.Fatal(err)
	}
	if got := req.StringIDs(); !reflect.DeepEqual(got, []string{"a", "42"}) {
		t.Errorf("ids = %v", got)
	}
	if err := json.Unmarshal([]byte(`{"ids": [-1]}`), &req); !errors.Is(err, ErrConfiguration) {
		t.Errorf("negative id: err = %v", err)
	}
}

func TestSearchBody_Query(t *testing.T) {
	var b SearchBody
	if err := json.Unmarshal([]byte(`{"query_vector": [[1, 2], [3, 4]], "limit": 3}`), &b); err != nil {
		t.Fatal(err)
	}
	q := b.Query("docs", 5)
	if q.Collection != "docs" || q.TopK != 3 || !q.Vectors.IsMulti() || len(q.Vectors.Multi) != 2 {
		t.Errorf("query = %+v", q)
	}
}

func TestSearchBody_QueryTopK(t *testing.T) {
	tests := []struct {
		body string
		want int
	}{
		{`{"vector": [1]}`, 5},
		{`{"vector": [1], "top_k": 2}`, 2},
		{`{"vector": [1], "limit": 4}`, 4},
		{`{"vector": [1], "top_k": 2, "limit": 4}`, 2},
		{`{"vector": [1], "top_k": 0}`, 0},
		{`{"vector": [1], "limit": -1}`, -1},
	}
	for _, tt := range tests {
		var b SearchBody
		if err := json.Unmarshal([]byte(tt.body), &b); err != nil {
			t.Fatal(err)
		}
		if got := b.Query("docs", 5).TopK; got != tt.want {
			t.Errorf("%s: top_k = %d, want %d", tt.body, got, tt.want)
		}
	}
}
