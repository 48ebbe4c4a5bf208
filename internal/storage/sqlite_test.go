package storage

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/colindex/internal/models"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testCollection(name string) *models.CollectionInfo {
	return &models.CollectionInfo{CollectionConfig: models.CollectionConfig{
		Name:       name,
		Dimensions: 2,
		Metric:     models.MetricCosine,
		Layout:     models.LayoutMulti,
	}}
}

func TestSQLiteStorage_Collections(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	info := testCollection("docs")
	info.Quantization = &models.QuantizationPolicy{Type: models.QuantizationBinary, RescoreMultiplier: 8}
	if err := store.CreateCollection(ctx, info); err != nil {
		t.Fatal(err)
	}
	if info.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
	if err := store.CreateCollection(ctx, testCollection("docs")); !errors.Is(err, models.ErrConflict) {
		t.Errorf("duplicate create: expected ErrConflict, got %v", err)
	}

	got, err := store.GetCollection(ctx, "docs")
	if err != nil {
		t.Fatal(err)
	}
	if got.Dimensions != 2 || got.Metric != models.MetricCosine || got.Layout != models.LayoutMulti {
		t.Errorf("got %+v", got.CollectionConfig)
	}
	if got.Quantization == nil || got.Quantization.Type != models.QuantizationBinary || got.Quantization.RescoreMultiplier != 8 {
		t.Errorf("quantization = %+v", got.Quantization)
	}

	_ = store.CreateCollection(ctx, testCollection("alpha"))
	list, err := store.ListCollections(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Name != "alpha" || list[1].Name != "docs" {
		t.Errorf("unexpected list: %d entries", len(list))
	}

	existed, err := store.DeleteCollection(ctx, "docs")
	if err != nil || !existed {
		t.Fatalf("DeleteCollection: %v, %v", existed, err)
	}
	existed, err = store.DeleteCollection(ctx, "docs")
	if err != nil || existed {
		t.Errorf("second delete: %v, %v", existed, err)
	}
	if _, err := store.GetCollection(ctx, "docs"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStorage_UpsertKeepsSeqAndPayload(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	_ = store.CreateCollection(ctx, testCollection("c"))

	payload := json.RawMessage(`{"b": 1,  "a": [true, null]}`)
	points := []*models.StoredPoint{
		{ID: "x", Vectors: [][]float32{{1, 0}, {0.5, -0.25}}, Payload: payload},
		{ID: "y", Vectors: [][]float32{{0, 1}}},
	}
	if err := store.UpsertPoints(ctx, "c", points); err != nil {
		t.Fatal(err)
	}
	if points[0].Seq != 1 || points[1].Seq != 2 {
		t.Errorf("seqs = %d, %d, want 1, 2", points[0].Seq, points[1].Seq)
	}

	again := []*models.StoredPoint{
		{ID: "z", Vectors: [][]float32{{1, 1}}},
		{ID: "x", Vectors: [][]float32{{-1, 0}}, Payload: payload},
	}
	if err := store.UpsertPoints(ctx, "c", again); err != nil {
		t.Fatal(err)
	}
	if again[0].Seq != 3 || again[1].Seq != 1 {
		t.Errorf("seqs = %d, %d, want 3, 1", again[0].Seq, again[1].Seq)
	}

	n, err := store.CountPoints(ctx, "c")
	if err != nil || n != 3 {
		t.Errorf("CountPoints = %d, %v", n, err)
	}

	got, err := store.GetPoints(ctx, "c", []string{"x", "missing"})
	if err != nil {
		t.Fatal(err)
	}
	x, ok := got["x"]
	if !ok || len(got) != 1 {
		t.Fatalf("GetPoints returned %d points", len(got))
	}
	if string(x.Payload) != string(payload) {
		t.Errorf("payload = %s, want verbatim %s", x.Payload, payload)
	}
	if len(x.Vectors) != 1 || x.Vectors[0][0] != -1 {
		t.Errorf("vectors not replaced: %v", x.Vectors)
	}

	var order []string
	err = store.ScanPoints(ctx, "c", func(p *models.StoredPoint) error {
		order = append(order, p.ID)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(order) != 3 || order[0] != "x" || order[1] != "y" || order[2] != "z" {
		t.Errorf("scan order = %v", order)
	}

	info, _ := store.GetCollection(ctx, "c")
	if info.PointsCount != 3 {
		t.Errorf("PointsCount = %d", info.PointsCount)
	}
}

func TestSQLiteStorage_UpsertUnknownCollection(t *testing.T) {
	store := newTestStorage(t)
	err := store.UpsertPoints(context.Background(), "nope", []*models.StoredPoint{{ID: "a", Vectors: [][]float32{{1}}}})
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStorage_DeletePoints(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	_ = store.CreateCollection(ctx, testCollection("c"))
	_ = store.UpsertPoints(ctx, "c", []*models.StoredPoint{
		{ID: "a", Vectors: [][]float32{{1, 0}}},
		{ID: "b", Vectors: [][]float32{{0, 1}}},
	})
	n, err := store.DeletePoints(ctx, "c", []string{"a", "ghost"})
	if err != nil || n != 1 {
		t.Errorf("DeletePoints = %d, %v", n, err)
	}
	count, _ := store.CountPoints(ctx, "c")
	if count != 1 {
		t.Errorf("expected 1 point left, got %d", count)
	}
}

func TestVectorCodec(t *testing.T) {
	in := [][]float32{{1.5, -2}, {0, 3.25}}
	out, err := decodeVectors(encodeVectors(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || out[0][0] != 1.5 || out[1][1] != 3.25 {
		t.Errorf("decoded %v", out)
	}
	if _, err := decodeVectors([]byte{1, 0, 0, 0, 2, 0, 0, 0}); err == nil {
		t.Error("expected size mismatch error")
	}
}
