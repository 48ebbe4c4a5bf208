package collection

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/colindex/internal/models"
	"github.com/hyperjump/colindex/internal/storage"
	"github.com/hyperjump/colindex/internal/store"
)

func newTestManager(t *testing.T) (*Manager, *store.Store) {
	t.Helper()
	st, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "manager.db"))
	if err != nil {
		t.Fatal(err)
	}
	s := store.New(st)
	if err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = s.Close()
		_ = st.Close()
	})
	return NewManager(s), s
}

func TestManager_DestroyAbsentThenDescribe(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	if err := m.Destroy(ctx, "ghost"); err != nil {
		t.Fatalf("Destroy absent: %v", err)
	}
	if _, err := m.Describe(ctx, "ghost"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Describe after destroy: expected ErrNotFound, got %v", err)
	}
}

func TestManager_EnsureIdempotent(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()
	cfg := models.CollectionConfig{Name: "docs", Dimensions: 4, Metric: "Cosine", Layout: "multivector"}

	first, err := m.Ensure(ctx, cfg, false)
	if err != nil {
		t.Fatal(err)
	}
	if first.Metric != models.MetricCosine || first.Layout != models.LayoutMulti {
		t.Errorf("normalized config = %s/%s", first.Metric, first.Layout)
	}
	_ = s.Upsert(ctx, "docs", []*models.VectorRecord{{ID: "a", Vector: models.DenseVector([]float32{1, 2, 3, 4})}})

	second, err := m.Ensure(ctx, cfg, false)
	if err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	if second.PointsCount != 1 {
		t.Errorf("Ensure without recreate must keep records, PointsCount = %d", second.PointsCount)
	}
}

func TestManager_EnsureConflict(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	_, _ = m.Ensure(ctx, models.CollectionConfig{Name: "docs", Dimensions: 4}, false)

	tests := []struct {
		name string
		cfg  models.CollectionConfig
	}{
		{"dimensions", models.CollectionConfig{Name: "docs", Dimensions: 8}},
		{"metric", models.CollectionConfig{Name: "docs", Dimensions: 4, Metric: models.MetricDot}},
		{"layout", models.CollectionConfig{Name: "docs", Dimensions: 4, Layout: models.LayoutMulti}},
		{"quantization", models.CollectionConfig{Name: "docs", Dimensions: 4, Quantization: &models.QuantizationPolicy{Type: models.QuantizationBinary}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Ensure(ctx, tt.cfg, false); !errors.Is(err, models.ErrConflict) {
				t.Errorf("expected ErrConflict, got %v", err)
			}
		})
	}
}

func TestManager_EnsureRecreate(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()
	_, _ = m.Ensure(ctx, models.CollectionConfig{Name: "docs", Dimensions: 2}, false)
	_ = s.Upsert(ctx, "docs", []*models.VectorRecord{{ID: "a", Vector: models.DenseVector([]float32{1, 2})}})

	info, err := m.Ensure(ctx, models.CollectionConfig{Name: "docs", Dimensions: 3, Metric: models.MetricEuclid}, true)
	if err != nil {
		t.Fatal(err)
	}
	if info.Dimensions != 3 || info.PointsCount != 0 {
		t.Errorf("recreated info = %+v", info)
	}
}

func TestManager_EnsureInvalid(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	tests := []models.CollectionConfig{
		{Name: "a", Dimensions: 0},
		{Name: "a", Dimensions: -3},
		{Name: "a", Dimensions: 2, Layout: "pyramid"},
		{Name: "a", Dimensions: 2, Metric: "manhattan"},
		{Name: "bad name!", Dimensions: 2},
		{Name: "a", Dimensions: 2, Quantization: &models.QuantizationPolicy{Type: "product"}},
	}
	for _, cfg := range tests {
		if _, err := m.Ensure(ctx, cfg, false); !errors.Is(err, models.ErrConfiguration) {
			t.Errorf("Ensure(%+v): expected ErrConfiguration, got %v", cfg, err)
		}
	}
	list, _ := m.List(ctx)
	if len(list) != 0 {
		t.Errorf("invalid configs created %d collections", len(list))
	}
}

func TestManager_List(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if _, err := m.Ensure(ctx, models.CollectionConfig{Name: name, Dimensions: 2}, false); err != nil {
			t.Fatal(err)
		}
	}
	list, err := m.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 || list[0].Name != "alpha" || list[2].Name != "zeta" {
		t.Errorf("List not sorted by name")
	}
}
