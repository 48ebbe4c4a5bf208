package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/colindex/internal/models"
)

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()
	f1 := filepath.Join(dir, "f1.txt")
	if err := os.WriteFile(f1, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(dir, "sub")
	if err := os.MkdirAll(filepath.Join(sub, "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "a"), []byte("ab"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "nested", "b"), []byte("c"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		paths []string
		want  int64
	}{
		{"single file", []string{f1}, 5},
		{"directory", []string{sub}, 3},
		{"file and directory", []string{f1, sub}, 8},
		{"missing path skipped", []string{f1, filepath.Join(dir, "nonexistent"), sub}, 8},
		{"empty path skipped", []string{"", f1}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DiskUsageBytes(tt.paths...)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %d bytes, want %d", got, tt.want)
			}
		})
	}
}

func TestSQLiteStorage_DiskUsageBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.db")
	s, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	info := &models.CollectionInfo{CollectionConfig: models.CollectionConfig{
		Name: "c", Dimensions: 2, Metric: models.MetricCosine, Layout: models.LayoutSingle,
	}}
	if err := s.CreateCollection(context.Background(), info); err != nil {
		t.Fatal(err)
	}
	got, err := s.DiskUsageBytes()
	if err != nil {
		t.Fatal(err)
	}
	if got <= 0 {
		t.Errorf("disk usage = %d, want > 0", got)
	}
	if files := DatabaseFiles(path); len(files) != 3 || files[1] != path+"-wal" {
		t.Errorf("DatabaseFiles = %v", files)
	}
}
