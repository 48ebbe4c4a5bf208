package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recorder struct {
	mu      sync.Mutex
	indexed []string
	removed []string
	err     error
}

func (r *recorder) Index(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexed = append(r.indexed, path)
	return r.err
}

func (r *recorder) Remove(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, path)
	return r.err
}

func (r *recorder) snapshot() (indexed, removed []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.indexed...), append([]string(nil), r.removed...)
}

func contains(paths []string, suffix string) bool {
	for _, p := range paths {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func startWatcher(t *testing.T, roots []string, exts []string, h Handler, opts ...WatcherOption) *Watcher {
	t.Helper()
	opts = append([]WatcherOption{WithDebounce(50 * time.Millisecond)}, opts...)
	w := NewWatcher(roots, exts, true, h, opts...)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	return w
}

func TestWatcher_IndexAndRemove(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, []string{dir}, []string{".txt"}, rec)

	fPath := filepath.Join(dir, "f.txt")
	if err := writeFile(fPath, "hello"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, "skip.xyz"), "x"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		indexed, _ := rec.snapshot()
		return contains(indexed, "f.txt")
	})

	if err := os.Remove(fPath); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		_, removed := rec.snapshot()
		return contains(removed, "f.txt")
	})
	indexed, _ := rec.snapshot()
	if contains(indexed, "skip.xyz") {
		t.Errorf("skip.xyz should not be indexed: %v", indexed)
	}
}

func TestWatcher_DebounceCollapsesWrites(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, []string{dir}, nil, rec, WithDebounce(300*time.Millisecond))

	fPath := filepath.Join(dir, "burst.md")
	for i := 0; i < 5; i++ {
		if err := writeFile(fPath, strings.Repeat("x", i+1)); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, func() bool {
		indexed, _ := rec.snapshot()
		return len(indexed) > 0
	})
	time.Sleep(400 * time.Millisecond)
	if indexed, _ := rec.snapshot(); len(indexed) != 1 {
		t.Errorf("expected one debounced index call, got %v", indexed)
	}
}

func TestWatcher_NewDirectoryIsWatchedAndSynced(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, []string{dir}, []string{".txt", ".md"}, rec)

	nested := filepath.Join(dir, "level1", "level2")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(nested, "deep.txt"), "deep content"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, "level1", "doc.md"), "world"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		indexed, _ := rec.snapshot()
		return contains(indexed, "deep.txt") && contains(indexed, "doc.md")
	})
}

func TestWatcher_SyncExistingFiles(t *testing.T) {
	dir := t.TempDir()
	if err := writeFile(filepath.Join(dir, "a.txt"), "hello"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, "ignore.xyz"), "x"); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	w := startWatcher(t, []string{dir}, []string{".txt"}, rec)
	w.SyncExistingFiles()

	indexed, _ := rec.snapshot()
	if len(indexed) != 1 || !strings.HasSuffix(indexed[0], "a.txt") {
		t.Errorf("expected one indexed file a.txt, got %v", indexed)
	}
}

func TestWatcher_HandlerErrorsAreLogged(t *testing.T) {
	dir := t.TempDir()
	if err := writeFile(filepath.Join(dir, "a.txt"), "hello"); err != nil {
		t.Fatal(err)
	}
	core, logs := observer.New(zapcore.WarnLevel)
	rec := &recorder{err: errors.New("store unavailable")}
	w := startWatcher(t, []string{dir}, nil, rec, WithLogger(zap.New(core)))
	w.SyncExistingFiles()

	entries := logs.FilterMessage("Failed to index file").All()
	if len(entries) != 1 {
		t.Fatalf("expected one warning, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["error"]; got != "store unavailable" {
		t.Errorf("logged error = %v", got)
	}
}

func TestWatcher_StartCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "watch", "me")
	w := startWatcher(t, []string{root}, nil, HandlerFuncs{})
	if _, err := os.Stat(root); err != nil {
		t.Errorf("root directory should exist after Start: %v", err)
	}
	if dirs := w.Directories(); len(dirs) != 1 || dirs[0] != root {
		t.Errorf("Directories() = %v", dirs)
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := NewWatcher([]string{t.TempDir()}, nil, false, HandlerFuncs{})
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()
	w.Stop()
	w.Stop()
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.txt", []string{".txt"}, true},
		{"/a/b.TXT", []string{"txt"}, true},
		{"/a/b.md", []string{".txt"}, false},
		{"/a/b", nil, true},
		{"/a/b", []string{}, true},
	}
	for _, tt := range tests {
		got := matchExtension(tt.path, tt.extensions)
		if got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir  string
		path string
		want bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a", "/tmp/a/b.txt", true},
		{"/tmp/a", "/tmp/b", false},
		{"/tmp/a", "/tmp/a/../b", false},
	}
	for _, tt := range tests {
		got := inDir(tt.dir, tt.path)
		if got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0600)
}
