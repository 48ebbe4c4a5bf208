// Package watcher keeps a collection in sync with directories on disk: files are indexed when
// created or written (debounced) and their records removed when deleted or renamed away.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Handler reacts to file changes under a watched root.
type Handler interface {
	Index(ctx context.Context, path string) error
	Remove(ctx context.Context, path string) error
}

// HandlerFuncs adapts two functions to a Handler. A nil function is a no-op.
type HandlerFuncs struct {
	OnIndex  func(ctx context.Context, path string) error
	OnRemove func(ctx context.Context, path string) error
}

// Index calls OnIndex.
func (h HandlerFuncs) Index(ctx context.Context, path string) error {
	if h.OnIndex == nil {
		return nil
	}
	return h.OnIndex(ctx, path)
}

// Remove calls OnRemove.
func (h HandlerFuncs) Remove(ctx context.Context, path string) error {
	if h.OnRemove == nil {
		return nil
	}
	return h.OnRemove(ctx, path)
}

// Watcher watches root directories and forwards file events to a Handler.
type Watcher struct {
	roots      []string
	extensions []string
	recursive  bool
	handler    Handler
	debounce   time.Duration
	logger     *zap.Logger

	mu      sync.Mutex
	ctx     context.Context
	watcher *fsnotify.Watcher
	pending map[string]*time.Timer
	done    chan struct{}
	wg      sync.WaitGroup
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for file events and handler failures.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce sets how long a file must stay quiet before it is indexed.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher over roots. extensions filter which files are forwarded
// (empty = all); recursive also watches subdirectories, including ones created later.
func NewWatcher(roots, extensions []string, recursive bool, handler Handler, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		roots:      roots,
		extensions: extensions,
		recursive:  recursive,
		handler:    handler,
		debounce:   defaultDebounce,
		logger:     zap.NewNop(),
		pending:    make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. Missing roots are created. Events are handled until ctx is canceled
// or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for i, root := range w.roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			_ = fw.Close()
			return err
		}
		if err := os.MkdirAll(abs, 0755); err != nil {
			_ = fw.Close()
			return err
		}
		if err := w.addTree(fw, abs); err != nil {
			_ = fw.Close()
			return err
		}
		w.roots[i] = abs
	}
	w.watcher = fw
	w.ctx = ctx
	w.done = make(chan struct{})
	w.logger.Info("Watching directories",
		zap.Strings("roots", w.roots),
		zap.Strings("extensions", w.extensions),
		zap.Bool("recursive", w.recursive))
	w.wg.Add(1)
	go w.run(ctx, fw, w.done)
	return nil
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	if !w.recursive {
		return fw.Add(dir)
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher, done chan struct{}) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			go w.Stop()
			return
		case <-done:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(fw, ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(fw *fsnotify.Watcher, ev fsnotify.Event) {
	path := ev.Name
	if !w.underRoot(path) {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			if ev.Has(fsnotify.Create) && w.recursive {
				w.handleNewDirectory(fw, path)
			}
			return
		}
		if matchExtension(path, w.extensions) {
			w.debounceIndex(path)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.cancelDebounce(path)
		if matchExtension(path, w.extensions) {
			w.remove(path)
		}
	}
}

// handleNewDirectory watches a directory created (or moved) under a root and indexes the files
// already inside it.
func (w *Watcher) handleNewDirectory(fw *fsnotify.Watcher, dir string) {
	if err := w.addTree(fw, dir); err != nil {
		w.logger.Warn("Failed to watch directory", zap.String("path", dir), zap.Error(err))
	}
	w.syncDirectory(dir)
}

func (w *Watcher) underRoot(path string) bool {
	clean := filepath.Clean(path)
	for _, root := range w.roots {
		if inDir(root, clean) {
			return true
		}
	}
	return false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

func (w *Watcher) debounceIndex(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		stopped := w.watcher == nil
		w.mu.Unlock()
		if !stopped {
			w.index(path)
		}
	})
}

func (w *Watcher) cancelDebounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) index(path string) {
	if err := w.handler.Index(w.ctx, path); err != nil {
		w.logger.Warn("Failed to index file", zap.String("path", path), zap.Error(err))
		return
	}
	w.logger.Debug("watcher indexed file", zap.String("path", path))
}

func (w *Watcher) remove(path string) {
	if err := w.handler.Remove(w.ctx, path); err != nil {
		w.logger.Warn("Failed to remove file", zap.String("path", path), zap.Error(err))
		return
	}
	w.logger.Debug("watcher removed file", zap.String("path", path))
}

func (w *Watcher) syncDirectory(root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && !w.recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if w.ctx.Err() != nil {
			return filepath.SkipAll
		}
		if matchExtension(path, w.extensions) {
			w.index(path)
		}
		return nil
	})
}

// Directories returns the watched root directories.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.roots...)
}

// SyncExistingFiles indexes every existing matching file under the roots. Call it after Start
// to pick up files that were present before watching began.
func (w *Watcher) SyncExistingFiles() {
	for _, root := range w.Directories() {
		w.syncDirectory(root)
	}
}

// Stop stops watching and waits for the event loop to exit. Pending debounced files are dropped.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	fw := w.watcher
	w.watcher = nil
	close(w.done)
	w.mu.Unlock()
	w.wg.Wait()
	_ = fw.Close()
}
