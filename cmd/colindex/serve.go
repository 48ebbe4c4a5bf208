package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/colindex/internal/extract"
	"github.com/hyperjump/colindex/internal/indexer"
	"github.com/hyperjump/colindex/internal/metrics"
	"github.com/hyperjump/colindex/internal/models"
	"github.com/hyperjump/colindex/internal/progress"
	"github.com/hyperjump/colindex/internal/server"
	"github.com/hyperjump/colindex/internal/upload"
	"github.com/hyperjump/colindex/internal/watcher"
)

func (a *app) serverCmd() *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Serve the HTTP API over the local database",
		Long: `Serve the HTTP API over the local database.

When watch.collection and watch.directories are configured, files under those
directories are indexed into the collection as they change.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if host != "" {
				a.cfg.Server.Host = host
			}
			if port != 0 {
				a.cfg.Server.Port = port
			}
			return a.runServer(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides config)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides config)")
	return cmd
}

func (a *app) runServer(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec := metrics.New(metrics.DefaultConfig())
	b, err := a.openLocal(ctx, rec)
	if err != nil {
		return err
	}
	defer b.Close()

	opts := []server.Option{
		server.WithMetrics(rec),
		server.WithDatabase(b.dbPath, b.storage),
		server.WithVersion(version),
	}
	if a.cfg.Watch.Enabled() {
		w, err := a.startWatcher(ctx, b, rec)
		if err != nil {
			return err
		}
		defer w.Stop()
		opts = append(opts, server.WithWatch(w))
	}

	srv := server.NewServer(b.manager, b.store, b.engine, a.cfg.Server, a.logger, opts...)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	a.logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

// startWatcher indexes the configured directories into the watch collection, creating the
// collection with the embedder's dimensions and the multi layout when it does not exist.
func (a *app) startWatcher(ctx context.Context, b *localBackend, rec *metrics.Recorder) (*watcher.Watcher, error) {
	wc := a.cfg.Watch
	_, err := b.Collection(ctx, wc.Collection)
	if errors.Is(err, models.ErrNotFound) {
		_, err = b.CreateCollection(ctx, models.CollectionConfig{
			Name:       wc.Collection,
			Dimensions: a.cfg.Embedding.Dimensions,
			Layout:     models.LayoutMulti,
		}, false)
	}
	if err != nil {
		return nil, err
	}

	up, err := upload.New(b, a.cfg.Upload.Options, upload.WithLogger(a.logger), upload.WithMetrics(rec))
	if err != nil {
		return nil, err
	}
	idx := indexer.NewIndexer(b, up, a.newEmbedder(),
		extract.NewExtractor(a.cfg.Extract.ChunkSize, a.cfg.Extract.ChunkOverlap),
		indexer.WithLogger(a.logger))
	handler := watcher.HandlerFuncs{
		OnIndex: func(ctx context.Context, path string) error {
			n, err := idx.IndexFile(ctx, wc.Collection, path, wc.Extensions)
			if err == nil {
				a.logger.Info("Indexed file", zap.String("path", path), zap.Int("units", n))
			}
			return err
		},
		OnRemove: func(ctx context.Context, path string) error {
			_, err := idx.RemoveFile(ctx, wc.Collection, path)
			return err
		},
	}
	w := watcher.NewWatcher(wc.Directories, wc.Extensions, wc.RecursiveOrDefault(), handler,
		watcher.WithLogger(a.logger),
		watcher.WithDebounce(wc.Debounce))
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	go w.SyncExistingFiles()
	return w, nil
}

// newTracker starts logging upload progress until the returned stop function is called.
func (a *app) newTracker(ctx context.Context) (*progress.Tracker, func()) {
	tracker := progress.NewTracker(a.cfg.Upload.ProgressInterval, a.logger)
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		tracker.Run(ctx)
	}()
	return tracker, func() {
		cancel()
		<-done
	}
}
