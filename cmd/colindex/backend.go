package main

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/hyperjump/colindex/internal/client"
	"github.com/hyperjump/colindex/internal/collection"
	"github.com/hyperjump/colindex/internal/embedding"
	"github.com/hyperjump/colindex/internal/indexer"
	"github.com/hyperjump/colindex/internal/metrics"
	"github.com/hyperjump/colindex/internal/models"
	"github.com/hyperjump/colindex/internal/search"
	"github.com/hyperjump/colindex/internal/storage"
	"github.com/hyperjump/colindex/internal/store"
	"github.com/hyperjump/colindex/internal/upload"
)

// backend is what the commands need from either the local database or a remote server.
type backend interface {
	upload.Target
	indexer.Store
	CreateCollection(ctx context.Context, cfg models.CollectionConfig, recreate bool) (*models.CollectionInfo, error)
	DeleteCollection(ctx context.Context, name string) error
	Collections(ctx context.Context) ([]*models.CollectionInfo, error)
	// Search uses the backend's default result count when q.TopK is zero.
	Search(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, error)
	Status(ctx context.Context) (*models.ServiceStatus, error)
	Close() error
}

var _ backend = (*client.Client)(nil)

func (a *app) newEmbedder() embedding.Embedder {
	e := a.cfg.Embedding
	return embedding.NewCachedEmbedder(embedding.NewHashEmbedder(e.Dimensions, e.MaxTokens), e.CacheSize)
}

func (a *app) openBackend(ctx context.Context) (backend, error) {
	if a.cfg.Client.URL != "" {
		c, err := client.New(a.cfg.Client.URL,
			client.WithTimeout(a.cfg.Client.Timeout),
			client.WithLogger(a.logger),
			client.WithRetry(a.cfg.Upload.Retry))
		if err != nil {
			return nil, err
		}
		a.logger.Debug("using remote server", zap.String("url", a.cfg.Client.URL))
		return c, nil
	}
	return a.openLocal(ctx, nil)
}

// localBackend owns the components built over the SQLite database.
type localBackend struct {
	storage *storage.SQLiteStorage
	store   *store.Store
	manager *collection.Manager
	engine  *search.Engine
	dbPath  string
}

func (a *app) openLocal(ctx context.Context, rec *metrics.Recorder) (*localBackend, error) {
	dbPath := a.cfg.Storage.DatabasePath
	st, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}
	s := store.New(st,
		store.WithLogger(a.logger),
		store.WithMetrics(rec),
		store.WithTextFuzziness(a.cfg.Search.TextFuzziness))
	if err := s.Open(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	engine, err := search.NewEngine(s, a.cfg.Search,
		search.WithLogger(a.logger),
		search.WithEmbedder(a.newEmbedder()))
	if err != nil {
		_ = s.Close()
		_ = st.Close()
		return nil, err
	}
	return &localBackend{
		storage: st,
		store:   s,
		manager: collection.NewManager(s, collection.WithLogger(a.logger)),
		engine:  engine,
		dbPath:  dbPath,
	}, nil
}

func (b *localBackend) Upsert(ctx context.Context, name string, records []*models.VectorRecord) error {
	return b.store.Upsert(ctx, name, records)
}

func (b *localBackend) Collection(ctx context.Context, name string) (*models.CollectionInfo, error) {
	return b.manager.Describe(ctx, name)
}

func (b *localBackend) DeleteWhere(ctx context.Context, name string, filter *models.Filter) (int, error) {
	return b.store.DeleteWhere(ctx, name, filter)
}

func (b *localBackend) CreateCollection(ctx context.Context, cfg models.CollectionConfig, recreate bool) (*models.CollectionInfo, error) {
	return b.manager.Ensure(ctx, cfg, recreate)
}

func (b *localBackend) DeleteCollection(ctx context.Context, name string) error {
	return b.manager.Destroy(ctx, name)
}

func (b *localBackend) Collections(ctx context.Context) ([]*models.CollectionInfo, error) {
	return b.manager.List(ctx)
}

func (b *localBackend) Search(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, error) {
	if q.TopK == 0 {
		withDefault := *q
		withDefault.TopK = b.engine.DefaultTopK()
		q = &withDefault
	}
	return b.engine.Search(ctx, q)
}

func (b *localBackend) Status(ctx context.Context) (*models.ServiceStatus, error) {
	infos, err := b.manager.List(ctx)
	if err != nil {
		return nil, err
	}
	status := &models.ServiceStatus{Version: version, Collections: infos, DatabasePath: b.dbPath}
	for _, info := range infos {
		status.Points += info.PointsCount
	}
	if status.DiskUsageBytes, err = b.storage.DiskUsageBytes(); err != nil {
		return nil, err
	}
	return status, nil
}

func (b *localBackend) Close() error {
	return errors.Join(b.store.Close(), b.storage.Close())
}
