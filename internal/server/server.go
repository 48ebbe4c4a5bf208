// Package server provides the HTTP API for colindex.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/colindex/internal/collection"
	"github.com/hyperjump/colindex/internal/config"
	"github.com/hyperjump/colindex/internal/metrics"
	"github.com/hyperjump/colindex/internal/models"
	"github.com/hyperjump/colindex/internal/search"
	"go.uber.org/zap"
)

// PointStore is the record-level part of the store the API writes through.
type PointStore interface {
	Upsert(ctx context.Context, name string, records []*models.VectorRecord) error
	Delete(ctx context.Context, name string, ids []string) (int, error)
	DeleteWhere(ctx context.Context, name string, filter *models.Filter) (int, error)
}

// WatchService reports the directories being watched.
type WatchService interface {
	Directories() []string
}

// DiskUsage reports the size of the database on disk.
type DiskUsage interface {
	DiskUsageBytes() (int64, error)
}

// Server is the HTTP server for the colindex API.
type Server struct {
	manager      *collection.Manager
	points       PointStore
	engine       *search.Engine
	config       config.ServerConfig
	logger       *zap.Logger
	metrics      *metrics.Recorder
	watch        WatchService
	disk         DiskUsage
	databasePath string
	version      string
	server       *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics serves the recorder's registry at /metrics.
func WithMetrics(m *metrics.Recorder) Option {
	return func(s *Server) { s.metrics = m }
}

// WithWatch reports the watcher's directories in the status endpoint.
func WithWatch(w WatchService) Option {
	return func(s *Server) { s.watch = w }
}

// WithDatabase reports the database path and its disk usage in the status endpoint.
func WithDatabase(path string, disk DiskUsage) Option {
	return func(s *Server) {
		s.databasePath = path
		s.disk = disk
	}
}

// WithVersion sets the version reported by the status endpoint.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer creates a server with the given dependencies.
func NewServer(
	manager *collection.Manager,
	points PointStore,
	engine *search.Engine,
	cfg config.ServerConfig,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		manager: manager,
		points:  points,
		engine:  engine,
		config:  cfg,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	timeout := s.config.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: zap.NewStdLog(s.logger), NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.Compress(5))

	r.Get("/collections", s.handleListCollections)
	r.Post("/collection/{name}", s.handleCreateCollection)
	r.Put("/collection/{name}", s.handleCreateCollection)
	r.Get("/collection/{name}", s.handleDescribeCollection)
	r.Delete("/collection/{name}", s.handleDeleteCollection)
	r.Post("/points/{name}", s.handleUpsertPoints)
	r.Put("/points/{name}", s.handleUpsertPoints)
	r.Post("/points/{name}/delete", s.handleDeletePoints)
	r.Post("/search/{name}", s.handleSearch)

	r.Get("/health", s.handleHealth)
	r.Get("/api/v1/status", s.handleStatus)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	return r
}

// Start starts the HTTP server and blocks until it stops. A clean shutdown returns nil.
func (s *Server) Start() error {
	addr := s.config.Addr()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
