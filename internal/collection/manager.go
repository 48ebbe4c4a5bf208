// Package collection manages the lifecycle of named collections.
package collection

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/colindex/internal/models"
)

// Backend is the store surface the manager drives. *store.Store implements it.
type Backend interface {
	CreateCollection(ctx context.Context, cfg models.CollectionConfig) (*models.CollectionInfo, error)
	DropCollection(ctx context.Context, name string) (bool, error)
	Collection(ctx context.Context, name string) (*models.CollectionInfo, error)
	Collections(ctx context.Context) ([]*models.CollectionInfo, error)
}

// Manager creates, verifies, and destroys collections.
type Manager struct {
	backend Backend
	logger  *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates a manager over backend.
func NewManager(backend Backend, opts ...Option) *Manager {
	m := &Manager{backend: backend, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Ensure makes a collection with cfg exist. With recreate an existing collection is destroyed
// first. Without it an equivalent existing collection is returned unchanged and a different one
// fails with ErrConflict.
func (m *Manager) Ensure(ctx context.Context, cfg models.CollectionConfig, recreate bool) (*models.CollectionInfo, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if recreate {
		existed, err := m.backend.DropCollection(ctx, cfg.Name)
		if err != nil {
			return nil, err
		}
		if existed {
			m.logger.Info("Dropped collection for recreate", zap.String("collection", cfg.Name))
		}
	} else {
		existing, err := m.backend.Collection(ctx, cfg.Name)
		switch models.Kind(err) {
		case "":
			if field := existing.Equivalent(&cfg); field != "" {
				return nil, fmt.Errorf("%w: collection %q exists with a different %s", models.ErrConflict, cfg.Name, field)
			}
			return existing, nil
		case models.KindNotFound:
		default:
			return nil, err
		}
	}

	info, err := m.backend.CreateCollection(ctx, cfg)
	if err != nil {
		return nil, err
	}
	m.logger.Info("Created collection",
		zap.String("collection", info.Name),
		zap.Int("dimensions", info.Dimensions),
		zap.String("metric", string(info.Metric)),
		zap.String("layout", string(info.Layout)),
		zap.Bool("quantized", info.Quantization.Enabled()))
	return info, nil
}

// Destroy removes a collection and all its records. A missing collection is not an error.
func (m *Manager) Destroy(ctx context.Context, name string) error {
	existed, err := m.backend.DropCollection(ctx, name)
	if err != nil {
		return err
	}
	if existed {
		m.logger.Info("Destroyed collection", zap.String("collection", name))
	}
	return nil
}

// Describe returns a collection's configuration and record count, or ErrNotFound.
func (m *Manager) Describe(ctx context.Context, name string) (*models.CollectionInfo, error) {
	return m.backend.Collection(ctx, name)
}

// List returns all collections sorted by name.
func (m *Manager) List(ctx context.Context) ([]*models.CollectionInfo, error) {
	return m.backend.Collections(ctx)
}
