// Package storage defines the persistence interface for collections and their full-precision points.
package storage

import (
	"context"

	"github.com/hyperjump/colindex/internal/models"
)

// Storage defines collection and point persistence operations. It is the secondary storage that
// keeps original vectors for rescoring and rebuilds resident indexes at startup.
type Storage interface {
	// Collection operations
	CreateCollection(ctx context.Context, info *models.CollectionInfo) error
	GetCollection(ctx context.Context, name string) (*models.CollectionInfo, error)
	ListCollections(ctx context.Context) ([]*models.CollectionInfo, error)
	// DeleteCollection removes a collection and all its points. It reports whether it existed.
	DeleteCollection(ctx context.Context, name string) (bool, error)

	// Point operations

	// UpsertPoints inserts or replaces points in one transaction and sets each point's Seq. A
	// replaced point keeps the Seq it was first stored with.
	UpsertPoints(ctx context.Context, collection string, points []*models.StoredPoint) error
	// GetPoints returns the stored points among ids, keyed by id. Missing ids are skipped.
	GetPoints(ctx context.Context, collection string, ids []string) (map[string]*models.StoredPoint, error)
	// ScanPoints calls fn for every point in insertion order.
	ScanPoints(ctx context.Context, collection string, fn func(*models.StoredPoint) error) error
	DeletePoints(ctx context.Context, collection string, ids []string) (int64, error)

	// Stats
	CountPoints(ctx context.Context, collection string) (int64, error)
	DiskUsageBytes() (int64, error)

	Close() error
}
