// Package indexer turns files into vector records: extract units, embed them, and upload the
// records in batches.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/colindex/internal/embedding"
	"github.com/hyperjump/colindex/internal/extract"
	"github.com/hyperjump/colindex/internal/fileid"
	"github.com/hyperjump/colindex/internal/models"
	"github.com/hyperjump/colindex/internal/upload"
	"go.uber.org/zap"
)

// KeyDocumentID is the payload key holding the source file's document id.
const KeyDocumentID = "document_id"

// Store is the part of the vector store the indexer reads and deletes through.
type Store interface {
	Collection(ctx context.Context, name string) (*models.CollectionInfo, error)
	DeleteWhere(ctx context.Context, name string, filter *models.Filter) (int, error)
}

// Uploader submits records in batches.
type Uploader interface {
	UploadRecords(ctx context.Context, collection string, records []*models.VectorRecord) (*upload.Report, error)
}

// Indexer indexes files into a collection.
type Indexer struct {
	store     Store
	uploader  Uploader
	embedder  embedding.Embedder
	extractor *extract.Extractor
	logger    *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output (file indexed, file removed, etc.).
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// NewIndexer creates an indexer with the given dependencies. extractor may be nil, in which case
// text is chunked with the default window.
func NewIndexer(store Store, uploader Uploader, embedder embedding.Embedder, extractor *extract.Extractor, opts ...IndexerOption) *Indexer {
	if extractor == nil {
		extractor = extract.NewExtractor(extract.DefaultChunkSize, extract.DefaultChunkOverlap)
	}
	idx := &Indexer{
		store:     store,
		uploader:  uploader,
		embedder:  embedder,
		extractor: extractor,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

func sourceFilter(absPath string) *models.Filter {
	return &models.Filter{Must: []models.FieldCondition{{Key: extract.KeySourcePath, Match: absPath}}}
}

// IndexFile extracts the file at path, embeds each unit, and uploads one record per unit with a
// deterministic id. Records of a previous indexing of the same path are removed first. If
// allowedExts is non-empty, the file's extension must be in it (case-insensitive). Returns the
// number of records uploaded.
func (idx *Indexer) IndexFile(ctx context.Context, collection, path string, allowedExts []string) (int, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
		return 0, fmt.Errorf("%w: extension %q not in allowed list", models.ErrConfiguration, ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return 0, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%w: not a regular file: %s", models.ErrConfiguration, absPath)
	}
	coll, err := idx.store.Collection(ctx, collection)
	if err != nil {
		return 0, err
	}
	if coll.Dimensions != idx.embedder.Dimensions() {
		return 0, fmt.Errorf("%w: collection %q has %d dimensions but the embedder produces %d",
			models.ErrConfiguration, collection, coll.Dimensions, idx.embedder.Dimensions())
	}

	units, err := idx.extractor.Extract(absPath)
	if err != nil {
		return 0, fmt.Errorf("extract content: %w", err)
	}
	records, err := idx.records(ctx, coll, absPath, units)
	if err != nil {
		return 0, err
	}

	removed, err := idx.store.DeleteWhere(ctx, collection, sourceFilter(absPath))
	if err != nil {
		return 0, fmt.Errorf("remove previous records: %w", err)
	}
	if len(records) > 0 {
		report, err := idx.uploader.UploadRecords(ctx, collection, records)
		if err != nil {
			return 0, err
		}
		if err := report.Err(); err != nil {
			return 0, fmt.Errorf("upload %s: %w", absPath, err)
		}
	}
	idx.logger.Debug("indexer file indexed",
		zap.String("path", absPath),
		zap.String("collection", collection),
		zap.Int("records", len(records)),
		zap.Int("replaced", removed))
	return len(records), nil
}

func (idx *Indexer) records(ctx context.Context, coll *models.CollectionInfo, absPath string, units []extract.Unit) ([]*models.VectorRecord, error) {
	docID := fileid.FileDocID(absPath)
	records := make([]*models.VectorRecord, 0, len(units))
	for i, u := range units {
		vec, err := idx.embed(ctx, coll.Layout, u.Content)
		if err != nil {
			return nil, fmt.Errorf("embed unit %d of %s: %w", i, absPath, err)
		}
		u.Payload[KeyDocumentID] = docID
		payload, err := json.Marshal(u.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		records = append(records, &models.VectorRecord{
			ID:      fileid.UnitID(absPath, i),
			Vector:  vec,
			Payload: payload,
		})
	}
	return records, nil
}

func (idx *Indexer) embed(ctx context.Context, layout models.Layout, text string) (models.Vectors, error) {
	if layout == models.LayoutMulti {
		vs, err := idx.embedder.EmbedTokens(ctx, text)
		if err != nil {
			return models.Vectors{}, err
		}
		return models.MultiVector(vs), nil
	}
	v, err := idx.embedder.Embed(ctx, text)
	if err != nil {
		return models.Vectors{}, err
	}
	return models.DenseVector(v), nil
}

// RemoveFile deletes every record extracted from path. Returns the number removed.
func (idx *Indexer) RemoveFile(ctx context.Context, collection, path string) (int, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	n, err := idx.store.DeleteWhere(ctx, collection, sourceFilter(absPath))
	if err != nil {
		return 0, err
	}
	idx.logger.Debug("indexer file removed", zap.String("path", absPath), zap.Int("records", n))
	return n, nil
}

// IndexDirectory walks dir recursively and indexes each regular file whose extension is in
// allowedExts (if non-empty; otherwise all files). Files in an unsupported binary format are
// skipped. Returns the number of files indexed and the first error encountered, if any.
func (idx *Indexer) IndexDirectory(ctx context.Context, collection, dir string, allowedExts []string) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("%w: not a directory: %s", models.ErrConfiguration, absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
			return nil
		}
		// Resolve symlinks so we only index regular files
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		if _, indexErr := idx.IndexFile(ctx, collection, path, allowedExts); indexErr != nil {
			if errors.Is(indexErr, extract.ErrUnsupportedFormat) {
				idx.logger.Debug("indexer skipped file", zap.String("path", path), zap.Error(indexErr))
				return nil
			}
			return indexErr
		}
		n++
		return nil
	})
	return n, err
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
