// Package storage provides SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/hyperjump/colindex/internal/models"
)

// maxQueryParams bounds the ids bound into one IN (...) clause.
const maxQueryParams = 500

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		dimensions INTEGER NOT NULL,
		metric TEXT NOT NULL,
		layout TEXT NOT NULL,
		quantization TEXT,
		next_seq INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS points (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		vectors BLOB NOT NULL,
		payload BLOB,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (collection, id)
	);

	CREATE INDEX IF NOT EXISTS idx_points_collection_seq ON points(collection, seq);
	`
	_, err := db.Exec(schema)
	return err
}

// classify marks lock contention as transient so upload retries it.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: %v", models.ErrTransient, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", models.ErrTransient, err)
	}
	return err
}

// CreateCollection inserts a collection. It fails with ErrConflict if the name is taken.
func (s *SQLiteStorage) CreateCollection(ctx context.Context, info *models.CollectionInfo) error {
	var quantJSON sql.NullString
	if info.Quantization.Enabled() {
		b, err := json.Marshal(info.Quantization)
		if err != nil {
			return fmt.Errorf("failed to marshal quantization: %w", err)
		}
		quantJSON = sql.NullString{String: string(b), Valid: true}
	}
	if info.CreatedAt.IsZero() {
		info.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO collections (name, dimensions, metric, layout, quantization, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		info.Name, info.Dimensions, string(info.Metric), string(info.Layout), quantJSON, info.CreatedAt,
	)
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: collection %q already exists", models.ErrConflict, info.Name)
	}
	return classify(err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCollection(row rowScanner) (*models.CollectionInfo, error) {
	var info models.CollectionInfo
	var metric, layout string
	var quantJSON sql.NullString
	if err := row.Scan(&info.Name, &info.Dimensions, &metric, &layout, &quantJSON, &info.CreatedAt, &info.PointsCount); err != nil {
		return nil, err
	}
	info.Metric = models.Metric(metric)
	info.Layout = models.Layout(layout)
	if quantJSON.Valid && quantJSON.String != "" {
		var q models.QuantizationPolicy
		if err := json.Unmarshal([]byte(quantJSON.String), &q); err != nil {
			return nil, fmt.Errorf("failed to unmarshal quantization: %w", err)
		}
		info.Quantization = &q
	}
	return &info, nil
}

const selectCollection = `
	SELECT c.name, c.dimensions, c.metric, c.layout, c.quantization, c.created_at,
	       (SELECT COUNT(*) FROM points p WHERE p.collection = c.name)
	FROM collections c`

// GetCollection returns a collection with its point count, or ErrNotFound.
func (s *SQLiteStorage) GetCollection(ctx context.Context, name string) (*models.CollectionInfo, error) {
	info, err := scanCollection(s.db.QueryRowContext(ctx, selectCollection+` WHERE c.name = ?`, name))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: collection %q", models.ErrNotFound, name)
	}
	if err != nil {
		return nil, classify(err)
	}
	return info, nil
}

// ListCollections returns all collections ordered by name.
func (s *SQLiteStorage) ListCollections(ctx context.Context) ([]*models.CollectionInfo, error) {
	rows, err := s.db.QueryContext(ctx, selectCollection+` ORDER BY c.name`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []*models.CollectionInfo
	for rows.Next() {
		info, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// DeleteCollection removes a collection and its points in a transaction.
func (s *SQLiteStorage) DeleteCollection(ctx context.Context, name string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, classify(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM points WHERE collection = ?`, name); err != nil {
		return false, classify(err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, name)
	if err != nil {
		return false, classify(err)
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return false, classify(err)
	}
	return n > 0, nil
}

// UpsertPoints writes all points or none. New points draw their Seq from the collection's counter.
func (s *SQLiteStorage) UpsertPoints(ctx context.Context, collection string, points []*models.StoredPoint) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback()

	var next int64
	err = tx.QueryRowContext(ctx, `SELECT next_seq FROM collections WHERE name = ?`, collection).Scan(&next)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: collection %q", models.ErrNotFound, collection)
	}
	if err != nil {
		return classify(err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO points (collection, id, seq, vectors, payload, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(collection, id) DO UPDATE SET
		   vectors = excluded.vectors,
		   payload = excluded.payload,
		   updated_at = excluded.updated_at
		 RETURNING seq`,
	)
	if err != nil {
		return classify(err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, p := range points {
		var payload []byte
		if len(p.Payload) > 0 {
			payload = p.Payload
		}
		var seq int64
		if err := stmt.QueryRowContext(ctx, collection, p.ID, next, encodeVectors(p.Vectors), payload, now).Scan(&seq); err != nil {
			return classify(err)
		}
		p.Seq = seq
		if seq == next {
			next++
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE collections SET next_seq = ? WHERE name = ?`, next, collection); err != nil {
		return classify(err)
	}
	return classify(tx.Commit())
}

// GetPoints loads points by id.
func (s *SQLiteStorage) GetPoints(ctx context.Context, collection string, ids []string) (map[string]*models.StoredPoint, error) {
	out := make(map[string]*models.StoredPoint, len(ids))
	for start := 0; start < len(ids); start += maxQueryParams {
		end := min(start+maxQueryParams, len(ids))
		chunk := ids[start:end]
		args := make([]any, 0, len(chunk)+1)
		args = append(args, collection)
		for _, id := range chunk {
			args = append(args, id)
		}
		query := `SELECT id, seq, vectors, payload FROM points WHERE collection = ? AND id IN (?` +
			strings.Repeat(",?", len(chunk)-1) + `)`
		if err := s.queryPoints(ctx, query, args, func(p *models.StoredPoint) error {
			out[p.ID] = p
			return nil
		}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ScanPoints streams a collection's points ordered by seq.
func (s *SQLiteStorage) ScanPoints(ctx context.Context, collection string, fn func(*models.StoredPoint) error) error {
	return s.queryPoints(ctx,
		`SELECT id, seq, vectors, payload FROM points WHERE collection = ? ORDER BY seq`,
		[]any{collection}, fn)
}

func (s *SQLiteStorage) queryPoints(ctx context.Context, query string, args []any, fn func(*models.StoredPoint) error) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return classify(err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.StoredPoint
		var blob, payload []byte
		if err := rows.Scan(&p.ID, &p.Seq, &blob, &payload); err != nil {
			return err
		}
		vs, err := decodeVectors(blob)
		if err != nil {
			return fmt.Errorf("point %q: %w", p.ID, err)
		}
		p.Vectors = vs
		if len(payload) > 0 {
			p.Payload = json.RawMessage(payload)
		}
		if err := fn(&p); err != nil {
			return err
		}
	}
	return classify(rows.Err())
}

// DeletePoints removes points by id and returns how many existed.
func (s *SQLiteStorage) DeletePoints(ctx context.Context, collection string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify(err)
	}
	defer tx.Rollback()

	var total int64
	for start := 0; start < len(ids); start += maxQueryParams {
		end := min(start+maxQueryParams, len(ids))
		chunk := ids[start:end]
		args := make([]any, 0, len(chunk)+1)
		args = append(args, collection)
		for _, id := range chunk {
			args = append(args, id)
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM points WHERE collection = ? AND id IN (?`+strings.Repeat(",?", len(chunk)-1)+`)`, args...)
		if err != nil {
			return 0, classify(err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, classify(tx.Commit())
}

// CountPoints returns the number of points in a collection.
func (s *SQLiteStorage) CountPoints(ctx context.Context, collection string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM points WHERE collection = ?`, collection).Scan(&count)
	return count, classify(err)
}

// DiskUsageBytes returns the on-disk size of the database including its WAL files.
func (s *SQLiteStorage) DiskUsageBytes() (int64, error) {
	return DiskUsageBytes(DatabaseFiles(s.path)...)
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
