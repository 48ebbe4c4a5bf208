// Package store implements the multi-vector store: collections whose records are persisted in
// SQLite at full precision and scored from a resident index, exactly or from binary codes with
// exact rescoring.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/colindex/internal/keyword"
	"github.com/hyperjump/colindex/internal/metrics"
	"github.com/hyperjump/colindex/internal/models"
	"github.com/hyperjump/colindex/internal/storage"
	"github.com/hyperjump/colindex/internal/vector"
)

// rebuildBatch is how many stored points are loaded into an index at a time on Open.
const rebuildBatch = 1024

// Store owns the resident state of every collection. It is safe for concurrent use.
type Store struct {
	storage  storage.Storage
	logger   *zap.Logger
	metrics  *metrics.Recorder
	textOpts *keyword.MatchOptions

	mu          sync.RWMutex
	collections map[string]*collection
}

// collection is the resident half of one collection. Writers hold mu exclusively across the
// storage transaction and the index update so both apply in the same order.
type collection struct {
	mu        sync.RWMutex
	cfg       models.CollectionConfig
	createdAt time.Time
	scorer    vector.Scorer
	index     vector.Index
	text      keyword.TextIndex
	// payloads has an entry for every stored id; the value is nil when the record has no payload.
	payloads map[string]map[string]any
	dropped  bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records upserts, deletes and searches.
func WithMetrics(m *metrics.Recorder) Option {
	return func(s *Store) { s.metrics = m }
}

// WithTextFuzziness enables typo-tolerant filter.text matching with the given edit distance.
func WithTextFuzziness(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.textOpts = &keyword.MatchOptions{Fuzziness: n}
		}
	}
}

// New creates a store over st. Call Open to load existing collections. The caller keeps
// ownership of st and closes it after Close.
func New(st storage.Storage, opts ...Option) *Store {
	s := &Store{
		storage:     st,
		logger:      zap.NewNop(),
		collections: make(map[string]*collection),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newCollection(cfg models.CollectionConfig, createdAt time.Time) (*collection, error) {
	index, err := vector.NewIndex(&cfg)
	if err != nil {
		return nil, err
	}
	text, err := keyword.NewBleveIndex()
	if err != nil {
		_ = index.Close()
		return nil, err
	}
	return &collection{
		cfg:       cfg,
		createdAt: createdAt,
		scorer:    vector.NewScorer(cfg.Metric),
		index:     index,
		text:      text,
		payloads:  make(map[string]map[string]any),
	}, nil
}

func (c *collection) close() {
	_ = c.index.Close()
	_ = c.text.Close()
}

func (c *collection) info() *models.CollectionInfo {
	return &models.CollectionInfo{
		CollectionConfig: c.cfg,
		PointsCount:      int64(c.index.Size()),
		CreatedAt:        c.createdAt,
	}
}

// Open rebuilds the resident index of every stored collection.
func (s *Store) Open(ctx context.Context) error {
	infos, err := s.storage.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, info := range infos {
		start := time.Now()
		c, err := newCollection(info.CollectionConfig, info.CreatedAt)
		if err != nil {
			return fmt.Errorf("collection %q: %w", info.Name, err)
		}
		if err := s.rebuild(ctx, c); err != nil {
			c.close()
			return fmt.Errorf("collection %q: %w", info.Name, err)
		}
		if old, ok := s.collections[info.Name]; ok {
			old.close()
		}
		s.collections[info.Name] = c
		s.logger.Info("Loaded collection",
			zap.String("collection", info.Name),
			zap.Int("points", c.index.Size()),
			zap.String("index", c.index.Type()),
			zap.Duration("elapsed", time.Since(start)))
	}
	s.metrics.SetCollections(len(s.collections))
	return nil
}

func (s *Store) rebuild(ctx context.Context, c *collection) error {
	entries := make([]vector.Entry, 0, rebuildBatch)
	texts := make(map[string]map[string]any)
	flush := func() error {
		if err := c.index.Upsert(ctx, entries); err != nil {
			return err
		}
		if err := c.text.IndexBatch(ctx, texts); err != nil {
			return err
		}
		entries = entries[:0]
		texts = make(map[string]map[string]any)
		return nil
	}
	err := s.storage.ScanPoints(ctx, c.cfg.Name, func(p *models.StoredPoint) error {
		payload, err := decodePayload(p.ID, p.Payload)
		if err != nil {
			return err
		}
		c.payloads[p.ID] = payload
		entries = append(entries, vector.Entry{ID: p.ID, Seq: p.Seq, Vectors: p.Vectors})
		if payload != nil {
			texts[p.ID] = payload
		}
		if len(entries) == rebuildBatch {
			return flush()
		}
		return nil
	})
	if err != nil {
		return err
	}
	return flush()
}

func decodePayload(id string, raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: record %q payload must be a JSON object: %v", models.ErrConfiguration, id, err)
	}
	return m, nil
}

func (s *Store) lookup(name string) (*collection, error) {
	s.mu.RLock()
	c, ok := s.collections[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: collection %q", models.ErrNotFound, name)
	}
	return c, nil
}

// CreateCollection validates cfg and creates an empty collection. It fails with ErrConflict when
// the name is taken.
func (s *Store) CreateCollection(ctx context.Context, cfg models.CollectionConfig) (*models.CollectionInfo, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[cfg.Name]; ok {
		return nil, fmt.Errorf("%w: collection %q already exists", models.ErrConflict, cfg.Name)
	}
	info := &models.CollectionInfo{CollectionConfig: cfg, CreatedAt: time.Now().UTC()}
	c, err := newCollection(cfg, info.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := s.storage.CreateCollection(ctx, info); err != nil {
		c.close()
		return nil, fmt.Errorf("failed to create collection %q: %w", cfg.Name, err)
	}
	s.collections[cfg.Name] = c
	s.metrics.SetCollections(len(s.collections))
	return c.info(), nil
}

// DropCollection removes a collection and all its records. It reports whether it existed.
func (s *Store) DropCollection(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, resident := s.collections[name]
	if resident {
		c.mu.Lock()
		defer c.mu.Unlock()
	}
	existed, err := s.storage.DeleteCollection(ctx, name)
	if err != nil {
		return false, fmt.Errorf("failed to delete collection %q: %w", name, err)
	}
	if resident {
		c.dropped = true
		c.close()
		delete(s.collections, name)
		s.metrics.SetCollections(len(s.collections))
	}
	return existed || resident, nil
}

// Collection returns a collection's configuration and record count.
func (s *Store) Collection(ctx context.Context, name string) (*models.CollectionInfo, error) {
	c, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info(), nil
}

// Collections returns every collection sorted by name.
func (s *Store) Collections(ctx context.Context) ([]*models.CollectionInfo, error) {
	s.mu.RLock()
	cs := make([]*collection, 0, len(s.collections))
	for _, c := range s.collections {
		cs = append(cs, c)
	}
	s.mu.RUnlock()
	out := make([]*models.CollectionInfo, 0, len(cs))
	for _, c := range cs {
		c.mu.RLock()
		out = append(out, c.info())
		c.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Upsert inserts or replaces records by id. Every record is checked before anything is written;
// the batch is then committed in one transaction, so it is stored entirely or not at all.
// Records without an id get a random one.
func (s *Store) Upsert(ctx context.Context, name string, records []*models.VectorRecord) error {
	c, err := s.lookup(name)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	points := make([]*models.StoredPoint, len(records))
	payloads := make([]map[string]any, len(records))
	for i, r := range records {
		if r == nil {
			return fmt.Errorf("%w: record %d is null", models.ErrConfiguration, i)
		}
		if err := r.Validate(); err != nil {
			return err
		}
		r.EnsureID()
		if err := r.Vector.CheckShape(r.ID, c.cfg.Dimensions, c.cfg.Layout); err != nil {
			return err
		}
		payload, err := decodePayload(r.ID, r.Payload)
		if err != nil {
			return err
		}
		payloads[i] = payload
		points[i] = &models.StoredPoint{ID: r.ID, Vectors: r.Vector.Set(), Payload: r.Payload}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dropped {
		return fmt.Errorf("%w: collection %q", models.ErrNotFound, name)
	}
	if err := s.storage.UpsertPoints(ctx, name, points); err != nil {
		return fmt.Errorf("failed to store points: %w", err)
	}

	entries := make([]vector.Entry, len(points))
	texts := make(map[string]map[string]any, len(points))
	for i, p := range points {
		entries[i] = vector.Entry{ID: p.ID, Seq: p.Seq, Vectors: p.Vectors}
		c.payloads[p.ID] = payloads[i]
		texts[p.ID] = payloads[i]
	}
	// The storage write is committed; index errors here mean resident state diverged.
	if err := c.index.Upsert(context.WithoutCancel(ctx), entries); err != nil {
		return fmt.Errorf("failed to update index: %w", err)
	}
	if err := c.text.IndexBatch(context.WithoutCancel(ctx), texts); err != nil {
		return fmt.Errorf("failed to update text index: %w", err)
	}
	s.metrics.RecordUpsert(name, len(points))
	return nil
}

// Search scores every record allowed by req.Filter against req.Vectors and returns the TopK best,
// highest score first, ties broken by insertion order.
func (s *Store) Search(ctx context.Context, name string, req *models.SearchRequest) (results []*models.ScoredPoint, err error) {
	start := time.Now()
	defer func() { s.metrics.RecordSearch(name, time.Since(start), err) }()

	c, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	if req.Vectors.Count() == 0 || (!req.Vectors.IsMulti() && len(req.Vectors.Dense) == 0) {
		return nil, fmt.Errorf("%w: no query vectors", models.ErrEmptyQuery)
	}
	if req.TopK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", models.ErrConfiguration, req.TopK)
	}
	if err := req.Vectors.CheckShape("", c.cfg.Dimensions, c.cfg.Layout); err != nil {
		return nil, err
	}
	query := req.Vectors.Set()

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.dropped {
		return nil, fmt.Errorf("%w: collection %q", models.ErrNotFound, name)
	}

	allow, err := s.allowFunc(ctx, c, req.Filter)
	if err != nil {
		return nil, err
	}

	k := candidateCount(req.TopK, c.index.Size(), c.index.Exact(), c.cfg.Quantization.Multiplier())
	cands, err := c.index.Search(ctx, query, k, allow)
	if err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		return []*models.ScoredPoint{}, nil
	}

	ids := make([]string, len(cands))
	for i, cand := range cands {
		ids[i] = cand.ID
	}
	points, err := s.storage.GetPoints(ctx, name, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load points: %w", err)
	}

	if !c.index.Exact() {
		cands = rescore(c.scorer, query, cands, points)
	}
	if len(cands) > req.TopK {
		cands = cands[:req.TopK]
	}

	results = make([]*models.ScoredPoint, 0, len(cands))
	for _, cand := range cands {
		p, ok := points[cand.ID]
		if !ok {
			continue
		}
		results = append(results, &models.ScoredPoint{ID: cand.ID, Score: cand.Score, Payload: p.Payload})
	}
	return results, nil
}

// candidateCount is how many index candidates a search of topK over size records needs: topK for
// an exact index, topK*multiplier for a quantized one, never more than size.
func candidateCount(topK, size int, exact bool, multiplier int) int {
	k := topK
	if !exact && multiplier > 1 {
		if topK > size/multiplier {
			k = size
		} else {
			k = topK * multiplier
		}
	}
	return min(k, size)
}

// rescore replaces approximate candidate scores with exact max-sim over full-precision vectors.
func rescore(scorer vector.Scorer, query [][]float32, cands []*vector.Candidate, points map[string]*models.StoredPoint) []*vector.Candidate {
	q := scorer.PrepareSet(query)
	out := make([]*vector.Candidate, 0, len(cands))
	for _, cand := range cands {
		p, ok := points[cand.ID]
		if !ok {
			continue
		}
		out = append(out, &vector.Candidate{
			ID:    cand.ID,
			Seq:   cand.Seq,
			Score: scorer.MaxSim(q, scorer.PrepareSet(p.Vectors)),
		})
	}
	vector.SortCandidates(out)
	return out
}

// allowFunc turns a filter into an index predicate. Callers hold c.mu.
func (s *Store) allowFunc(ctx context.Context, c *collection, f *models.Filter) (func(id string) bool, error) {
	if f.IsEmpty() {
		return nil, nil
	}
	var textHits map[string]float64
	if f.Text != "" {
		hits, err := c.text.Match(ctx, f.Text, s.textOpts)
		if err != nil {
			return nil, fmt.Errorf("text filter failed: %w", err)
		}
		textHits = hits
	}
	fields := len(f.Must) > 0 || len(f.MustNot) > 0
	return func(id string) bool {
		if textHits != nil {
			if _, ok := textHits[id]; !ok {
				return false
			}
		}
		return !fields || f.MatchPayload(c.payloads[id])
	}, nil
}

// Delete removes records by id and returns how many existed.
func (s *Store) Delete(ctx context.Context, name string, ids []string) (int, error) {
	c, err := s.lookup(name)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dropped {
		return 0, fmt.Errorf("%w: collection %q", models.ErrNotFound, name)
	}
	return s.deleteLocked(ctx, c, ids)
}

// DeleteWhere removes every record matching filter. An empty filter is rejected.
func (s *Store) DeleteWhere(ctx context.Context, name string, filter *models.Filter) (int, error) {
	if filter.IsEmpty() {
		return 0, fmt.Errorf("%w: delete filter must not be empty", models.ErrConfiguration)
	}
	c, err := s.lookup(name)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dropped {
		return 0, fmt.Errorf("%w: collection %q", models.ErrNotFound, name)
	}
	allow, err := s.allowFunc(ctx, c, filter)
	if err != nil {
		return 0, err
	}
	var ids []string
	for id := range c.payloads {
		if allow(id) {
			ids = append(ids, id)
		}
	}
	return s.deleteLocked(ctx, c, ids)
}

func (s *Store) deleteLocked(ctx context.Context, c *collection, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := s.storage.DeletePoints(ctx, c.cfg.Name, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to delete points: %w", err)
	}
	if _, err := c.index.Remove(context.WithoutCancel(ctx), ids); err != nil {
		return 0, fmt.Errorf("failed to update index: %w", err)
	}
	if err := c.text.Delete(context.WithoutCancel(ctx), ids...); err != nil {
		return 0, fmt.Errorf("failed to update text index: %w", err)
	}
	for _, id := range ids {
		delete(c.payloads, id)
	}
	s.metrics.RecordDelete(c.cfg.Name, int(n))
	return int(n), nil
}

// Close releases every resident index.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, c := range s.collections {
		c.mu.Lock()
		c.dropped = true
		c.close()
		c.mu.Unlock()
		delete(s.collections, name)
	}
	return nil
}
