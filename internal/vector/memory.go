package vector

import (
	"context"
	"fmt"
	"sync"
)

// checkEvery is how many entries a scan processes between context checks.
const checkEvery = 1024

// MemoryIndex is a brute-force resident index holding prepared full-precision vectors.
type MemoryIndex struct {
	dimensions int
	scorer     Scorer
	ids        []string
	seqs       []int64
	vectors    [][][]float32
	pos        map[string]int
	mu         sync.RWMutex
}

// NewMemoryIndex creates a full-precision index for vectors of the given dimension.
func NewMemoryIndex(dimensions int, scorer Scorer) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		scorer:     scorer,
		pos:        make(map[string]int),
	}, nil
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// Exact is true: scores are computed on full-precision vectors.
func (m *MemoryIndex) Exact() bool { return true }

// Upsert stores prepared copies of the entries' vectors.
func (m *MemoryIndex) Upsert(ctx context.Context, entries []Entry) error {
	prepared := make([][][]float32, len(entries))
	for i, e := range entries {
		if err := checkDims(e, m.dimensions); err != nil {
			return err
		}
		prepared[i] = m.scorer.PrepareSet(e.Vectors)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range entries {
		if p, ok := m.pos[e.ID]; ok {
			m.vectors[p] = prepared[i]
			continue
		}
		m.pos[e.ID] = len(m.ids)
		m.ids = append(m.ids, e.ID)
		m.seqs = append(m.seqs, e.Seq)
		m.vectors = append(m.vectors, prepared[i])
	}
	return nil
}

// Remove deletes ids by swapping the last entry into each freed slot.
func (m *MemoryIndex) Remove(ctx context.Context, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for _, id := range ids {
		p, ok := m.pos[id]
		if !ok {
			continue
		}
		last := len(m.ids) - 1
		if p != last {
			m.ids[p], m.seqs[p], m.vectors[p] = m.ids[last], m.seqs[last], m.vectors[last]
			m.pos[m.ids[p]] = p
		}
		m.ids, m.seqs, m.vectors = m.ids[:last], m.seqs[:last], m.vectors[:last]
		delete(m.pos, id)
		removed++
	}
	return removed, nil
}

// Search returns the top-k entries by max-sim (plain similarity for one-vector sets).
func (m *MemoryIndex) Search(ctx context.Context, query [][]float32, k int, allow func(id string) bool) ([]*Candidate, error) {
	for _, q := range query {
		if len(q) != m.dimensions {
			return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(q), m.dimensions)
		}
	}
	q := m.scorer.PrepareSet(query)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.ids) == 0 {
		return nil, nil
	}
	top := newTopK(k, len(m.ids))
	for i, id := range m.ids {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if allow != nil && !allow(id) {
			continue
		}
		top.offer(&Candidate{ID: id, Seq: m.seqs[i], Score: m.scorer.MaxSim(q, m.vectors[i])})
	}
	return top.sorted(), nil
}

// Seq returns the insertion sequence of id.
func (m *MemoryIndex) Seq(id string) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pos[id]
	if !ok {
		return 0, false
	}
	return m.seqs[p], true
}

// Size returns the number of records in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}

func checkDims(e Entry, dims int) error {
	for _, v := range e.Vectors {
		if len(v) != dims {
			return fmt.Errorf("vector dimension mismatch for %q: got %d, expected %d", e.ID, len(v), dims)
		}
	}
	return nil
}
