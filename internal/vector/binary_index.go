package vector

import (
	"context"
	"fmt"
	"sync"
)

// BinaryIndex keeps only sign-bit codes resident: 1 bit per component instead of 32. Its scores
// approximate the metric, so callers rescore its candidates with full-precision vectors.
type BinaryIndex struct {
	dimensions int
	scorer     Scorer
	ids        []string
	seqs       []int64
	codes      [][]BinaryCode
	pos        map[string]int
	mu         sync.RWMutex
}

// NewBinaryIndex creates a binary-quantized index for vectors of the given dimension.
func NewBinaryIndex(dimensions int, scorer Scorer) (*BinaryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &BinaryIndex{
		dimensions: dimensions,
		scorer:     scorer,
		pos:        make(map[string]int),
	}, nil
}

// Type returns the index type identifier.
func (b *BinaryIndex) Type() string {
	return string(IndexTypeBinary)
}

// Exact is false: scores come from codes.
func (b *BinaryIndex) Exact() bool { return false }

// Upsert encodes the entries' vectors. Vectors are prepared first so cosine and dot agree on signs
// with the rescoring phase.
func (b *BinaryIndex) Upsert(ctx context.Context, entries []Entry) error {
	encoded := make([][]BinaryCode, len(entries))
	for i, e := range entries {
		if err := checkDims(e, b.dimensions); err != nil {
			return err
		}
		encoded[i] = EncodeBinarySet(b.scorer.PrepareSet(e.Vectors))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, e := range entries {
		if p, ok := b.pos[e.ID]; ok {
			b.codes[p] = encoded[i]
			continue
		}
		b.pos[e.ID] = len(b.ids)
		b.ids = append(b.ids, e.ID)
		b.seqs = append(b.seqs, e.Seq)
		b.codes = append(b.codes, encoded[i])
	}
	return nil
}

// Remove deletes ids by swapping the last entry into each freed slot.
func (b *BinaryIndex) Remove(ctx context.Context, ids []string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	removed := 0
	for _, id := range ids {
		p, ok := b.pos[id]
		if !ok {
			continue
		}
		last := len(b.ids) - 1
		if p != last {
			b.ids[p], b.seqs[p], b.codes[p] = b.ids[last], b.seqs[last], b.codes[last]
			b.pos[b.ids[p]] = p
		}
		b.ids, b.seqs, b.codes = b.ids[:last], b.seqs[:last], b.codes[:last]
		delete(b.pos, id)
		removed++
	}
	return removed, nil
}

// Search returns the k best entries by code max-sim.
func (b *BinaryIndex) Search(ctx context.Context, query [][]float32, k int, allow func(id string) bool) ([]*Candidate, error) {
	for _, q := range query {
		if len(q) != b.dimensions {
			return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(q), b.dimensions)
		}
	}
	q := EncodeBinarySet(b.scorer.PrepareSet(query))
	b.mu.RLock()
	defer b.mu.RUnlock()
	if k <= 0 || len(b.ids) == 0 {
		return nil, nil
	}
	top := newTopK(k, len(b.ids))
	for i, id := range b.ids {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if allow != nil && !allow(id) {
			continue
		}
		top.offer(&Candidate{ID: id, Seq: b.seqs[i], Score: BinaryMaxSim(q, b.codes[i], b.dimensions)})
	}
	return top.sorted(), nil
}

// Seq returns the insertion sequence of id.
func (b *BinaryIndex) Seq(id string) (int64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.pos[id]
	if !ok {
		return 0, false
	}
	return b.seqs[p], true
}

// Size returns the number of records in the index.
func (b *BinaryIndex) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.ids)
}

// Close is a no-op for BinaryIndex.
func (b *BinaryIndex) Close() error {
	return nil
}
