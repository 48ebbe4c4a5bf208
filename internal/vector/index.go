package vector

import (
	"container/heap"
	"context"
	"sort"
)

// Index is the resident, in-memory half of a collection. It holds either full-precision vectors
// or compressed codes; the store keeps the full-precision copy in secondary storage.
type Index interface {
	// Upsert inserts entries or replaces their vectors. A replaced id keeps its original Seq.
	Upsert(ctx context.Context, entries []Entry) error
	// Remove drops ids and returns how many were present.
	Remove(ctx context.Context, ids []string) (int, error)
	// Search scores every allowed entry against query and returns the best k, highest first,
	// ties broken by lower Seq. allow may be nil.
	Search(ctx context.Context, query [][]float32, k int, allow func(id string) bool) ([]*Candidate, error)
	// Seq returns the insertion sequence of id, if present.
	Seq(id string) (int64, bool)
	// Exact reports whether Search scores are full precision (no rescoring needed).
	Exact() bool
	Size() int
	Type() string
	Close() error
}

// Entry is one record handed to an index. Vectors are raw; the index prepares its own copy.
type Entry struct {
	ID      string
	Seq     int64
	Vectors [][]float32
}

// Candidate is a scored index hit.
type Candidate struct {
	ID    string
	Seq   int64
	Score float64
}

// Better reports whether a ranks ahead of b: higher score, then earlier insertion.
func Better(a, b *Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Seq < b.Seq
}

// SortCandidates orders cs best first.
func SortCandidates(cs []*Candidate) {
	sort.Slice(cs, func(i, j int) bool { return Better(cs[i], cs[j]) })
}

// topK keeps the k best candidates seen so far in a heap whose root is the worst kept one.
type topK struct {
	k     int
	items []*Candidate
}

// newTopK keeps at most k of n candidates.
func newTopK(k, n int) *topK {
	if k > n {
		k = n
	}
	return &topK{k: k, items: make([]*Candidate, 0, k)}
}

func (t *topK) Len() int           { return len(t.items) }
func (t *topK) Less(i, j int) bool { return Better(t.items[j], t.items[i]) }
func (t *topK) Swap(i, j int)      { t.items[i], t.items[j] = t.items[j], t.items[i] }
func (t *topK) Push(x any)         { t.items = append(t.items, x.(*Candidate)) }
func (t *topK) Pop() any {
	old := t.items
	n := len(old)
	x := old[n-1]
	t.items = old[:n-1]
	return x
}

func (t *topK) offer(c *Candidate) {
	if t.k <= 0 {
		return
	}
	if len(t.items) < t.k {
		heap.Push(t, c)
		return
	}
	if Better(c, t.items[0]) {
		t.items[0] = c
		heap.Fix(t, 0)
	}
}

// sorted drains the heap, best first.
func (t *topK) sorted() []*Candidate {
	out := make([]*Candidate, len(t.items))
	copy(out, t.items)
	SortCandidates(out)
	return out
}
