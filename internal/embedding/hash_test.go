package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/hyperjump/colindex/internal/models"
)

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestHashEmbedder_Deterministic(t *testing.T) {
	ctx := context.Background()
	e := NewHashEmbedder(32, 0)
	a, err := e.Embed(ctx, "vector search engine")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := e.Embed(ctx, "Vector search, engine!")
	if len(a) != 32 {
		t.Fatalf("len = %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding differs at %d: %v vs %v", i, a[i], b[i])
		}
	}
	if n := math.Sqrt(dot(a, a)); math.Abs(n-1) > 1e-5 {
		t.Errorf("norm = %v, want 1", n)
	}
}

func TestHashEmbedder_SharedWordsScoreHigher(t *testing.T) {
	ctx := context.Background()
	e := NewHashEmbedder(128, 0)
	q, _ := e.Embed(ctx, "golang vector index")
	near, _ := e.Embed(ctx, "golang vector index tutorial")
	far, _ := e.Embed(ctx, "banana bread recipe")
	if dot(q, near) <= dot(q, far) {
		t.Errorf("expected shared words to score higher: near=%v far=%v", dot(q, near), dot(q, far))
	}
}

func TestHashEmbedder_Tokens(t *testing.T) {
	ctx := context.Background()
	e := NewHashEmbedder(8, 3)
	vs, err := e.EmbedTokens(ctx, "a b c d e")
	if err != nil {
		t.Fatal(err)
	}
	if len(vs) != 3 {
		t.Errorf("token vectors = %d, want 3", len(vs))
	}
	rep, _ := e.EmbedTokens(ctx, "a a")
	for i := range rep[0] {
		if rep[0][i] != rep[1][i] {
			t.Fatal("equal tokens should embed equally")
		}
	}
}

func TestHashEmbedder_Empty(t *testing.T) {
	e := NewHashEmbedder(8, 0)
	if _, err := e.Embed(context.Background(), " ... "); !errors.Is(err, models.ErrEmptyQuery) {
		t.Errorf("err = %v, want ErrEmptyQuery", err)
	}
}

func TestHashEmbedder_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewHashEmbedder(8, 0).EmbedTokens(ctx, "a b"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
