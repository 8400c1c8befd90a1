package embedder

import (
	"context"
	"math"
	"testing"
)

// countingEmbedder records call batch sizes and returns deterministic vectors.
type countingEmbedder struct {
	batches []int
}

func (c *countingEmbedder) Model() string { return "fake-model" }

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.batches = append(c.batches, len(texts))
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 3, 4}
	}
	return out, nil
}

func TestBatched_SplitsBatches(t *testing.T) {
	t.Parallel()
	inner := &countingEmbedder{}
	b := NewBatched(inner, &BatchedConfig{BatchSize: 4})

	texts := make([]string, 10)
	for i := range texts {
		texts[i] = "text"
	}
	vectors, err := b.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 10 {
		t.Fatalf("expected 10 vectors, got %d", len(vectors))
	}
	want := []int{4, 4, 2}
	if len(inner.batches) != len(want) {
		t.Fatalf("expected %d backend calls, got %d", len(want), len(inner.batches))
	}
	for i, n := range want {
		if inner.batches[i] != n {
			t.Errorf("call %d had batch size %d, want %d", i, inner.batches[i], n)
		}
	}
}

func TestBatched_Normalises(t *testing.T) {
	t.Parallel()
	b := NewBatched(&countingEmbedder{}, nil)

	vectors, err := b.Embed(context.Background(), []string{"abcd"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sum float64
	for _, x := range vectors[0] {
		sum += float64(x) * float64(x)
	}
	if norm := math.Sqrt(sum); math.Abs(norm-1) > 1e-5 {
		t.Errorf("expected unit-length vector, got norm %v", norm)
	}
}

func TestBatched_SkipNormalise(t *testing.T) {
	t.Parallel()
	b := NewBatched(&countingEmbedder{}, &BatchedConfig{SkipNormalise: true})

	vectors, err := b.Embed(context.Background(), []string{"abcd"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float32{4, 3, 4}
	for i, x := range vectors[0] {
		if x != want[i] {
			t.Errorf("component %d changed: got %v, want %v", i, x, want[i])
		}
	}
}

func TestBatched_ZeroVector(t *testing.T) {
	t.Parallel()
	v := []float32{0, 0, 0}
	normalize(v)
	for i, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			t.Errorf("component %d is %v after normalising zero vector", i, x)
		}
	}
}

func TestBatched_Empty(t *testing.T) {
	t.Parallel()
	inner := &countingEmbedder{}
	b := NewBatched(inner, nil)

	vectors, err := b.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 0 {
		t.Errorf("expected no vectors, got %d", len(vectors))
	}
	if len(inner.batches) != 0 {
		t.Errorf("expected no backend calls, got %d", len(inner.batches))
	}
}

func TestBatched_EmbedOne(t *testing.T) {
	t.Parallel()
	b := NewBatched(&countingEmbedder{}, nil)

	v, err := b.EmbedOne(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(v) != 3 {
		t.Errorf("expected 3 components, got %d", len(v))
	}
}

func TestBatched_ModelPassthrough(t *testing.T) {
	t.Parallel()
	b := NewBatched(&countingEmbedder{}, nil)
	if got := b.Model(); got != "fake-model" {
		t.Errorf("expected inner model name, got %q", got)
	}
}
