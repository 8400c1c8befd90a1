package embedder

import (
	"context"
	"fmt"
	"math"

	"github.com/whiteboard-app/whiteboard-go/internal/rag"
)

// DefaultBatchSize is the number of texts sent per backend call. Large
// articles chunk into hundreds of windows; bounding the batch keeps request
// bodies and backend memory predictable.
const DefaultBatchSize = 32

// normEpsilon guards the L2 norm against division by zero for degenerate
// all-zero vectors.
const normEpsilon = 1e-12

// Batched wraps an inner embedder with batch splitting and optional row-wise
// L2 normalisation. With unit-length vectors, cosine similarity and inner
// product coincide, so scores are comparable across backends.
type Batched struct {
	inner     rag.Embedder
	batchSize int
	normalise bool
}

// BatchedConfig tunes a Batched wrapper.
type BatchedConfig struct {
	// BatchSize is the maximum texts per backend call (default: DefaultBatchSize).
	BatchSize int
	// SkipNormalise disables L2 normalisation of returned vectors.
	SkipNormalise bool
}

// NewBatched wraps inner with batching and normalisation.
func NewBatched(inner rag.Embedder, cfg *BatchedConfig) *Batched {
	if cfg == nil {
		cfg = &BatchedConfig{}
	}
	size := cfg.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &Batched{
		inner:     inner,
		batchSize: size,
		normalise: !cfg.SkipNormalise,
	}
}

// Model returns the inner embedder's model name.
func (b *Batched) Model() string { return b.inner.Model() }

// Embed splits texts into batches, delegates each to the inner embedder, and
// reassembles the results in input order.
func (b *Batched) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += b.batchSize {
		end := min(start+b.batchSize, len(texts))

		batch, err := b.inner.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("batch [%d:%d]: %w", start, end, err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("batch [%d:%d]: expected %d vectors, got %d", start, end, end-start, len(batch))
		}
		vectors = append(vectors, batch...)
	}

	if b.normalise {
		for _, v := range vectors {
			normalize(v)
		}
	}
	return vectors, nil
}

// EmbedOne embeds a single text.
func (b *Batched) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := b.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected 1 vector, got %d", len(vectors))
	}
	return vectors[0], nil
}

// normalize scales v to unit L2 length in place.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum) + normEpsilon
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}
