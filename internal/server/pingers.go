package server

import (
	"context"
	"fmt"

	"github.com/whiteboard-app/whiteboard-go/internal/rag"
)

// pingable is anything exposing a reachability check. *rag.QdrantStore
// satisfies it.
type pingable interface {
	Ping(ctx context.Context) error
}

// QdrantPinger probes the vector store using its native health check.
// It satisfies the Pinger interface and is used by GET /api/ready.
type QdrantPinger struct {
	// store is the vector store to probe.
	store pingable
}

// NewQdrantPinger constructs a QdrantPinger for the given store.
func NewQdrantPinger(store pingable) *QdrantPinger {
	return &QdrantPinger{store: store}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping delegates to the store's health check.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	if err := p.store.Ping(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// EmbedderPinger probes the embedding backend by embedding a single short
// text. The cost is one minimal request, which keeps the readiness signal
// honest for remote backends without a dedicated health endpoint.
type EmbedderPinger struct {
	// embedder is the backend to probe.
	embedder rag.Embedder
}

// NewEmbedderPinger constructs an EmbedderPinger for the given embedder.
func NewEmbedderPinger(embedder rag.Embedder) *EmbedderPinger {
	return &EmbedderPinger{embedder: embedder}
}

// Name returns the dependency label used in readiness responses.
func (p *EmbedderPinger) Name() string { return "embedder" }

// Ping embeds a single token and checks a vector came back.
func (p *EmbedderPinger) Ping(ctx context.Context) error {
	vectors, err := p.embedder.Embed(ctx, []string{"ping"})
	if err != nil {
		return fmt.Errorf("embed probe failed: %w", err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return fmt.Errorf("embed probe returned no vector")
	}
	return nil
}
