package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/whiteboard-app/whiteboard-go/internal/embedder"
	"github.com/whiteboard-app/whiteboard-go/internal/ingest"
	"github.com/whiteboard-app/whiteboard-go/internal/rag"
	"github.com/whiteboard-app/whiteboard-go/internal/wiki"
)

// defaultChunkMaxTokens is the token budget per chunk, including the reserve
// for model special tokens.
const defaultChunkMaxTokens = 800

// defaultChunkOverlap is the number of tokens shared between adjacent chunks.
const defaultChunkOverlap = 100

// serviceDeps bundles the retrieval service with the collaborators the CLI
// needs direct access to (the store for pings and Close, the embedder for
// readiness probes).
type serviceDeps struct {
	service  *rag.Service
	store    *rag.QdrantStore
	embedder rag.Embedder
}

// close releases the store's gRPC connection.
func (d *serviceDeps) close() {
	if d.store != nil {
		_ = d.store.Close()
	}
}

// buildService wires the full retrieval pipeline from environment config:
// embedder, Qdrant store, Wikipedia fetcher, and token chunker.
func buildService(ctx context.Context, log *slog.Logger) (*serviceDeps, error) {
	if err := embedder.Validate(log); err != nil {
		return nil, err
	}

	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	backend := embedder.ResolveBackend()
	log.Info("embedder initialised",
		slog.String("backend", backend),
		slog.String("model", emb.Model()),
	)

	qdrantHost := getEnvOrDefault("QDRANT_HOST", "localhost")
	qdrantPort := getEnvInt("QDRANT_PORT", 6334)
	collection := getEnvOrDefault("QDRANT_COLLECTION", "whiteboard-chunks")
	vectorSize := uint64(embedder.DefaultDimensions(backend)) //nolint:gosec // dimensions are bounded

	store, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
		Host:       qdrantHost,
		Port:       qdrantPort,
		Collection: collection,
		VectorSize: vectorSize,
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", qdrantHost, qdrantPort, err)
	}
	log.Info("qdrant store ready",
		slog.String("host", qdrantHost),
		slog.Int("port", qdrantPort),
		slog.String("collection", collection),
	)

	fetcher := wiki.NewClient(&wiki.Config{
		Language:  getEnvOrDefault("WIKI_LANGUAGE", "en"),
		UserAgent: os.Getenv("WIKI_USER_AGENT"),
	})

	chunker, err := ingest.NewTokenChunker(ingest.ChunkerConfig{
		ModelName: os.Getenv("EMBEDDING_MODEL"),
		MaxTokens: getEnvInt("CHUNK_MAX_TOKENS", defaultChunkMaxTokens),
		Overlap:   getEnvInt("CHUNK_OVERLAP", defaultChunkOverlap),
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create chunker: %w", err)
	}

	svc, err := rag.NewService(&rag.ServiceConfig{
		Fetcher:  fetcher,
		Embedder: emb,
		Store:    store,
		Chunker:  chunker,
		Clean:    ingest.CleanSections,
		Logger:   log,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create retrieval service: %w", err)
	}

	return &serviceDeps{service: svc, store: store, embedder: emb}, nil
}

// getEnvOrDefault returns the value of key or fallback when unset.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of key or fallback when unset or
// unparseable.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
