package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/whiteboard-app/whiteboard-go/internal/rag"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// cover a full on-demand ingest triggered by a chunk request.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Registerer receives the server's Prometheus metrics. If nil, the
	// default registerer is used. The /metrics endpoint always serves the
	// default gatherer.
	Registerer prometheus.Registerer
}

// retrievalService is the slice of the retrieval pipeline the handlers call.
// *rag.Service satisfies it; tests inject a fake.
type retrievalService interface {
	GetChunks(ctx context.Context, topic, query string, k int) ([]rag.RetrievedChunk, error)
	IsIndexed(ctx context.Context, topic string) (bool, error)
	Reingest(ctx context.Context, topic string) error
	Purge(ctx context.Context, topic string) error
	CountChunks(ctx context.Context, topic string) rag.CountResult
	EmbeddingModel() string
}

// Server is the HTTP server exposing the retrieval pipeline.
type Server struct {
	// service is the retrieval pipeline behind every content endpoint.
	service retrievalService
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the server's Prometheus instruments.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// chunksRequest is the JSON body for POST /api/chunks.
type chunksRequest struct {
	// Topic is the topic to retrieve chunks for.
	Topic string `json:"topic"`
	// Query optionally steers retrieval toward a subtopic. Defaults to Topic.
	Query string `json:"query,omitempty"`
	// K is the number of chunks to return (default: 6).
	K int `json:"k,omitempty"`
}

// chunksResponse is the JSON response for POST /api/chunks.
type chunksResponse struct {
	// Topic is the topic the chunks belong to.
	Topic string `json:"topic"`
	// Chunks are the retrieved chunks, ordered by descending score.
	Chunks []rag.RetrievedChunk `json:"chunks"`
}

// ingestRequest is the JSON body for POST /api/ingest.
type ingestRequest struct {
	// Topic is the topic to ingest.
	Topic string `json:"topic"`
	// Force re-runs ingestion even when the topic is already indexed.
	Force bool `json:"force,omitempty"`
}

// ingestResponse is the JSON response for POST /api/ingest.
type ingestResponse struct {
	// Topic is the topic that was processed.
	Topic string `json:"topic"`
	// Status is "ingested" or "already_indexed".
	Status string `json:"status"`
}

// topicStatusResponse is the JSON response for GET /api/topics/{topic}.
type topicStatusResponse struct {
	// Topic is the inspected topic.
	Topic string `json:"topic"`
	// Indexed reports whether any chunks exist for the topic.
	Indexed bool `json:"indexed"`
	// Count is the best-effort chunk count.
	Count rag.CountResult `json:"count"`
	// EmbeddingModel is the model new ingests would embed with.
	EmbeddingModel string `json:"embedding_model"`
}
