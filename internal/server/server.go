// Package server implements the HTTP server that exposes the retrieval
// pipeline via a REST API. The server is started by the `whiteboard serve`
// CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/whiteboard-app/whiteboard-go/internal/logging"
	"github.com/whiteboard-app/whiteboard-go/internal/rag"
)

// defaultTopK is the number of chunks returned when a request omits k.
const defaultTopK = 6

// New constructs a Server from the provided retrieval service and config.
func New(service retrievalService, cfg *Config) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("server: service must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover a full fetch-clean-chunk-embed-upsert run.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	s := &Server{
		service: service,
		cfg:     cfg,
		log:     log,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(reg),
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	s.stopRL = stopRL

	if cfg.APIKey == "" {
		log.Warn("server: WHITEBOARD_API_KEY not set — API authentication is disabled")
	}

	protected := http.NewServeMux()
	protected.HandleFunc("POST /api/chunks", s.instrument("chunks", s.handleChunks))
	protected.HandleFunc("POST /api/ingest", s.instrument("ingest", s.handleIngest))
	protected.HandleFunc("GET /api/topics/{topic}", s.instrument("topic_status", s.handleTopicStatus))
	protected.HandleFunc("DELETE /api/topics/{topic}", s.instrument("topic_purge", s.handleTopicPurge))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("/api/", authMiddleware(cfg.APIKey, rl.middleware(protected)))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleChunks handles POST /api/chunks. Unindexed topics are ingested on
// demand before the search runs, so first calls can take noticeably longer.
func (s *Server) handleChunks(w http.ResponseWriter, r *http.Request) {
	var req chunksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Topic) == "" {
		http.Error(w, "topic is required", http.StatusBadRequest)
		return
	}
	if req.K < 0 {
		http.Error(w, "k must be positive", http.StatusBadRequest)
		return
	}
	if req.K == 0 {
		req.K = defaultTopK
	}

	chunks, err := s.service.GetChunks(r.Context(), req.Topic, req.Query, req.K)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if chunks == nil {
		chunks = []rag.RetrievedChunk{}
	}

	writeJSON(w, http.StatusOK, chunksResponse{Topic: strings.TrimSpace(req.Topic), Chunks: chunks})
}

// handleIngest handles POST /api/ingest. Without force, an already indexed
// topic is left untouched.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		http.Error(w, "topic is required", http.StatusBadRequest)
		return
	}

	if !req.Force {
		indexed, err := s.service.IsIndexed(r.Context(), topic)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		if indexed {
			writeJSON(w, http.StatusOK, ingestResponse{Topic: topic, Status: "already_indexed"})
			return
		}
	}

	if err := s.service.Reingest(r.Context(), topic); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse{Topic: topic, Status: "ingested"})
}

// handleTopicStatus handles GET /api/topics/{topic}.
func (s *Server) handleTopicStatus(w http.ResponseWriter, r *http.Request) {
	topic := strings.TrimSpace(r.PathValue("topic"))
	if topic == "" {
		http.Error(w, "topic is required", http.StatusBadRequest)
		return
	}

	indexed, err := s.service.IsIndexed(r.Context(), topic)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, topicStatusResponse{
		Topic:          topic,
		Indexed:        indexed,
		Count:          s.service.CountChunks(r.Context(), topic),
		EmbeddingModel: s.service.EmbeddingModel(),
	})
}

// handleTopicPurge handles DELETE /api/topics/{topic}.
func (s *Server) handleTopicPurge(w http.ResponseWriter, r *http.Request) {
	topic := strings.TrimSpace(r.PathValue("topic"))
	if topic == "" {
		http.Error(w, "topic is required", http.StatusBadRequest)
		return
	}

	if err := s.service.Purge(r.Context(), topic); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError maps pipeline errors onto HTTP status codes: unknown
// topics are 404, empty articles 422, everything else 500 with the detail
// kept in the logs rather than the response.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	log := logging.FromContext(r.Context())

	switch {
	case errors.Is(err, rag.ErrNotFound):
		http.Error(w, "topic not found", http.StatusNotFound)
	case errors.Is(err, rag.ErrNoContent):
		http.Error(w, "topic has no ingestible content", http.StatusUnprocessableEntity)
	default:
		log.Error("retrieval request failed", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
