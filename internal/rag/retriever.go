package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Chunker splits cleaned sections into bounded token windows with stable
// content-derived IDs.
type Chunker interface {
	// Chunk returns the chunks for the given cleaned sections. Sections that
	// produce no usable windows contribute nothing; an empty result is not
	// an error at this level.
	Chunk(sections []Section) ([]Chunk, error)
}

// ServiceConfig holds the collaborators and tuning for a retrieval Service.
// All four collaborators are required; they are injected by the composition
// root rather than constructed internally so tests can substitute fakes.
type ServiceConfig struct {
	// Fetcher resolves topics to article text.
	Fetcher SourceFetcher

	// Embedder produces the vectors stored in and queried against the index.
	Embedder Embedder

	// Store is the persistent vector index.
	Store VectorStore

	// Chunker windows cleaned sections into chunks.
	Chunker Chunker

	// Clean normalises raw section text before chunking. If nil, sections
	// pass through unchanged.
	Clean func([]Section) []Section

	// Logger is the structured logger. If nil, slog.Default is used.
	Logger *slog.Logger

	// Registerer receives the pipeline's Prometheus metrics. If nil, the
	// default registerer is used.
	Registerer prometheus.Registerer
}

// Service orchestrates on-demand ingestion and topic-scoped retrieval.
//
// Concurrent calls for the same topic are not mutually excluded: if two
// callers both observe the topic as unindexed and both ingest, the
// delete-then-insert upsert over identical content-derived chunk IDs makes
// the outcome converge. The duplicate fetch and embedding work is accepted.
type Service struct {
	fetcher  SourceFetcher
	embedder Embedder
	store    VectorStore
	chunker  Chunker
	clean    func([]Section) []Section
	log      *slog.Logger
	metrics  *pipelineMetrics
}

// NewService constructs a Service from the given config.
func NewService(cfg *ServiceConfig) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("rag: config must not be nil")
	}
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("rag: fetcher must not be nil")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if cfg.Chunker == nil {
		return nil, fmt.Errorf("rag: chunker must not be nil")
	}

	clean := cfg.Clean
	if clean == nil {
		clean = func(sections []Section) []Section { return sections }
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	return &Service{
		fetcher:  cfg.Fetcher,
		embedder: cfg.Embedder,
		store:    cfg.Store,
		chunker:  cfg.Chunker,
		clean:    clean,
		log:      log,
		metrics:  newPipelineMetrics(reg),
	}, nil
}

// GetChunks returns the top-k chunks for topic, ingesting the topic first if
// it is not yet indexed. When query is empty the topic string itself is
// embedded as the query, which yields a representative sample of the article.
// The result is ordered by descending score, as reported by the store.
func (s *Service) GetChunks(ctx context.Context, topic, query string, k int) ([]RetrievedChunk, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, retrievalErr("get_chunks", fmt.Errorf("topic must be a non-empty string"))
	}
	if k <= 0 {
		return nil, retrievalErr("get_chunks", fmt.Errorf("k must be positive, got %d", k))
	}

	if err := s.ensureIndexed(ctx, topic); err != nil {
		s.metrics.searchesTotal.WithLabelValues("error").Inc()
		return nil, retrievalErr("get_chunks", err)
	}

	queryText := strings.TrimSpace(query)
	if queryText == "" {
		queryText = topic
	}

	start := time.Now()
	queryVector, err := s.embedOne(ctx, queryText)
	if err != nil {
		s.metrics.searchesTotal.WithLabelValues("error").Inc()
		return nil, retrievalErr("get_chunks", fmt.Errorf("embedding query: %w", err))
	}

	hits, err := s.store.Search(ctx, topic, queryVector, k)
	if err != nil {
		s.metrics.searchesTotal.WithLabelValues("error").Inc()
		return nil, retrievalErr("get_chunks", fmt.Errorf("vector search: %w", err))
	}
	s.metrics.searchDurationSeconds.Observe(time.Since(start).Seconds())
	s.metrics.searchesTotal.WithLabelValues("ok").Inc()

	results := make([]RetrievedChunk, 0, len(hits))
	for _, h := range hits {
		results = append(results, s.toRetrieved(topic, h))
	}

	s.log.Debug("retrieval complete",
		slog.String("topic", topic),
		slog.Int("k", k),
		slog.Int("hits", len(results)),
	)
	return results, nil
}

// IsIndexed reports whether topic has any indexed rows.
func (s *Service) IsIndexed(ctx context.Context, topic string) (bool, error) {
	indexed, err := s.store.IsIndexed(ctx, strings.TrimSpace(topic))
	if err != nil {
		return false, retrievalErr("is_indexed", err)
	}
	return indexed, nil
}

// Reingest re-runs the ingest pipeline for topic regardless of its current
// index state. Rows sharing the regenerated chunk IDs are replaced; stale
// rows from changed upstream content remain until Purge.
func (s *Service) Reingest(ctx context.Context, topic string) error {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return retrievalErr("reingest", fmt.Errorf("topic must be a non-empty string"))
	}
	if err := s.ingest(ctx, topic); err != nil {
		return retrievalErr("reingest", err)
	}
	return nil
}

// Purge removes every indexed row for topic.
func (s *Service) Purge(ctx context.Context, topic string) error {
	if err := s.store.Purge(ctx, strings.TrimSpace(topic)); err != nil {
		return retrievalErr("purge", err)
	}
	return nil
}

// CountChunks is a best-effort diagnostic: failures are reported as an
// Unavailable result, never as an error, so status surfaces can degrade
// gracefully while the core path stays strict.
func (s *Service) CountChunks(ctx context.Context, topic string) CountResult {
	n, err := s.store.Count(ctx, strings.TrimSpace(topic))
	if err != nil {
		s.log.Warn("chunk count probe failed",
			slog.String("topic", topic),
			slog.Any("error", err),
		)
		return CountResult{OK: false, Reason: err.Error()}
	}
	return CountResult{OK: true, Value: n}
}

// EmbeddingModel returns the model identifier of the configured embedder.
func (s *Service) EmbeddingModel() string { return s.embedder.Model() }

// ensureIndexed ingests topic unless the store already holds rows for it.
// Single best-effort attempt; no internal retry.
func (s *Service) ensureIndexed(ctx context.Context, topic string) error {
	indexed, err := s.store.IsIndexed(ctx, topic)
	if err != nil {
		return fmt.Errorf("existence probe: %w", err)
	}
	if indexed {
		return nil
	}
	return s.ingest(ctx, topic)
}

// ingest runs the full pipeline for one topic: fetch → clean → chunk →
// embed (one batched call) → upsert. All-or-nothing per call: any failure
// aborts without partial writes beyond what the store's own upsert performs.
func (s *Service) ingest(ctx context.Context, topic string) error {
	start := time.Now()

	article, err := s.fetcher.Fetch(ctx, topic)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.ingestsTotal.WithLabelValues("not_found").Inc()
		} else {
			s.metrics.ingestsTotal.WithLabelValues("error").Inc()
		}
		return fmt.Errorf("fetch: %w", err)
	}
	if len(article.Sections) == 0 {
		s.metrics.ingestsTotal.WithLabelValues("no_content").Inc()
		return fmt.Errorf("fetch %q: %w: zero sections", topic, ErrNoContent)
	}

	cleaned := s.clean(article.Sections)

	chunks, err := s.chunker.Chunk(cleaned)
	if err != nil {
		s.metrics.ingestsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("chunk: %w", err)
	}
	if len(chunks) == 0 {
		s.metrics.ingestsTotal.WithLabelValues("no_content").Inc()
		return fmt.Errorf("chunk %q: %w: zero chunks after cleaning", topic, ErrNoContent)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		s.metrics.ingestsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("embed batch of %d: %w", len(texts), err)
	}
	if len(vectors) != len(chunks) {
		s.metrics.ingestsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("embed: expected %d vectors, got %d", len(chunks), len(vectors))
	}

	now := time.Now().Unix()
	model := s.embedder.Model()
	records := make([]Record, 0, len(chunks))
	for _, c := range chunks {
		records = append(records, Record{
			ChunkID:        c.ID,
			Topic:          topic,
			Text:           c.Text,
			Tokens:         c.Tokens,
			EmbeddingModel: model,
			URL:            c.URL,
			Title:          article.Title,
			Section:        c.Section,
			IngestedAt:     now,
		})
	}

	if err := s.store.Upsert(ctx, records, vectors); err != nil {
		s.metrics.ingestsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("upsert %d records: %w", len(records), err)
	}

	s.metrics.ingestsTotal.WithLabelValues("ok").Inc()
	s.metrics.chunksIngestedTotal.Add(float64(len(records)))
	s.metrics.ingestDurationSeconds.Observe(time.Since(start).Seconds())

	s.log.Info("topic ingested",
		slog.String("topic", topic),
		slog.String("title", article.Title),
		slog.Int("sections", len(article.Sections)),
		slog.Int("chunks", len(records)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// embedOne embeds a single text and returns its vector.
func (s *Service) embedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedder returned empty result")
	}
	return vectors[0], nil
}

// toRetrieved maps a raw store hit into the public result schema.
func (s *Service) toRetrieved(topic string, h Hit) RetrievedChunk {
	model := h.Record.EmbeddingModel
	if model == "" {
		model = s.embedder.Model()
	}
	return RetrievedChunk{
		Topic:          topic,
		ChunkID:        h.Record.ChunkID,
		Text:           h.Record.Text,
		Score:          h.Score,
		Tokens:         h.Record.Tokens,
		EmbeddingModel: model,
		Source: Source{
			Kind:    SourceKindWikipedia,
			URL:     h.Record.URL,
			Title:   h.Record.Title,
			Section: h.Record.Section,
		},
	}
}
