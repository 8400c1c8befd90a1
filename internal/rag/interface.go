// Package rag implements the topic-scoped retrieval pipeline: on-demand
// ingestion (fetch → clean → chunk → embed → upsert) and similarity search
// over the resulting index. It defines the interfaces for the external
// collaborators — source fetcher, embedder, vector store — so concrete
// implementations (Wikipedia, Ollama/OpenAI, Qdrant) stay swappable and the
// orchestrator can be tested with fakes.
package rag

import (
	"context"
)

// SourceKindWikipedia labels content that originated from Wikipedia.
const SourceKindWikipedia = "wikipedia"

// Section is one contiguous block of source text. The lead section of an
// article carries an empty Title; every other section carries its heading.
type Section struct {
	// Title is the section heading. Empty for the article's lead section.
	Title string

	// Text is the raw (pre-cleaning) or cleaned section text.
	Text string

	// URL points at the section (page URL plus anchor for named sections).
	URL string
}

// Article is the fetch result for one topic: the resolved page plus its
// sections in natural document order, lead first.
type Article struct {
	// Title is the canonical page title after redirect resolution.
	Title string

	// URL is the canonical page URL.
	URL string

	// Sections holds the article body, lead section first.
	Sections []Section
}

// Chunk is a bounded token window of a cleaned section, not yet embedded.
type Chunk struct {
	// ID is the stable content-and-position-derived identifier. Two ingests
	// of unchanged content produce identical IDs, which makes upsert
	// idempotent.
	ID string

	// Text is the decoded window text.
	Text string

	// Tokens is the window length plus the reserve for model special tokens,
	// approximating the true embed-time length.
	Tokens int

	// Section is the heading of the originating section. Empty for the lead.
	Section string

	// URL points at the originating section.
	URL string
}

// Record is a chunk as stored in the vector index, tagged with the topic and
// embedding provenance. The store pairs each Record with its vector.
type Record struct {
	ChunkID        string
	Topic          string
	Text           string
	Tokens         int
	EmbeddingModel string
	URL            string
	Title          string
	Section        string
	IngestedAt     int64
}

// Source identifies where a retrieved chunk came from.
type Source struct {
	Kind    string `json:"kind"`
	URL     string `json:"url"`
	Title   string `json:"title"`
	Section string `json:"section,omitempty"`
}

// RetrievedChunk is the public query-result schema. Constructed fresh per
// query and never persisted as-is.
type RetrievedChunk struct {
	Topic          string  `json:"topic"`
	ChunkID        string  `json:"chunk_id"`
	Text           string  `json:"text"`
	Score          float32 `json:"score"`
	Tokens         int     `json:"tokens"`
	EmbeddingModel string  `json:"embedding_model"`
	Source         Source  `json:"source"`
}

// Hit is a raw store search result: the stored record plus the similarity
// score the store assigned to it.
type Hit struct {
	Record Record
	Score  float32
}

// CountResult is a best-effort diagnostic count. Count probes must never
// abort the operation they decorate, so failures are carried as a reason
// string rather than an error.
type CountResult struct {
	// OK is true when the count was obtained.
	OK bool `json:"ok"`
	// Value is the row count. Only meaningful when OK is true.
	Value int64 `json:"value,omitempty"`
	// Reason describes why the count is unavailable. Empty when OK is true.
	Reason string `json:"reason,omitempty"`
}

// SourceFetcher resolves a topic to its article text.
// Implementations must be safe to call from multiple goroutines.
type SourceFetcher interface {
	// Fetch returns the article for topic, or an error wrapping ErrNotFound
	// when no matching document exists after one case-normalisation retry.
	Fetch(ctx context.Context, topic string) (*Article, error)
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines and must be
// batch-size invariant: splitting an input across calls must not change any
// individual output vector.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the embedding model identifier, recorded on every
	// ingested row so stored vectors carry their provenance.
	Model() string
}

// VectorStore persists embedded chunks and serves topic-scoped similarity
// queries. Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// IsIndexed reports whether at least one row exists for topic.
	// Implemented as a bounded existence probe, not a full count.
	IsIndexed(ctx context.Context, topic string) (bool, error)

	// Upsert replaces-or-inserts records idempotently: rows matching the
	// given chunk IDs are deleted first, then all records are inserted with
	// their paired vectors (vectors[i] belongs to records[i]). Rows are
	// visible to searches once Upsert returns. No-op for empty input.
	Upsert(ctx context.Context, records []Record, vectors [][]float32) error

	// Search returns up to k hits for topic ordered by descending score,
	// restricted by exact match on the topic field.
	Search(ctx context.Context, topic string, queryVector []float32, k int) ([]Hit, error)

	// Purge deletes all rows belonging to topic.
	Purge(ctx context.Context, topic string) error

	// Count returns the exact number of rows for topic. Diagnostics only —
	// the core pipeline never depends on it.
	Count(ctx context.Context, topic string) (int64, error)
}
