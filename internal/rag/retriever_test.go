package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// fakeFetcher returns a scripted article or error and records its calls.
type fakeFetcher struct {
	article *Article
	err     error
	calls   int
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string) (*Article, error) {
	f.calls++
	return f.article, f.err
}

// fakeEmbedder returns one deterministic vector per input text.
type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(len(texts[i])), 1}
	}
	return vectors, nil
}

func (f *fakeEmbedder) Model() string { return "test-embedding-model" }

// fakeStore is an in-memory VectorStore keyed by topic.
type fakeStore struct {
	rows map[string][]Record
	hits []Hit

	isIndexedErr error
	upsertErr    error
	searchErr    error
	purgeErr     error
	countErr     error

	upsertCalls int
	purgeCalls  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string][]Record)}
}

func (f *fakeStore) IsIndexed(_ context.Context, topic string) (bool, error) {
	if f.isIndexedErr != nil {
		return false, f.isIndexedErr
	}
	return len(f.rows[topic]) > 0, nil
}

// Upsert replaces-then-inserts like the real store: rows sharing an incoming
// ChunkID are dropped before the new records land.
func (f *fakeStore) Upsert(_ context.Context, records []Record, vectors [][]float32) error {
	f.upsertCalls++
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if len(records) != len(vectors) {
		return fmt.Errorf("records/vectors length mismatch: %d vs %d", len(records), len(vectors))
	}

	incoming := make(map[string]bool, len(records))
	for _, r := range records {
		incoming[r.ChunkID] = true
	}
	for topic, rows := range f.rows {
		kept := rows[:0]
		for _, r := range rows {
			if !incoming[r.ChunkID] {
				kept = append(kept, r)
			}
		}
		f.rows[topic] = kept
	}

	for _, r := range records {
		f.rows[r.Topic] = append(f.rows[r.Topic], r)
	}
	return nil
}

func (f *fakeStore) Search(_ context.Context, _ string, _ []float32, k int) ([]Hit, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if len(f.hits) > k {
		return f.hits[:k], nil
	}
	return f.hits, nil
}

func (f *fakeStore) Purge(_ context.Context, topic string) error {
	f.purgeCalls++
	if f.purgeErr != nil {
		return f.purgeErr
	}
	delete(f.rows, topic)
	return nil
}

func (f *fakeStore) Count(_ context.Context, topic string) (int64, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return int64(len(f.rows[topic])), nil
}

// fakeChunker emits one chunk per section.
type fakeChunker struct {
	err error
}

func (f *fakeChunker) Chunk(sections []Section) ([]Chunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	chunks := make([]Chunk, 0, len(sections))
	for i, s := range sections {
		chunks = append(chunks, Chunk{
			ID:      fmt.Sprintf("chunk-%d", i),
			Text:    s.Text,
			Tokens:  len(s.Text),
			Section: s.Title,
			URL:     s.URL,
		})
	}
	return chunks, nil
}

func testArticle() *Article {
	return &Article{
		Title: "Linear algebra",
		URL:   "https://en.wikipedia.org/wiki/Linear_algebra",
		Sections: []Section{
			{Title: "", Text: "Linear algebra is the branch of mathematics concerning linear equations."},
			{Title: "Vector spaces", Text: "A vector space over a field F is a set V together with two operations."},
		},
	}
}

func newTestService(t *testing.T, fetcher *fakeFetcher, store *fakeStore) (*Service, *fakeEmbedder) {
	t.Helper()
	embedder := &fakeEmbedder{}
	svc, err := NewService(&ServiceConfig{
		Fetcher:    fetcher,
		Embedder:   embedder,
		Store:      store,
		Chunker:    &fakeChunker{},
		Registerer: prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, embedder
}

func Test_Service_RequiresCollaborators(t *testing.T) {
	t.Parallel()
	base := func() *ServiceConfig {
		return &ServiceConfig{
			Fetcher:    &fakeFetcher{},
			Embedder:   &fakeEmbedder{},
			Store:      newFakeStore(),
			Chunker:    &fakeChunker{},
			Registerer: prometheus.NewRegistry(),
		}
	}

	cases := []struct {
		name   string
		mutate func(*ServiceConfig)
	}{
		{"nil fetcher", func(c *ServiceConfig) { c.Fetcher = nil }},
		{"nil embedder", func(c *ServiceConfig) { c.Embedder = nil }},
		{"nil store", func(c *ServiceConfig) { c.Store = nil }},
		{"nil chunker", func(c *ServiceConfig) { c.Chunker = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tc.mutate(cfg)
			if _, err := NewService(cfg); err == nil {
				t.Error("expected constructor error")
			}
		})
	}
}

func Test_GetChunks_IngestsUnindexedTopic(t *testing.T) {
	t.Parallel()
	fetcher := &fakeFetcher{article: testArticle()}
	store := newFakeStore()
	store.hits = []Hit{
		{Record: Record{ChunkID: "chunk-0", Text: "Linear algebra is...", Tokens: 12, EmbeddingModel: "test-embedding-model", Title: "Linear algebra", URL: "https://en.wikipedia.org/wiki/Linear_algebra"}, Score: 0.91},
		{Record: Record{ChunkID: "chunk-1", Text: "A vector space...", Tokens: 15, EmbeddingModel: "test-embedding-model", Title: "Linear algebra", Section: "Vector spaces"}, Score: 0.73},
	}
	svc, _ := newTestService(t, fetcher, store)

	got, err := svc.GetChunks(context.Background(), "Linear algebra", "eigenvalues", 4)
	if err != nil {
		t.Fatalf("GetChunks: %v", err)
	}

	if fetcher.calls != 1 {
		t.Errorf("fetch calls = %d, want 1", fetcher.calls)
	}
	if store.upsertCalls != 1 {
		t.Errorf("upsert calls = %d, want 1", store.upsertCalls)
	}
	if len(got) != 2 {
		t.Fatalf("got %d chunks, want 2", len(got))
	}
	if got[0].Score < got[1].Score {
		t.Error("results not in descending score order")
	}
	if got[0].Topic != "Linear algebra" || got[0].Source.Kind != SourceKindWikipedia {
		t.Errorf("unexpected result mapping: %+v", got[0])
	}
	if got[1].Source.Section != "Vector spaces" {
		t.Errorf("section = %q", got[1].Source.Section)
	}
}

func Test_GetChunks_SkipsIngestWhenIndexed(t *testing.T) {
	t.Parallel()
	fetcher := &fakeFetcher{article: testArticle()}
	store := newFakeStore()
	store.rows["Calculus"] = []Record{{ChunkID: "existing", Topic: "Calculus"}}
	store.hits = []Hit{{Record: Record{ChunkID: "existing", Text: "derivatives"}, Score: 0.8}}
	svc, _ := newTestService(t, fetcher, store)

	if _, err := svc.GetChunks(context.Background(), "Calculus", "", 6); err != nil {
		t.Fatalf("GetChunks: %v", err)
	}
	if fetcher.calls != 0 {
		t.Errorf("fetch calls = %d, want 0 for an indexed topic", fetcher.calls)
	}
}

func Test_GetChunks_ValidatesInput(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t, &fakeFetcher{article: testArticle()}, newFakeStore())

	if _, err := svc.GetChunks(context.Background(), "   ", "q", 6); err == nil {
		t.Error("expected error for blank topic")
	}
	if _, err := svc.GetChunks(context.Background(), "Sets", "q", 0); err == nil {
		t.Error("expected error for k = 0")
	}
	if _, err := svc.GetChunks(context.Background(), "Sets", "q", -3); err == nil {
		t.Error("expected error for negative k")
	}
}

func Test_GetChunks_NotFoundWrapped(t *testing.T) {
	t.Parallel()
	fetcher := &fakeFetcher{err: fmt.Errorf("page %q: %w", "Nope", ErrNotFound)}
	svc, _ := newTestService(t, fetcher, newFakeStore())

	_, err := svc.GetChunks(context.Background(), "Nope", "", 6)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	var rerr *RetrievalError
	if !errors.As(err, &rerr) {
		t.Fatalf("want *RetrievalError, got %T", err)
	}
	if rerr.Op != "get_chunks" {
		t.Errorf("op = %q", rerr.Op)
	}
}

func Test_GetChunks_NoContentOnEmptyArticle(t *testing.T) {
	t.Parallel()
	fetcher := &fakeFetcher{article: &Article{Title: "Stub", Sections: nil}}
	svc, _ := newTestService(t, fetcher, newFakeStore())

	_, err := svc.GetChunks(context.Background(), "Stub", "", 6)
	if !errors.Is(err, ErrNoContent) {
		t.Fatalf("want ErrNoContent, got %v", err)
	}
}

func Test_GetChunks_NoContentOnZeroChunks(t *testing.T) {
	t.Parallel()
	embedder := &fakeEmbedder{}
	svc, err := NewService(&ServiceConfig{
		Fetcher:    &fakeFetcher{article: testArticle()},
		Embedder:   embedder,
		Store:      newFakeStore(),
		Chunker:    &fakeChunker{},
		Clean:      func([]Section) []Section { return nil },
		Registerer: prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	_, gerr := svc.GetChunks(context.Background(), "Stub", "", 6)
	if !errors.Is(gerr, ErrNoContent) {
		t.Fatalf("want ErrNoContent, got %v", gerr)
	}
}

func Test_GetChunks_EmptyQueryFallsBackToTopic(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.rows["Topology"] = []Record{{ChunkID: "existing", Topic: "Topology"}}
	svc, embedder := newTestService(t, &fakeFetcher{}, store)

	if _, err := svc.GetChunks(context.Background(), "Topology", "  ", 6); err != nil {
		t.Fatalf("GetChunks: %v", err)
	}
	// One embed call for the query; none for ingest since the topic was indexed.
	if embedder.calls != 1 {
		t.Errorf("embed calls = %d, want 1", embedder.calls)
	}
}

func Test_GetChunks_ModelFallbackForLegacyRows(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.rows["Groups"] = []Record{{ChunkID: "old", Topic: "Groups"}}
	store.hits = []Hit{{Record: Record{ChunkID: "old", Text: "a group is a set"}, Score: 0.5}}
	svc, _ := newTestService(t, &fakeFetcher{}, store)

	got, err := svc.GetChunks(context.Background(), "Groups", "", 6)
	if err != nil {
		t.Fatalf("GetChunks: %v", err)
	}
	if got[0].EmbeddingModel != "test-embedding-model" {
		t.Errorf("embedding model = %q, want fallback to embedder model", got[0].EmbeddingModel)
	}
}

func Test_Reingest_RunsPipelineForIndexedTopic(t *testing.T) {
	t.Parallel()
	fetcher := &fakeFetcher{article: testArticle()}
	store := newFakeStore()
	store.rows["Linear algebra"] = []Record{{ChunkID: "stale", Topic: "Linear algebra"}}
	svc, _ := newTestService(t, fetcher, store)

	if err := svc.Reingest(context.Background(), "Linear algebra"); err != nil {
		t.Fatalf("Reingest: %v", err)
	}
	if fetcher.calls != 1 {
		t.Errorf("fetch calls = %d, want 1", fetcher.calls)
	}
	if store.upsertCalls != 1 {
		t.Errorf("upsert calls = %d, want 1", store.upsertCalls)
	}
}

func Test_Reingest_UnchangedContentKeepsRowCountStable(t *testing.T) {
	t.Parallel()
	fetcher := &fakeFetcher{article: testArticle()}
	store := newFakeStore()
	svc, _ := newTestService(t, fetcher, store)

	if err := svc.Reingest(context.Background(), "Linear algebra"); err != nil {
		t.Fatalf("first Reingest: %v", err)
	}
	first := len(store.rows["Linear algebra"])
	if first == 0 {
		t.Fatal("first reingest stored no rows")
	}

	if err := svc.Reingest(context.Background(), "Linear algebra"); err != nil {
		t.Fatalf("second Reingest: %v", err)
	}
	if got := len(store.rows["Linear algebra"]); got != first {
		t.Errorf("row count changed across reingests of identical content: %d -> %d", first, got)
	}
	if store.upsertCalls != 2 {
		t.Errorf("upsert calls = %d, want 2", store.upsertCalls)
	}
}

func Test_Reingest_RequiresTopic(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t, &fakeFetcher{}, newFakeStore())

	if err := svc.Reingest(context.Background(), ""); err == nil {
		t.Error("expected error for blank topic")
	}
}

func Test_Purge_DelegatesToStore(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.rows["Rings"] = []Record{{ChunkID: "r1", Topic: "Rings"}}
	svc, _ := newTestService(t, &fakeFetcher{}, store)

	if err := svc.Purge(context.Background(), "Rings"); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if len(store.rows["Rings"]) != 0 {
		t.Error("rows not purged")
	}
}

func Test_CountChunks_DegradesOnStoreError(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.countErr = errors.New("count rpc timed out")
	svc, _ := newTestService(t, &fakeFetcher{}, store)

	got := svc.CountChunks(context.Background(), "Fields")
	if got.OK {
		t.Fatal("expected degraded result")
	}
	if !strings.Contains(got.Reason, "timed out") {
		t.Errorf("reason = %q", got.Reason)
	}
}

func Test_CountChunks_ReportsValue(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.rows["Fields"] = []Record{{ChunkID: "f1", Topic: "Fields"}, {ChunkID: "f2", Topic: "Fields"}}
	svc, _ := newTestService(t, &fakeFetcher{}, store)

	got := svc.CountChunks(context.Background(), "Fields")
	if !got.OK || got.Value != 2 {
		t.Errorf("count = %+v, want OK with value 2", got)
	}
}

func Test_Ingest_EmbedCountMismatch(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	svc, err := NewService(&ServiceConfig{
		Fetcher:    &fakeFetcher{article: testArticle()},
		Embedder:   &truncatingEmbedder{},
		Store:      store,
		Chunker:    &fakeChunker{},
		Registerer: prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	rerr := svc.Reingest(context.Background(), "Linear algebra")
	if rerr == nil {
		t.Fatal("expected error on vector count mismatch")
	}
	if store.upsertCalls != 0 {
		t.Error("upsert must not run after a mismatched embed")
	}
}

// truncatingEmbedder drops the final vector to simulate a misbehaving backend.
type truncatingEmbedder struct{}

func (truncatingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors := make([][]float32, len(texts)-1)
	for i := range vectors {
		vectors[i] = []float32{1}
	}
	return vectors, nil
}

func (truncatingEmbedder) Model() string { return "truncating" }
