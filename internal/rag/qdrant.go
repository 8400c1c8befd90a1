package rag

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// deleteBatchSize bounds the number of point IDs per delete call so filter
// expressions stay within engine limits.
const deleteBatchSize = 500

// fieldTopic is the payload field carrying the topic scope. It gets a keyword
// index so exact-match filters stay cheap as the corpus grows.
const fieldTopic = "topic"

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of stored embeddings. Must match the
	// embedding model's output dimension (default: 384).
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements VectorStore backed by a Qdrant instance. One
// collection holds all topics; rows are scoped by an exact-match filter on
// the topic payload field rather than per-topic collections.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// NewQdrantStore creates a QdrantStore, ensuring the target collection and
// its payload index exist (creating them if necessary). Bootstrap is
// idempotent: a second call against an existing collection is a no-op.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "whiteboard-chunks"
	}
	if cfg.VectorSize == 0 {
		cfg.VectorSize = 384
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	store := &QdrantStore{client: client, cfg: cfg}
	if err := store.ensureCollection(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// ensureCollection creates the collection with a cosine vector index and a
// keyword payload index on topic, unless it already exists.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}

	_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.cfg.Collection,
		FieldName:      fieldTopic,
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to index %s field: %w", fieldTopic, err)
	}

	return nil
}

// topicFilter returns the exact-match scalar filter for topic.
func topicFilter(topic string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch(fieldTopic, topic)},
	}
}

// IsIndexed reports whether at least one row exists for topic. It scrolls
// with limit 1 — a bounded existence probe, never a full count.
func (s *QdrantStore) IsIndexed(ctx context.Context, topic string) (bool, error) {
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.cfg.Collection,
		Filter:         topicFilter(topic),
		Limit:          qdrant.PtrOf(uint32(1)),
		WithPayload:    qdrant.NewWithPayload(false),
	})
	if err != nil {
		return false, fmt.Errorf("qdrant: existence probe for %q failed: %w", topic, err)
	}
	return len(points) > 0, nil
}

// Upsert idempotently replaces records: rows with the same chunk IDs are
// deleted first (in bounded batches), then all records are inserted with
// Wait set so they are visible to searches once Upsert returns.
func (s *QdrantStore) Upsert(ctx context.Context, records []Record, vectors [][]float32) error {
	if len(records) == 0 {
		return nil
	}
	if len(records) != len(vectors) {
		return fmt.Errorf("qdrant: %d records but %d vectors", len(records), len(vectors))
	}

	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ChunkID
		if uint64(len(vectors[i])) != s.cfg.VectorSize {
			return fmt.Errorf("qdrant: vector %d has dimension %d, collection expects %d — "+
				"changing embedding models requires a new collection",
				i, len(vectors[i]), s.cfg.VectorSize)
		}
	}

	if err := s.deleteByIDs(ctx, ids); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, 0, len(records))
	for i, r := range records {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(r.ChunkID),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				"chunk_id":        r.ChunkID,
				fieldTopic:        r.Topic,
				"text":            r.Text,
				"tokens":          int64(r.Tokens),
				"embedding_model": r.EmbeddingModel,
				"url":             r.URL,
				"title":           r.Title,
				"section":         r.Section,
				"ingested_at":     r.IngestedAt,
			}),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert of %d points failed: %w", len(points), err)
	}

	return nil
}

// deleteByIDs removes points by primary key in batches of deleteBatchSize.
func (s *QdrantStore) deleteByIDs(ctx context.Context, ids []string) error {
	for start := 0; start < len(ids); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(ids))

		pointIDs := make([]*qdrant.PointId, 0, end-start)
		for _, id := range ids[start:end] {
			pointIDs = append(pointIDs, qdrant.NewIDUUID(id))
		}

		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.cfg.Collection,
			Points:         qdrant.NewPointsSelector(pointIDs...),
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			return fmt.Errorf("qdrant: delete batch [%d:%d] failed: %w", start, end, err)
		}
	}
	return nil
}

// Search performs a cosine similarity search restricted to topic and returns
// up to k hits ordered by descending score.
func (s *QdrantStore) Search(ctx context.Context, topic string, queryVector []float32, k int) ([]Hit, error) {
	limit := uint64(k) //nolint:gosec // k is validated positive by the caller
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(queryVector...),
		Filter:         topicFilter(topic),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search for %q failed: %w", topic, err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{
			Record: recordFromPayload(r.Id.GetUuid(), r.Payload),
			Score:  r.Score,
		})
	}
	return hits, nil
}

// recordFromPayload maps a stored point payload back into a Record.
// The point ID is the authoritative chunk ID; the payload copy is a
// convenience for engines queried without IDs.
func recordFromPayload(id string, payload map[string]*qdrant.Value) Record {
	rec := Record{ChunkID: id}
	if payload == nil {
		return rec
	}
	if v, ok := payload["chunk_id"]; ok && v.GetStringValue() != "" {
		rec.ChunkID = v.GetStringValue()
	}
	if v, ok := payload[fieldTopic]; ok {
		rec.Topic = v.GetStringValue()
	}
	if v, ok := payload["text"]; ok {
		rec.Text = v.GetStringValue()
	}
	if v, ok := payload["tokens"]; ok {
		rec.Tokens = int(v.GetIntegerValue())
	}
	if v, ok := payload["embedding_model"]; ok {
		rec.EmbeddingModel = v.GetStringValue()
	}
	if v, ok := payload["url"]; ok {
		rec.URL = v.GetStringValue()
	}
	if v, ok := payload["title"]; ok {
		rec.Title = v.GetStringValue()
	}
	if v, ok := payload["section"]; ok {
		rec.Section = v.GetStringValue()
	}
	if v, ok := payload["ingested_at"]; ok {
		rec.IngestedAt = v.GetIntegerValue()
	}
	return rec
}

// Purge deletes all rows belonging to topic.
func (s *QdrantStore) Purge(ctx context.Context, topic string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Points:         qdrant.NewPointsSelectorFilter(topicFilter(topic)),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant: purge of %q failed: %w", topic, err)
	}
	return nil
}

// Count returns the exact number of rows for topic via the Count RPC.
func (s *QdrantStore) Count(ctx context.Context, topic string) (int64, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Filter:         topicFilter(topic),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count for %q failed: %w", topic, err)
	}
	return int64(n), nil //nolint:gosec // corpus sizes are nowhere near overflow
}

// Ping checks whether the Qdrant instance is reachable. Used by readiness
// probes and the status command.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
