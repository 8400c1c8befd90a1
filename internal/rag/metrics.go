package rag

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// pipelineMetrics holds all Prometheus metrics owned by the retrieval
// service. A fresh instance is registered per Service so tests can inject
// their own prometheus.Registry without polluting the default one.
type pipelineMetrics struct {
	// ingestsTotal counts completed ingest runs, partitioned by outcome:
	// "ok", "not_found", "no_content", or "error".
	ingestsTotal *prometheus.CounterVec

	// ingestDurationSeconds records the wall-clock duration of each ingest
	// run (fetch through upsert).
	ingestDurationSeconds prometheus.Histogram

	// chunksIngestedTotal counts chunks written to the vector store.
	chunksIngestedTotal prometheus.Counter

	// searchesTotal counts completed GetChunks calls, partitioned by outcome.
	searchesTotal *prometheus.CounterVec

	// searchDurationSeconds records the latency of the query path (query
	// embedding plus store search), excluding any ingest triggered first.
	searchDurationSeconds prometheus.Histogram
}

// newPipelineMetrics registers all retrieval metrics against reg.
func newPipelineMetrics(reg prometheus.Registerer) *pipelineMetrics {
	factory := promauto.With(reg)

	return &pipelineMetrics{
		ingestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whiteboard",
			Subsystem: "retrieval",
			Name:      "ingests_total",
			Help:      "Total number of topic ingest runs, partitioned by outcome.",
		}, []string{"outcome"}),

		ingestDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "whiteboard",
			Subsystem: "retrieval",
			Name:      "ingest_duration_seconds",
			Help:      "Wall-clock duration of a topic ingest run, fetch through upsert.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}),

		chunksIngestedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "whiteboard",
			Subsystem: "retrieval",
			Name:      "chunks_ingested_total",
			Help:      "Total number of chunks upserted into the vector store.",
		}),

		searchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whiteboard",
			Subsystem: "retrieval",
			Name:      "searches_total",
			Help:      "Total number of GetChunks calls, partitioned by outcome.",
		}, []string{"outcome"}),

		searchDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "whiteboard",
			Subsystem: "retrieval",
			Name:      "search_duration_seconds",
			Help:      "Latency of the query path: query embedding plus vector search.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
