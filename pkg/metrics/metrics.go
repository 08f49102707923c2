// Package metrics exposes Prometheus instrumentation for the RAG server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DocumentsProcessed counts ingestion outcomes by status.
	DocumentsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ragserver_documents_processed_total",
		Help: "Documents processed by the ingestion pipeline, by final status.",
	}, []string{"status"})

	// ChunksIndexed counts chunks written to the vector index.
	ChunksIndexed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ragserver_chunks_indexed_total",
		Help: "Chunks upserted into the vector index.",
	})

	// IngestDuration tracks end-to-end document processing time.
	IngestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ragserver_ingest_duration_seconds",
		Help:    "Time to fully process one document.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	// QueriesTotal counts query outcomes.
	QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ragserver_queries_total",
		Help: "Queries answered, by outcome.",
	}, []string{"outcome"})

	// QueryDuration tracks end-to-end query answering time.
	QueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ragserver_query_duration_seconds",
		Help:    "Time to answer one query.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	// HTTPRequests counts HTTP requests by route, method and status class.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ragserver_http_requests_total",
		Help: "HTTP requests served.",
	}, []string{"path", "method", "status"})

	// HTTPDuration tracks HTTP request latency by route.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ragserver_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"path", "method"})
)

// Query outcome label values.
const (
	OutcomeAnswered  = "answered"
	OutcomeNoResults = "no_results"
	OutcomeError     = "error"
)
