// Package metrics provides Prometheus metrics for ingestion and retrieval.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Ingestion
	ChunksTotal     *prometheus.CounterVec
	FilingsTotal    *prometheus.CounterVec
	StrategiesTotal *prometheus.CounterVec
	EmbedCalls      *prometheus.CounterVec
	UpsertCalls     *prometheus.CounterVec

	// Retrieval
	SearchesTotal     *prometheus.CounterVec
	SearchDuration    prometheus.Histogram
	PostFilterDropped prometheus.Counter
}

// New creates and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ChunksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secrag_chunks_total",
				Help: "Chunks produced by the segmenter, by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		FilingsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secrag_filings_total",
				Help: "Filings processed, by outcome",
			},
			[]string{"outcome"},
		),
		StrategiesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secrag_section_strategy_total",
				Help: "Section detection strategy accepted per filing",
			},
			[]string{"strategy"},
		),
		EmbedCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secrag_embed_calls_total",
				Help: "Embedding service calls, by status",
			},
			[]string{"status"},
		),
		UpsertCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secrag_upsert_calls_total",
				Help: "Vector index upsert calls, by status",
			},
			[]string{"status"},
		),
		SearchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secrag_searches_total",
				Help: "Searches, by status",
			},
			[]string{"status"},
		),
		SearchDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "secrag_search_duration_seconds",
				Help:    "Search latency including the query embedding",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),
		PostFilterDropped: f.NewCounter(
			prometheus.CounterOpts{
				Name: "secrag_post_filter_dropped_total",
				Help: "Index candidates rejected by client-side filters",
			},
		),
	}
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) ChunkKept(chunkType string) {
	if m == nil {
		return
	}
	m.ChunksTotal.WithLabelValues(chunkType, "kept").Inc()
}

func (m *Metrics) ChunkDropped(chunkType string) {
	if m == nil {
		return
	}
	m.ChunksTotal.WithLabelValues(chunkType, "dropped").Inc()
}

// Filing records one filing outcome: ingested, failed or skipped.
func (m *Metrics) Filing(outcome string) {
	if m == nil {
		return
	}
	m.FilingsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Strategy(name string) {
	if m == nil {
		return
	}
	m.StrategiesTotal.WithLabelValues(name).Inc()
}

func (m *Metrics) EmbedCall(err error) {
	if m == nil {
		return
	}
	m.EmbedCalls.WithLabelValues(status(err)).Inc()
}

func (m *Metrics) UpsertCall(err error) {
	if m == nil {
		return
	}
	m.UpsertCalls.WithLabelValues(status(err)).Inc()
}

// Search records one search and its latency.
func (m *Metrics) Search(started time.Time, dropped int, err error) {
	if m == nil {
		return
	}
	m.SearchesTotal.WithLabelValues(status(err)).Inc()
	m.SearchDuration.Observe(time.Since(started).Seconds())
	if dropped > 0 {
		m.PostFilterDropped.Add(float64(dropped))
	}
}
