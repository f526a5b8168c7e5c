// Copyright 2025 Certen Protocol
//
// Prometheus Metrics

package metrics

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes the service's Prometheus collectors.
type Metrics struct {
	CallsReceived    prometheus.Counter
	CallsCompleted   *prometheus.CounterVec
	PreflightSeconds prometheus.Histogram
	ProvingSeconds   prometheus.Histogram
	EstimatedCycles  prometheus.Histogram
	IndexerPolls     *prometheus.CounterVec
	IndexedBlocks    *prometheus.GaugeVec
}

// New registers the collectors with the default registry.
func New() *Metrics {
	return &Metrics{
		CallsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "prover_calls_received_total",
			Help: "Number of v_call requests accepted",
		}),
		CallsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prover_calls_completed_total",
			Help: "Number of pipelines reaching a terminal state, by state",
		}, []string{"state"}),
		PreflightSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "prover_preflight_duration_seconds",
			Help:    "Preflight phase duration",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		ProvingSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "prover_proving_duration_seconds",
			Help:    "Proving phase duration",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		EstimatedCycles: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "prover_estimated_cycles",
			Help:    "Estimated guest cycles per call",
			Buckets: prometheus.ExponentialBuckets(1e6, 2, 16),
		}),
		IndexerPolls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "indexer_polls_total",
			Help: "Indexer polls, by outcome",
		}, []string{"chain_id", "outcome"}),
		IndexedBlocks: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "indexer_last_block",
			Help: "Highest indexed block per chain",
		}, []string{"chain_id"}),
	}
}

// Serve exposes /metrics on addr in a background goroutine.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			log.Printf("[metrics] server failed: %v", err)
		}
	}()
}
