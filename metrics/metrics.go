// Package metrics exposes the importer's Prometheus counters and gauges:
// blocks/epochs processed, rollbacks triggered, bridge errors by kind, and
// submit outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	BlocksProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "importer_blocks_processed_total",
		Help: "Total number of blocks committed to the store.",
	})

	EpochsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "importer_epochs_processed_total",
		Help: "Total number of packed epochs pulled in epoch-batch mode.",
	})

	Rollbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "importer_rollbacks_total",
		Help: "Total number of rollbacks triggered by a fork check.",
	})

	BridgeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "importer_bridge_errors_total",
		Help: "Bridge call failures, labeled by kind.",
	}, []string{"kind"})

	SubmitRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "importer_submit_requests_total",
		Help: "Submitted tx requests, labeled by outcome.",
	}, []string{"outcome"})

	BestBlockHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "importer_best_block_height",
		Help: "The importer's current best-block height (may be negative after a rollback past genesis).",
	})
)

func init() {
	prometheus.MustRegister(BlocksProcessed)
	prometheus.MustRegister(EpochsProcessed)
	prometheus.MustRegister(Rollbacks)
	prometheus.MustRegister(BridgeErrors)
	prometheus.MustRegister(SubmitRequests)
	prometheus.MustRegister(BestBlockHeight)
}
