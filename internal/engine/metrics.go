package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EngineCollector exposes engine and store counters as Prometheus
// metrics. Register it with a prometheus.Registerer; collection is a
// cheap read of atomic counters and store counts.
type EngineCollector struct {
	engine *Engine

	// Prometheus descriptors for transaction metrics
	txApplied  *prometheus.Desc
	txRejected *prometheus.Desc
	txUndone   *prometheus.Desc
	txRedone   *prometheus.Desc

	// Prometheus descriptors for history metrics
	undoDepth *prometheus.Desc
	redoDepth *prometheus.Desc

	// Prometheus descriptors for loop and store metrics
	queueLen    *prometheus.Desc
	collections *prometheus.Desc
	features    *prometheus.Desc
}

func NewEngineCollector(e *Engine) *EngineCollector {
	return &EngineCollector{
		engine: e,

		// Transaction metrics
		txApplied: prometheus.NewDesc(
			"geostorm_transactions_applied_total",
			"Total number of committed edit transactions",
			nil, nil,
		),
		txRejected: prometheus.NewDesc(
			"geostorm_transactions_rejected_total",
			"Total number of rejected edit transactions",
			nil, nil,
		),
		txUndone: prometheus.NewDesc(
			"geostorm_transactions_undone_total",
			"Total number of undo operations performed",
			nil, nil,
		),
		txRedone: prometheus.NewDesc(
			"geostorm_transactions_redone_total",
			"Total number of redo operations performed",
			nil, nil,
		),

		// History metrics
		undoDepth: prometheus.NewDesc(
			"geostorm_history_undo_depth",
			"Current number of undoable transactions",
			nil, nil,
		),
		redoDepth: prometheus.NewDesc(
			"geostorm_history_redo_depth",
			"Current number of redoable transactions",
			nil, nil,
		),

		// Loop and store metrics
		queueLen: prometheus.NewDesc(
			"geostorm_mutation_queue_length",
			"Number of operations waiting for the mutation loop",
			nil, nil,
		),
		collections: prometheus.NewDesc(
			"geostorm_store_collections",
			"Number of collections in the feature store",
			nil, nil,
		),
		features: prometheus.NewDesc(
			"geostorm_store_features",
			"Number of features in the feature store",
			nil, nil,
		),
	}
}

func (ec *EngineCollector) Describe(ch chan<- *prometheus.Desc) {
	// Transaction metrics
	ch <- ec.txApplied
	ch <- ec.txRejected
	ch <- ec.txUndone
	ch <- ec.txRedone

	// History metrics
	ch <- ec.undoDepth
	ch <- ec.redoDepth

	// Loop and store metrics
	ch <- ec.queueLen
	ch <- ec.collections
	ch <- ec.features
}

func (ec *EngineCollector) Collect(ch chan<- prometheus.Metric) {
	stats := ec.engine.Stats()
	storeStats := ec.engine.Store().Stats()

	// Transaction metrics
	ch <- prometheus.MustNewConstMetric(
		ec.txApplied,
		prometheus.CounterValue,
		float64(stats.Applied),
	)
	ch <- prometheus.MustNewConstMetric(
		ec.txRejected,
		prometheus.CounterValue,
		float64(stats.Rejected),
	)
	ch <- prometheus.MustNewConstMetric(
		ec.txUndone,
		prometheus.CounterValue,
		float64(stats.Undone),
	)
	ch <- prometheus.MustNewConstMetric(
		ec.txRedone,
		prometheus.CounterValue,
		float64(stats.Redone),
	)

	// History metrics
	ch <- prometheus.MustNewConstMetric(
		ec.undoDepth,
		prometheus.GaugeValue,
		float64(stats.UndoDepth),
	)
	ch <- prometheus.MustNewConstMetric(
		ec.redoDepth,
		prometheus.GaugeValue,
		float64(stats.RedoDepth),
	)

	// Loop and store metrics
	ch <- prometheus.MustNewConstMetric(
		ec.queueLen,
		prometheus.GaugeValue,
		float64(stats.QueueLen),
	)
	ch <- prometheus.MustNewConstMetric(
		ec.collections,
		prometheus.GaugeValue,
		float64(storeStats.Collections),
	)
	ch <- prometheus.MustNewConstMetric(
		ec.features,
		prometheus.GaugeValue,
		float64(storeStats.Features),
	)
}
