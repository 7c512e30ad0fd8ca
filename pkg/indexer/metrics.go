package indexer

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "solanax"

// Metrics holds the indexer's Prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	BlocksProcessed       *prometheus.CounterVec
	TransactionsProcessed *prometheus.CounterVec
	BatchesCommitted      *prometheus.CounterVec
	RowsWritten           *prometheus.CounterVec
	ExtractRetries        prometheus.Counter

	BatchCommitDuration  prometheus.Histogram
	BlockExtractDuration prometheus.Histogram

	LastCommittedSlot prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates the collectors on a dedicated registry.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.BlocksProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "blocks_processed_total",
			Help:      "Blocks processed by final status",
		},
		[]string{"status"}, // "success", "extract_failed", "transform_failed", "load_failed"
	)

	m.TransactionsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "transactions_processed_total",
			Help:      "Committed transactions by classified type",
		},
		[]string{"type"},
	)

	m.BatchesCommitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "batches_committed_total",
			Help:      "Batch commits by status",
		},
		[]string{"status"}, // "success", "error"
	)

	m.RowsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rows_written_total",
			Help:      "Rows upserted by table",
		},
		[]string{"table"},
	)

	m.ExtractRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "extract_retries_total",
			Help:      "getBlock attempts beyond the first",
		},
	)

	m.BatchCommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "batch_commit_duration_seconds",
			Help:      "Duration of batch commits including retries",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	m.BlockExtractDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "block_extract_duration_seconds",
			Help:      "Duration of block extraction including retries",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	m.LastCommittedSlot = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_committed_slot",
			Help:      "Highest slot of the most recent successful batch",
		},
	)

	m.registry.MustRegister(
		m.BlocksProcessed,
		m.TransactionsProcessed,
		m.BatchesCommitted,
		m.RowsWritten,
		m.ExtractRetries,
		m.BatchCommitDuration,
		m.BlockExtractDuration,
		m.LastCommittedSlot,
	)
	return m
}

// Registry exposes the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) observeExtract(d time.Duration, attempts int) {
	if m == nil {
		return
	}
	m.BlockExtractDuration.Observe(d.Seconds())
	if attempts > 1 {
		m.ExtractRetries.Add(float64(attempts - 1))
	}
}

func (m *Metrics) blockDone(status string) {
	if m == nil {
		return
	}
	m.BlocksProcessed.WithLabelValues(status).Inc()
}

func (m *Metrics) batchCommitted(d time.Duration, lastSlot uint64, rows RowCounts) {
	if m == nil {
		return
	}
	m.BatchesCommitted.WithLabelValues("success").Inc()
	m.BatchCommitDuration.Observe(d.Seconds())
	m.LastCommittedSlot.Set(float64(lastSlot))
	m.RowsWritten.WithLabelValues("blocks").Add(float64(rows.Blocks))
	m.RowsWritten.WithLabelValues("transactions").Add(float64(rows.Transactions))
	m.RowsWritten.WithLabelValues("instructions").Add(float64(rows.Instructions))
	m.RowsWritten.WithLabelValues("transfers").Add(float64(rows.Transfers))
	m.RowsWritten.WithLabelValues("accounts").Add(float64(rows.Accounts))
}

func (m *Metrics) batchFailed(d time.Duration) {
	if m == nil {
		return
	}
	m.BatchesCommitted.WithLabelValues("error").Inc()
	m.BatchCommitDuration.Observe(d.Seconds())
}

func (m *Metrics) transactionCommitted(category string) {
	if m == nil {
		return
	}
	m.TransactionsProcessed.WithLabelValues(category).Inc()
}
