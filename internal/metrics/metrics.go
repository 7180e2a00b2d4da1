// Package metrics provides Prometheus metrics for the store engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for one Database handle, each
// registered into its own private registry rather than prometheus's
// global DefaultRegisterer. A process opening more than one Database
// calls NewMetrics more than once; a shared global registry would make
// the second promauto.MustRegister panic on the duplicate metric names.
type Metrics struct {
	registry *prometheus.Registry

	// Engine operation metrics
	EngineOperationsTotal   *prometheus.CounterVec
	EngineOperationDuration *prometheus.HistogramVec

	// Storage metrics
	DbSizeBytes    prometheus.Gauge
	PagesAllocated prometheus.Gauge
	TablesTotal    prometheus.Gauge

	// Transaction metrics
	CommitsTotal       prometheus.Counter
	AbortsTotal        prometheus.Counter
	CommitDuration     prometheus.Histogram
	FsyncDuration      prometheus.Histogram
	RangeScansTotal    prometheus.Counter
	RangeEntriesServed prometheus.Counter

	// Server metrics
	ServerUptimeSeconds prometheus.Gauge
	ServerStartTime     time.Time
}

// NewMetrics creates a private registry and registers every metric into
// it, so that opening multiple Databases in one process never collides
// on the global registry's metric names.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	m := &Metrics{
		registry:        reg,
		ServerStartTime: time.Now(),
	}

	m.EngineOperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redb_engine_operations_total",
			Help: "Total number of recorded engine operations, by operation and status",
		},
		[]string{"operation", "status"},
	)

	m.EngineOperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redb_engine_operation_duration_seconds",
			Help:    "Duration of engine operations in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	m.DbSizeBytes = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "redb_file_size_bytes",
			Help: "Current size of the mapped file in bytes",
		},
	)

	m.PagesAllocated = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "redb_pages_allocated",
			Help: "Number of pages handed out by the page manager (next-free-page - 1)",
		},
	)

	m.TablesTotal = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "redb_tables_total",
			Help: "Number of tables in the table directory",
		},
	)

	m.CommitsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "redb_commits_total",
			Help: "Total number of write transactions committed",
		},
	)

	m.AbortsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "redb_aborts_total",
			Help: "Total number of write transactions aborted",
		},
	)

	m.CommitDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "redb_commit_duration_seconds",
			Help:    "Duration of write transaction commits, including fsync",
			Buckets: prometheus.DefBuckets,
		},
	)

	m.FsyncDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "redb_fsync_duration_seconds",
			Help:    "Duration of mapping fsync calls",
			Buckets: prometheus.DefBuckets,
		},
	)

	m.RangeScansTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "redb_range_scans_total",
			Help: "Total number of range iterations run to clean exhaustion",
		},
	)

	m.RangeEntriesServed = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "redb_range_entries_served_total",
			Help: "Total number of entries yielded by range iterators",
		},
	)

	m.ServerUptimeSeconds = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "redb_uptime_seconds",
			Help: "Process uptime in seconds",
		},
	)

	go m.updateUptime()

	return m
}

// Registry returns the private registry this Metrics instance was
// registered into, for observability.NewServer to serve at /metrics.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// updateUptime periodically updates the uptime gauge.
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.ServerUptimeSeconds.Set(time.Since(m.ServerStartTime).Seconds())
	}
}

// RecordEngineOperation records one engine operation with its status.
func (m *Metrics) RecordEngineOperation(operation string, status string, duration time.Duration) {
	m.EngineOperationsTotal.WithLabelValues(operation, status).Inc()
	m.EngineOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCommit records a successful commit's total duration.
func (m *Metrics) RecordCommit(duration time.Duration) {
	m.CommitsTotal.Inc()
	m.CommitDuration.Observe(duration.Seconds())
}

// RecordAbort records an aborted write transaction.
func (m *Metrics) RecordAbort() {
	m.AbortsTotal.Inc()
}

// RecordFsync records one mapping flush's duration. Wired to
// pkg/pager.Pager's sync hook.
func (m *Metrics) RecordFsync(duration time.Duration) {
	m.FsyncDuration.Observe(duration.Seconds())
}

// RecordRangeScan records a completed range iteration and how many
// entries it yielded. Wired to pkg/tree.Iterator's exhaustion hook.
func (m *Metrics) RecordRangeScan(entriesServed int) {
	m.RangeScansTotal.Inc()
	m.RangeEntriesServed.Add(float64(entriesServed))
}

// UpdateStorageStats refreshes the file-size, page-count, and table-count
// gauges from a live Storage/Pager snapshot. Called after every commit.
func (m *Metrics) UpdateStorageStats(sizeBytes int64, pagesAllocated int64, tables int64) {
	m.DbSizeBytes.Set(float64(sizeBytes))
	m.PagesAllocated.Set(float64(pagesAllocated))
	m.TablesTotal.Set(float64(tables))
}
