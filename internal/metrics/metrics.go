// Package metrics provides Prometheus metrics for the bookquery service
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service
type Metrics struct {
	// gRPC request metrics
	GrpcRequestsTotal    *prometheus.CounterVec
	GrpcRequestDuration  *prometheus.HistogramVec
	GrpcRequestsInFlight prometheus.Gauge

	// Document store metrics
	DbOperationsTotal   *prometheus.CounterVec
	DbOperationDuration *prometheus.HistogramVec
	DocumentsReturned   *prometheus.CounterVec
	DocumentsModified   *prometheus.CounterVec

	// Catalog metrics
	QueryExecutionsTotal *prometheus.CounterVec
	CatalogQueries       prometheus.Gauge

	// Server metrics
	ServerUptimeSeconds prometheus.Gauge
	ServerStartTime     time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// uses the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{
		ServerStartTime: time.Now(),
		stop:            make(chan struct{}),
	}

	// gRPC request metrics
	m.GrpcRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookquery_grpc_requests_total",
			Help: "Total number of gRPC requests",
		},
		[]string{"method", "status"},
	)

	m.GrpcRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookquery_grpc_request_duration_seconds",
			Help:    "Duration of gRPC requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	m.GrpcRequestsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "bookquery_grpc_requests_in_flight",
			Help: "Number of gRPC requests currently being processed",
		},
	)

	// Document store metrics
	m.DbOperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookquery_db_operations_total",
			Help: "Total number of document store operations",
		},
		[]string{"operation", "status"},
	)

	m.DbOperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookquery_db_operation_duration_seconds",
			Help:    "Duration of document store operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	m.DocumentsReturned = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookquery_documents_returned_total",
			Help: "Total number of documents read from cursors",
		},
		[]string{"operation"},
	)

	m.DocumentsModified = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookquery_documents_modified_total",
			Help: "Total number of documents updated or deleted",
		},
		[]string{"operation"},
	)

	// Catalog metrics
	m.QueryExecutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookquery_query_executions_total",
			Help: "Total number of catalog executions by query name",
		},
		[]string{"query", "status"},
	)

	m.CatalogQueries = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "bookquery_catalog_queries",
			Help: "Number of queries registered in the catalog",
		},
	)

	// Server metrics
	m.ServerUptimeSeconds = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "bookquery_server_uptime_seconds",
			Help: "Server uptime in seconds",
		},
	)

	go m.updateUptime(10 * time.Second)

	return m
}

// updateUptime periodically updates the server uptime metric
func (m *Metrics) updateUptime(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.ServerUptimeSeconds.Set(time.Since(m.ServerStartTime).Seconds())
		case <-m.stop:
			return
		}
	}
}

// Close stops the uptime updater.
func (m *Metrics) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// RecordGrpcRequest records a gRPC request with its status
func (m *Metrics) RecordGrpcRequest(method string, status string, duration time.Duration) {
	m.GrpcRequestsTotal.WithLabelValues(method, status).Inc()
	m.GrpcRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordDbOperation records a document store round trip
func (m *Metrics) RecordDbOperation(operation string, status string, duration time.Duration) {
	m.DbOperationsTotal.WithLabelValues(operation, status).Inc()
	m.DbOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordDocumentsReturned counts documents drained from a cursor
func (m *Metrics) RecordDocumentsReturned(operation string, n int64) {
	m.DocumentsReturned.WithLabelValues(operation).Add(float64(n))
}

// RecordDocumentsModified counts documents touched by a write
func (m *Metrics) RecordDocumentsModified(operation string, n int64) {
	m.DocumentsModified.WithLabelValues(operation).Add(float64(n))
}

// RecordQueryExecution records a catalog execution
func (m *Metrics) RecordQueryExecution(name string, status string) {
	m.QueryExecutionsTotal.WithLabelValues(name, status).Inc()
}

// SetCatalogSize updates the registered query count
func (m *Metrics) SetCatalogSize(n int) {
	m.CatalogQueries.Set(float64(n))
}
