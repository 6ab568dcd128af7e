package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector handles Prometheus metrics collection
type MetricsCollector struct {
	serviceName string
	gatherer    prometheus.Gatherer

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Scheduling metrics
	bookingsTotal     *prometheus.CounterVec
	transitionsTotal  *prometheus.CounterVec
	storeRetriesTotal *prometheus.CounterVec
	slotCacheRequests *prometheus.CounterVec
}

// NewMetricsCollector creates a collector registered on reg. Passing a fresh
// prometheus.NewRegistry keeps tests isolated from the default registry.
func NewMetricsCollector(serviceName string, reg *prometheus.Registry) *MetricsCollector {
	m := &MetricsCollector{
		serviceName: serviceName,
		gatherer:    reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hms_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code", "service"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hms_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint", "service"},
		),
		bookingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hms_bookings_total",
				Help: "Booking attempts by outcome",
			},
			[]string{"outcome", "service"},
		),
		transitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hms_appointment_transitions_total",
				Help: "Appointment status transitions by target status",
			},
			[]string{"status", "service"},
		),
		storeRetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hms_store_retries_total",
				Help: "Retries of transient store conflicts",
			},
			[]string{"operation", "service"},
		),
		slotCacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hms_slot_cache_requests_total",
				Help: "Slot cache lookups by result",
			},
			[]string{"result", "service"},
		),
	}

	reg.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.bookingsTotal,
		m.transitionsTotal,
		m.storeRetriesTotal,
		m.slotCacheRequests,
	)

	return m
}

// RecordHTTPRequest records HTTP request metrics
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCode, m.serviceName).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint, m.serviceName).Observe(duration.Seconds())
}

// RecordBooking records a booking attempt; outcome is "booked" or an error kind
func (m *MetricsCollector) RecordBooking(outcome string) {
	m.bookingsTotal.WithLabelValues(outcome, m.serviceName).Inc()
}

// RecordTransition records an appointment moving to status
func (m *MetricsCollector) RecordTransition(status string) {
	m.transitionsTotal.WithLabelValues(status, m.serviceName).Inc()
}

// RecordStoreRetry records one retry of a StoreBusy failure
func (m *MetricsCollector) RecordStoreRetry(operation string) {
	m.storeRetriesTotal.WithLabelValues(operation, m.serviceName).Inc()
}

// RecordSlotCache records a slot cache lookup: hit, miss or error
func (m *MetricsCollector) RecordSlotCache(result string) {
	m.slotCacheRequests.WithLabelValues(result, m.serviceName).Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

