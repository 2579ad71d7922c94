package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the
// control surface and the archive itself.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	archiveSize     prometheus.Gauge
	archiveOps      *prometheus.CounterVec
	viewEntries     prometheus.Gauge
	viewRefreshes   prometheus.Counter
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	archiveSize := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "archive_records",
		Help: "Number of records currently archived",
	})

	archiveOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_operations_total",
		Help: "Archive mutations by operation",
	}, []string{"operation"})

	viewEntries := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "view_entries",
		Help: "Number of entries mirrored from the live view",
	})

	viewRefreshes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "view_refreshes_total",
		Help: "Total full reconciliation passes over the view",
	})

	registry.MustRegister(requestDuration, requestTotal, archiveSize, archiveOps, viewEntries, viewRefreshes)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		archiveSize:     archiveSize,
		archiveOps:      archiveOps,
		viewEntries:     viewEntries,
		viewRefreshes:   viewRefreshes,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records one served request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	s.requestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(method, path, code).Inc()
}

// SetArchiveSize updates the archived record gauge.
func (s *MetricsService) SetArchiveSize(n int) {
	s.archiveSize.Set(float64(n))
}

// IncArchiveOp counts n applications of an archive operation.
func (s *MetricsService) IncArchiveOp(op string, n int) {
	if n <= 0 {
		return
	}
	s.archiveOps.WithLabelValues(op).Add(float64(n))
}

// SetViewEntries updates the mirrored view size gauge.
func (s *MetricsService) SetViewEntries(n int) {
	s.viewEntries.Set(float64(n))
}

// IncViewRefresh counts one reconciliation pass.
func (s *MetricsService) IncViewRefresh() {
	s.viewRefreshes.Inc()
}
