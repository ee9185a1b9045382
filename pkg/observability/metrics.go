// Package observability exposes the process's Prometheus metrics, scraped
// from the /metrics endpoint registered in cmd/api/router.go.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks total HTTP requests to the import pipeline routes.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "import_http_requests_total",
			Help: "Total number of import pipeline HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	// RequestDuration tracks request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "import_http_duration_seconds",
			Help:    "Import pipeline HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	// ActiveRequests tracks currently in-flight requests.
	ActiveRequests = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "import_http_active_requests",
			Help: "Number of in-flight import pipeline HTTP requests",
		},
		[]string{"path"},
	)
)

// statusRecorder captures the status code written by the wrapped handler,
// since http.ResponseWriter does not expose it after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware wraps next with the three collectors above, labeled by
// route and method, mirroring the teacher's per-procedure metrics
// interceptor but keyed for the plain-HTTP import surface.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		ActiveRequests.WithLabelValues(path).Inc()
		defer ActiveRequests.WithLabelValues(path).Dec()

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		RequestDuration.WithLabelValues(path, r.Method).Observe(time.Since(start).Seconds())
		RequestsTotal.WithLabelValues(path, r.Method, strconv.Itoa(rec.status)).Inc()
	})
}
