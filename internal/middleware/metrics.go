package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"media-catalog/internal/metrics"
)

// statusRecorder captures the status code for the request metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// MetricsConfig lists path prefixes excluded from request metrics.
type MetricsConfig struct {
	SkipPaths []string
}

// DefaultMetricsConfig skips the operational endpoints; scrapes and
// probes would otherwise dominate the request counters.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		SkipPaths: []string{"/metrics", "/health", "/healthz", "/livez", "/readyz"},
	}
}

// Metrics records request count, duration, and in-flight gauge per
// method and normalized path.
func Metrics(config MetricsConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range config.SkipPaths {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			metrics.HTTPRequestsInFlight.Inc()
			defer metrics.HTTPRequestsInFlight.Dec()

			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(recorder, r)

			path := normalizePath(r.URL.Path)
			status := strconv.Itoa(recorder.status)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// normalizePath bounds label cardinality. Catalog routes are at most
// three segments deep (/api/media/search); anything past four is
// collapsed into a single {path} label.
func normalizePath(path string) string {
	const keep = 4
	parts := strings.Split(path, "/")
	segments := 0
	for i, part := range parts {
		if part == "" {
			continue
		}
		segments++
		if segments > keep {
			parts[i] = "{path}"
			return strings.Join(parts[:i+1], "/")
		}
	}
	return path
}
