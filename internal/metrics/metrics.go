package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Download outcome label values.
const (
	OutcomeSuccess   = "success"
	OutcomeTimeout   = "timeout"
	OutcomeTransport = "transport_error"
	OutcomeIO        = "io_error"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitrack_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orbitrack_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	downloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitrack_downloads_total",
			Help: "Element set download jobs by terminal outcome.",
		},
		[]string{"outcome"},
	)

	downloadBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitrack_download_bytes_total",
		Help: "Bytes received by successful element set downloads.",
	})

	downloadDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orbitrack_download_duration_seconds",
		Help:    "Download job duration in seconds, any outcome.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	downloadsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitrack_downloads_in_flight",
		Help: "Download jobs currently running.",
	})

	parseFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitrack_parse_failures_total",
		Help: "Element set texts rejected by the parser.",
	})

	catalogSatellites = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitrack_catalog_satellites",
		Help: "Number of records in the loaded catalog.",
	})

	computeDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orbitrack_compute_duration_seconds",
		Help:    "Time to propagate one satellite over a time grid.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	})

	samplesCurrent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitrack_samples",
		Help: "Number of points in the current sample set (0 when none).",
	})
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		downloadsTotal,
		downloadBytesTotal,
		downloadDurationSeconds,
		downloadsInFlight,
		parseFailuresTotal,
		catalogSatellites,
		computeDurationSeconds,
		samplesCurrent,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DownloadStarted marks a job as running.
func DownloadStarted() {
	downloadsInFlight.Inc()
}

// RecordDownload records the terminal outcome of a job.
func RecordDownload(outcome string, bytes int64, d time.Duration) {
	downloadsInFlight.Dec()
	downloadsTotal.WithLabelValues(outcome).Inc()
	downloadDurationSeconds.Observe(d.Seconds())
	if outcome == OutcomeSuccess {
		downloadBytesTotal.Add(float64(bytes))
	}
}

// RecordParseFailure counts a rejected element set text.
func RecordParseFailure() {
	parseFailuresTotal.Inc()
}

// SetCatalogSize sets the loaded catalog size.
func SetCatalogSize(n int) {
	catalogSatellites.Set(float64(n))
}

// RecordPropagation observes one oracle run.
func RecordPropagation(d time.Duration) {
	computeDurationSeconds.Observe(d.Seconds())
}

// SetSamples sets the size of the current sample set.
func SetSamples(n int) {
	samplesCurrent.Set(float64(n))
}

var knownRoutes = map[string]bool{
	"/healthz":        true,
	"/readyz":         true,
	"/metrics":        true,
	"/api/v1/session": true,
	"/api/v1/catalog": true,
	"/api/v1/samples": true,
}

// normalizeRoute collapses unknown paths into one label to bound cardinality.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
