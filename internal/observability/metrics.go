package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	uploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rosctl",
			Subsystem: "upload",
			Name:      "total",
			Help:      "Script uploads by outcome.",
		},
		[]string{"router", "mode", "success"},
	)
	uploadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rosctl",
			Subsystem: "upload",
			Name:      "duration_seconds",
			Help:      "Script upload duration in seconds.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"router", "mode"},
	)
	uploadParts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rosctl",
			Subsystem: "upload",
			Name:      "parts_staged_total",
			Help:      "Temporary parts staged by chunked uploads.",
		},
		[]string{"router"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rosctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total status server requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rosctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Status server request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(uploads, uploadDuration, uploadParts, httpRequests, httpDuration)
	})
}

func RecordUpload(router, mode string, success bool, parts int, duration time.Duration) {
	RegisterMetrics()
	uploads.WithLabelValues(router, mode, strconv.FormatBool(success)).Inc()
	uploadDuration.WithLabelValues(router, mode).Observe(duration.Seconds())
	if parts > 0 {
		uploadParts.WithLabelValues(router).Add(float64(parts))
	}
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
