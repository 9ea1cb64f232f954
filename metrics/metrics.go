// Package metrics holds the Prometheus collectors of the media pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Upload outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "benirage",
		Name:      "uploads_total",
		Help:      "Media uploads by kind and outcome.",
	}, []string{"kind", "outcome"})

	uploadBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "benirage",
		Name:      "upload_bytes_total",
		Help:      "Bytes stored by successful uploads.",
	}, []string{"kind"})

	uploadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "benirage",
		Name:      "upload_duration_seconds",
		Help:      "Time spent transferring media to object storage.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"kind"})

	activeUploads = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "benirage",
		Name:      "uploads_in_flight",
		Help:      "Upload tasks currently in the uploading state.",
	})

	cleanupDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "benirage",
		Name:      "cleanup_deleted_total",
		Help:      "Orphaned media objects removed by the cleanup sweep.",
	})
)

// ObserveUpload records one finished upload attempt.
func ObserveUpload(kind, outcome string, bytes int64, elapsed time.Duration) {
	uploadsTotal.WithLabelValues(kind, outcome).Inc()
	uploadDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	if outcome == OutcomeSucceeded {
		uploadBytes.WithLabelValues(kind).Add(float64(bytes))
	}
}

// UploadStarted and UploadFinished track in-flight tasks.
func UploadStarted()  { activeUploads.Inc() }
func UploadFinished() { activeUploads.Dec() }

// CleanupDeleted counts swept objects.
func CleanupDeleted(n int) {
	cleanupDeleted.Add(float64(n))
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
