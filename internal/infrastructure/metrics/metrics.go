// Package metrics exposes Prometheus collectors for backup runs, uploads
// and retention sweeps.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BackupRunsTotal counts finished runs by terminal status.
	BackupRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapkeep_backup_runs_total",
			Help: "Total number of finished backup runs",
		},
		[]string{"status"},
	)

	BackupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "snapkeep_backup_duration_seconds",
			Help:    "Duration of backup runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	BackupSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "snapkeep_backup_size_bytes",
			Help:    "Size of produced backup archives in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 12),
		},
	)

	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapkeep_uploads_total",
			Help: "Total number of archive uploads by provider and result",
		},
		[]string{"provider", "result"},
	)

	RetentionDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snapkeep_retention_deleted_total",
			Help: "Total number of backups deleted by retention sweeps",
		},
	)

	BackupsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "snapkeep_backups_in_flight",
			Help: "Number of backup runs currently executing",
		},
	)
)

func RecordRun(status string, duration time.Duration, size int64) {
	BackupRunsTotal.WithLabelValues(status).Inc()
	BackupDuration.Observe(duration.Seconds())
	if size > 0 {
		BackupSizeBytes.Observe(float64(size))
	}
}

func RecordUpload(provider string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	UploadsTotal.WithLabelValues(provider, result).Inc()
}

func RecordRetentionDeleted(n int) {
	RetentionDeletedTotal.Add(float64(n))
}

// TrackInFlight increments the in-flight gauge and returns its decrement.
func TrackInFlight() func() {
	BackupsInFlight.Inc()
	return BackupsInFlight.Dec
}
