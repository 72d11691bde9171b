package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// JobMetrics is the persisted record of the last migration run.
type JobMetrics struct {
	LastRunSuccess  bool    `json:"last_run_success"`
	LastArchiveSize int64   `json:"last_archive_size_bytes"`
	LastDuration    float64 `json:"last_duration_seconds"`
	LastVolumeCount int     `json:"last_volume_count"`
}

// Prometheus metric declarations.
var jobSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "paasport_last_run_success",
	Help: "Last migration run success status (1=success, 0=failure)",
})

var archiveSize = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "paasport_last_archive_size_bytes",
	Help: "Size of the last migration archive in bytes",
})

var jobDuration = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "paasport_last_run_duration_seconds",
	Help: "Duration of the last migration run in seconds",
})

var volumeCount = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "paasport_last_volume_count",
	Help: "Number of docker volume paths captured by the last run",
})

// Register metrics on package initialization.
func init() {
	prometheus.MustRegister(jobSuccess, archiveSize, jobDuration, volumeCount)
}

// ApplyPrometheusMetrics pushes a job record into the registered gauges.
func ApplyPrometheusMetrics(job JobMetrics) {
	if job.LastRunSuccess {
		jobSuccess.Set(1)
	} else {
		jobSuccess.Set(0)
	}
	archiveSize.Set(float64(job.LastArchiveSize))
	jobDuration.Set(job.LastDuration)
	volumeCount.Set(float64(job.LastVolumeCount))
}

// StartMetricsServer opens the metrics endpoint for the given duration.
func StartMetricsServer(addr string, duration time.Duration) {
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		http.ListenAndServe(addr, nil)
	}()
	time.Sleep(duration)
}
