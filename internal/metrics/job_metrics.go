package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Исходы запуска задания.
const (
	JobResultSuccess = "success"
	JobResultError   = "error"
)

// JobMetrics содержит метрики запусков заданий.
type JobMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
}

// NewJobMetrics регистрирует метрики заданий в registerer.
// One-shot запуски передают собственный registry, чтобы отправить его в Pushgateway.
func NewJobMetrics(registerer prometheus.Registerer) *JobMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &JobMetrics{
		runs: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "crm_job_runs_total",
			Help: "Total number of job runs grouped by job and result",
		}, []string{"job", "result"}),
		duration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "crm_job_duration_seconds",
			Help:    "Duration of job runs in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"job"}),
		lastSuccess: register(registerer, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "crm_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful job run",
		}, []string{"job"}), "crm_job_last_success_timestamp_seconds"),
	}
}

// RecordRun записывает исход и длительность запуска.
func (m *JobMetrics) RecordRun(job, result string, duration time.Duration) {
	m.runs.WithLabelValues(job, result).Inc()
	m.duration.WithLabelValues(job).Observe(duration.Seconds())
	if result == JobResultSuccess {
		m.lastSuccess.WithLabelValues(job).SetToCurrentTime()
	}
}
