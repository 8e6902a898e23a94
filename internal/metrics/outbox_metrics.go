package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты попыток публикации outbox.
const (
	OutboxResultSent      = "sent"
	OutboxResultRetry     = "retry_error"
	OutboxResultFailed    = "failed"
	OutboxResultDLQ       = "dlq"
	OutboxResultDLQFailed = "dlq_failed"
)

// OutboxMetrics - метрики доставки доменных событий CRM.
type OutboxMetrics struct {
	attempts  *prometheus.CounterVec
	pending   prometheus.Gauge
	oldestAge prometheus.Gauge
}

// NewOutboxMetrics регистрирует метрики outbox; nil означает DefaultRegisterer.
func NewOutboxMetrics(registerer prometheus.Registerer) *OutboxMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OutboxMetrics{
		attempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "crm_outbox_publish_attempts_total",
			Help: "Total number of outbox publish attempts grouped by event type and result",
		}, []string{"event_type", "result"}),
		pending: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "crm_outbox_pending_records",
			Help: "Current number of pending records in transactional outbox",
		}),
		oldestAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "crm_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record",
		}),
	}
}

// RecordAttempt учитывает одну попытку публикации события.
func (m *OutboxMetrics) RecordAttempt(eventType, result string) {
	m.attempts.WithLabelValues(eventType, result).Inc()
}

// SetBacklog выставляет размер очереди и возраст самого старого сообщения.
func (m *OutboxMetrics) SetBacklog(pending int, oldest time.Time, now time.Time) {
	m.pending.Set(float64(pending))
	if pending == 0 || oldest.IsZero() {
		m.oldestAge.Set(0)
		return
	}
	m.oldestAge.Set(max(now.Sub(oldest).Seconds(), 0))
}
