package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CRMMetrics содержит метрики мутаций и API-операций CRM.
type CRMMetrics struct {
	mutations *prometheus.CounterVec
	restocked prometheus.Counter

	apiRequests *prometheus.CounterVec
	apiDuration *prometheus.HistogramVec
}

// NewCRMMetrics регистрирует метрики в DefaultRegisterer.
func NewCRMMetrics() *CRMMetrics {
	return NewCRMMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCRMMetricsWithRegisterer регистрирует метрики в заданном registerer.
func NewCRMMetricsWithRegisterer(registerer prometheus.Registerer) *CRMMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CRMMetrics{
		mutations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "crm_mutations_total",
			Help: "Total number of CRM mutations grouped by operation and result",
		}, []string{"operation", "result"}),
		restocked: registerCounter(registerer, prometheus.CounterOpts{
			Name: "crm_products_restocked_total",
			Help: "Total number of product top-ups performed by low stock replenishment",
		}),
		apiRequests: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "crm_api_requests_total",
			Help: "Total number of API operations grouped by transport, operation and outcome",
		}, []string{"transport", "operation", "outcome"}),
		apiDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "crm_api_request_duration_seconds",
			Help:    "Duration of API operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"transport", "operation"}),
	}
}

// RecordMutation увеличивает счётчик мутаций.
func (m *CRMMetrics) RecordMutation(operation, result string) {
	m.mutations.WithLabelValues(operation, result).Inc()
}

// RecordRestocked учитывает пополненные товары.
func (m *CRMMetrics) RecordRestocked(count int) {
	if count > 0 {
		m.restocked.Add(float64(count))
	}
}

// RecordAPIRequest записывает исход и длительность API-операции.
func (m *CRMMetrics) RecordAPIRequest(transport, operation, outcome string, duration time.Duration) {
	m.apiRequests.WithLabelValues(transport, operation, outcome).Inc()
	m.apiDuration.WithLabelValues(transport, operation).Observe(duration.Seconds())
}
