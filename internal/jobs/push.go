package jobs

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// PushJobName - имя job в Pushgateway.
const PushJobName = "crm_jobs"

// PushMetrics отправляет метрики разового запуска в Pushgateway.
func PushMetrics(ctx context.Context, url, task string, gatherer prometheus.Gatherer) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, PushJobName).
		Gatherer(gatherer).
		Grouping("task", task).
		PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
