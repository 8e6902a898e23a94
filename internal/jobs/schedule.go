package jobs

import (
	"context"
	"fmt"
	"sort"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// DefaultSchedules - расписание cron по умолчанию (стандартный 5-польный формат).
func DefaultSchedules() map[string]string {
	return map[string]string{
		JobHeartbeat:      "*/5 * * * *",
		JobOrderReminders: "0 8 * * *",
		JobLowStock:       "0 */12 * * *",
		JobReport:         "0 6 * * 1",
	}
}

// Factory создаёт задачу на один запуск.
type Factory func(name string) (Job, error)

// NewScheduler регистрирует задачи в cron. Каждый тик создаёт новый объект
// задачи; параллельный запуск одной задачи пропускается.
func NewScheduler(ctx context.Context, runner *Runner, factory Factory, schedules map[string]string, logger *log.Entry) (*cron.Cron, error) {
	if logger == nil {
		logger = log.WithField("component", "crm-cron")
	}
	cronLogger := cron.PrintfLogger(logger)
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))

	names := make([]string, 0, len(schedules))
	for name := range schedules {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := schedules[name]
		if spec == "" {
			continue
		}
		if _, err := factory(name); err != nil {
			return nil, err
		}
		jobName := name
		id, err := c.AddFunc(spec, func() {
			job, err := factory(jobName)
			if err != nil {
				logger.WithError(err).WithField("job", jobName).Error("failed to build job")
				return
			}
			if _, err := runner.Run(ctx, job); err != nil {
				logger.WithError(err).WithField("job", jobName).Error("job run failed")
			}
		})
		if err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", name, spec, err)
		}
		logger.WithFields(log.Fields{"job": name, "spec": spec, "entry": id}).Info("job scheduled")
	}
	return c, nil
}
