// Package jobs содержит плановые задачи CRM. Каждая задача создаётся на
// один запуск, делает вызов API и дописывает результат в свой журнал.
// Любой сбой вызова превращается в одну строку ошибки в том же журнале.
package jobs

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/crm/internal/metrics"
)

// Job - одна плановая задача.
type Job interface {
	Name() string
	LogFile() string
	// Run выполняет вызов и возвращает строки журнала для успешного запуска.
	Run(ctx context.Context, now time.Time) ([]string, error)
	// FailureLine форматирует единственную строку журнала для сбоя.
	FailureLine(err error) string
}

// JobRecorder принимает метрики запусков.
type JobRecorder interface {
	RecordRun(job, result string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordRun(string, string, time.Duration) {}

// Result - итог одного запуска.
type Result struct {
	Job    string
	Status string
	Lines  []string
	Err    error
}

// Runner - граница задач: паника и ошибки вызова не выходят за его пределы.
type Runner struct {
	logDir  string
	now     func() time.Time
	logger  *log.Entry
	metrics JobRecorder
}

// RunnerOption настраивает Runner.
type RunnerOption func(*Runner)

// WithRunnerClock подменяет часы.
func WithRunnerClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// WithRunnerLogger задаёт logger.
func WithRunnerLogger(logger *log.Entry) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRunnerMetrics задаёт приёмник метрик.
func WithRunnerMetrics(m JobRecorder) RunnerOption {
	return func(r *Runner) {
		if m != nil {
			r.metrics = m
		}
	}
}

// NewRunner создаёт Runner, пишущий журналы в logDir.
func NewRunner(logDir string, opts ...RunnerOption) *Runner {
	r := &Runner{
		logDir:  logDir,
		now:     time.Now,
		logger:  log.WithField("component", "crm-jobs"),
		metrics: nopRecorder{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run выполняет задачу. Возвращаемая ошибка означает только сбой записи
// журнала; сбой самой задачи отражён в Result.
func (r *Runner) Run(ctx context.Context, job Job) (Result, error) {
	started := r.now()
	logger := r.logger.WithField("job", job.Name())

	res := Result{Job: job.Name(), Status: metrics.JobResultSuccess}
	lines, err := invoke(ctx, job, started)
	if err != nil {
		res.Status = metrics.JobResultError
		res.Err = err
		lines = []string{job.FailureLine(err)}
		logger.WithError(err).Warn("job failed")
	}
	res.Lines = lines

	sink := NewFileSink(filepath.Join(r.logDir, job.LogFile()))
	writeErr := sink.Append(started, lines...)

	r.metrics.RecordRun(job.Name(), res.Status, r.now().Sub(started))

	if writeErr != nil {
		logger.WithError(writeErr).Error("failed to append job log")
		return res, writeErr
	}
	logger.WithFields(log.Fields{
		"status": res.Status,
		"lines":  len(lines),
		"sink":   sink.Path(),
	}).Info("job completed")
	return res, nil
}

func invoke(ctx context.Context, job Job, now time.Time) (lines []string, err error) {
	defer func() {
		if p := recover(); p != nil {
			lines = nil
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return job.Run(ctx, now)
}
