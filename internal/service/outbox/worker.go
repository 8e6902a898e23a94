// Package outbox публикует события CRM, накопленные в transactional outbox.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/crm/internal/domain"
	"github.com/vladislavdragonenkov/crm/internal/metrics"
)

const (
	defaultPollInterval   = 1 * time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	maxRetryDelay         = 2 * time.Second
)

// WorkerOptions задаёт параметры outbox worker.
type WorkerOptions struct {
	Logger         *log.Entry
	Metrics        *metrics.OutboxMetrics
	DLQPublisher   domain.OutboxPublisher
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

// Option настраивает Worker.
type Option func(*WorkerOptions)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *WorkerOptions) { opts.Logger = logger }
}

// WithMetrics задаёт метрики доставки.
func WithMetrics(m *metrics.OutboxMetrics) Option {
	return func(opts *WorkerOptions) { opts.Metrics = m }
}

// WithDLQPublisher задаёт publisher для событий, не доставленных после всех попыток.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(opts *WorkerOptions) { opts.DLQPublisher = publisher }
}

// WithPollInterval задаёт частоту опроса outbox.
func WithPollInterval(interval time.Duration) Option {
	return func(opts *WorkerOptions) { opts.PollInterval = interval }
}

// WithBatchSize задаёт размер батча из outbox.
func WithBatchSize(batchSize int) Option {
	return func(opts *WorkerOptions) { opts.BatchSize = batchSize }
}

// WithMaxAttempts задаёт число попыток публикации.
func WithMaxAttempts(maxAttempts int) Option {
	return func(opts *WorkerOptions) { opts.MaxAttempts = maxAttempts }
}

// WithRetryBaseDelay задаёт первую паузу между попытками; далее она удваивается.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(opts *WorkerOptions) { opts.RetryBaseDelay = delay }
}

// Worker публикует pending-сообщения из outbox в брокер.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	dlq       domain.OutboxPublisher
	logger    *log.Entry
	metrics   *metrics.OutboxMetrics
	opts      WorkerOptions
}

// BatchResult - итог одного цикла опроса.
type BatchResult struct {
	Sent   int
	Failed int
}

// NewWorker создаёт outbox worker.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	opts := WorkerOptions{
		PollInterval:   defaultPollInterval,
		BatchSize:      defaultBatchSize,
		MaxAttempts:    defaultMaxAttempts,
		RetryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "outbox-worker")
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewOutboxMetrics(nil)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	opts.RetryBaseDelay = max(opts.RetryBaseDelay, 0)

	return &Worker{
		repo:      repo,
		publisher: publisher,
		dlq:       opts.DLQPublisher,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		opts:      opts,
	}
}

// Run опрашивает outbox до отмены ctx. Первый цикл выполняется сразу.
func (w *Worker) Run(ctx context.Context) error {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return nil
	}

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		if res := w.ProcessOnce(ctx); res.Sent+res.Failed > 0 {
			w.logger.WithFields(log.Fields{"sent": res.Sent, "failed": res.Failed}).Debug("outbox batch processed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// ProcessOnce публикует один батч pending-сообщений. При отмене ctx
// недоставленные сообщения остаются pending.
func (w *Worker) ProcessOnce(ctx context.Context) BatchResult {
	var result BatchResult
	if ctx.Err() != nil {
		return result
	}

	w.refreshBacklog(ctx)
	events, err := w.repo.PullPending(ctx, w.opts.BatchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return result
	}
	if len(events) == 0 {
		return result
	}

	for _, event := range events {
		err := w.publishWithRetry(ctx, event)
		if ctx.Err() != nil {
			return result
		}
		if err != nil {
			w.giveUp(ctx, event, err)
			result.Failed++
			continue
		}

		result.Sent++
		if err := w.repo.MarkSent(ctx, event.ID); err != nil {
			w.eventLogger(event).WithError(err).Warn("failed to mark outbox message as sent")
		}
	}

	w.refreshBacklog(ctx)
	return result
}

func (w *Worker) eventLogger(event domain.OutboxMessage) *log.Entry {
	return w.logger.WithFields(log.Fields{
		"outbox_id":    event.ID,
		"event_type":   event.EventType,
		"aggregate_id": event.AggregateID,
	})
}

// giveUp помечает сообщение failed и, если настроен DLQ, пересылает его туда.
func (w *Worker) giveUp(ctx context.Context, event domain.OutboxMessage, publishErr error) {
	logger := w.eventLogger(event)
	logger.WithError(publishErr).Error("outbox publish failed after retries")
	w.metrics.RecordAttempt(event.EventType, metrics.OutboxResultFailed)

	if w.dlq != nil {
		if err := w.publishDeadLetter(ctx, event, publishErr); err != nil {
			logger.WithError(err).Warn("failed to publish to DLQ")
			w.metrics.RecordAttempt(event.EventType, metrics.OutboxResultDLQFailed)
		} else {
			w.metrics.RecordAttempt(event.EventType, metrics.OutboxResultDLQ)
		}
	}
	if err := w.repo.MarkFailed(ctx, event.ID); err != nil {
		logger.WithError(err).Warn("failed to mark outbox message as failed")
	}
}

func (w *Worker) publishWithRetry(ctx context.Context, event domain.OutboxMessage) error {
	var lastErr error
	for attempt := 1; attempt <= w.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepContext(ctx, w.retryBackoff(attempt-1)); err != nil {
				return err
			}
		}

		lastErr = w.publisher.Publish(ctx, event)
		if lastErr == nil {
			w.metrics.RecordAttempt(event.EventType, metrics.OutboxResultSent)
			return nil
		}
		w.metrics.RecordAttempt(event.EventType, metrics.OutboxResultRetry)
	}
	return fmt.Errorf("%w after %d attempts: %w", domain.ErrOutboxPublish, w.opts.MaxAttempts, lastErr)
}

// retryBackoff возвращает паузу после attempt-й неудачной попытки:
// base, 2*base, 4*base ... но не больше maxRetryDelay.
func (w *Worker) retryBackoff(attempt int) time.Duration {
	delay := w.opts.RetryBaseDelay
	if delay <= 0 {
		return 0
	}
	for i := 1; i < attempt && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	return min(delay, maxRetryDelay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (w *Worker) refreshBacklog(ctx context.Context) {
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}
	w.metrics.SetBacklog(stats.PendingCount, stats.OldestPendingAt, time.Now())
}

// publishDeadLetter отправляет в DLQ конверт domain.DeadLetter с исходным
// событием и текстом ошибки публикации.
func (w *Worker) publishDeadLetter(ctx context.Context, event domain.OutboxMessage, publishErr error) error {
	payload := json.RawMessage(event.Payload)
	if !json.Valid(payload) {
		payload = json.RawMessage("null")
	}

	letter := domain.DeadLetter{
		OutboxID:       event.ID,
		AggregateType:  event.AggregateType,
		AggregateID:    event.AggregateID,
		EventType:      event.EventType,
		Payload:        payload,
		PublishError:   publishErr.Error(),
		DLQPublishedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(letter)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	msg := letter.Message()
	msg.Payload = data
	if err := w.dlq.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}
	return nil
}
