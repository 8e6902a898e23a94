// Package health отдаёт /healthz и /readyz для crm-service.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/crm/internal/domain"
)

const (
	defaultCheckTimeout = 2 * time.Second
	serviceName         = "crm-service"
)

// Status - состояние компонента.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// Check - результат проверки одного компонента.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response - тело ответа /healthz.
type Response struct {
	Service       string           `json:"service"`
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker проверяет один компонент.
type Checker interface {
	Check(ctx context.Context) Check
}

// Handler агрегирует зарегистрированные проверки.
type Handler struct {
	mu        sync.RWMutex
	checkers  map[string]Checker
	version   string
	startTime time.Time
	timeout   time.Duration
	logger    *log.Entry
}

// NewHandler создаёт handler без проверок.
func NewHandler(version string) *Handler {
	return &Handler{
		checkers:  make(map[string]Checker),
		version:   version,
		startTime: time.Now(),
		timeout:   defaultCheckTimeout,
		logger:    log.WithField("component", "health"),
	}
}

// RegisterChecker добавляет проверку; повторное имя заменяет прежнюю.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

// runChecks выполняет проверки параллельно под общим таймаутом.
func (h *Handler) runChecks(ctx context.Context) (map[string]Check, Status) {
	h.mu.RLock()
	checkers := make(map[string]Checker, len(h.checkers))
	for name, checker := range h.checkers {
		checkers[name] = checker
	}
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]Check, len(checkers))
	)
	for name, checker := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			check := checker.Check(ctx)
			mu.Lock()
			checks[name] = check
			mu.Unlock()
		}()
	}
	wg.Wait()

	overall := StatusHealthy
	for name, check := range checks {
		if check.Status == StatusHealthy {
			continue
		}
		h.logger.WithFields(log.Fields{"check": name, "status": check.Status}).Warn(check.Message)
		if check.Status == StatusUnhealthy {
			overall = StatusUnhealthy
		} else if overall == StatusHealthy {
			overall = StatusDegraded
		}
	}
	return checks, overall
}

// ServeHTTP отвечает 200 для healthy/degraded и 503 для unhealthy.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks, overall := h.runChecks(r.Context())

	statusCode := http.StatusOK
	if overall == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(Response{
		Service:       serviceName,
		Status:        overall,
		Timestamp:     time.Now().UTC(),
		Checks:        checks,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	})
}

// LivenessHandler всегда отвечает 200.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ReadinessHandler снимает готовность только при unhealthy; degraded готов.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if _, status := h.runChecks(r.Context()); status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// timed выполняет fn и заполняет имя и длительность проверки.
func timed(name string, fn func() (Status, string)) Check {
	start := time.Now()
	status, message := fn()
	return Check{
		Name:       name,
		Status:     status,
		Message:    message,
		DurationMs: time.Since(start).Milliseconds(),
	}
}

// SimpleChecker превращает функцию с ошибкой в проверку: ошибка - unhealthy.
type SimpleChecker struct {
	name    string
	checkFn func(ctx context.Context) error
}

// NewSimpleChecker создаёт проверку, например по store.Ping.
func NewSimpleChecker(name string, checkFn func(ctx context.Context) error) *SimpleChecker {
	return &SimpleChecker{name: name, checkFn: checkFn}
}

// Check выполняет проверку.
func (c *SimpleChecker) Check(ctx context.Context) Check {
	return timed(c.name, func() (Status, string) {
		if err := c.checkFn(ctx); err != nil {
			return StatusUnhealthy, err.Error()
		}
		return StatusHealthy, ""
	})
}

// OutboxBacklogChecker переводит сервис в degraded, когда backlog outbox
// превышает порог: события не теряются, но публикация отстаёт.
type OutboxBacklogChecker struct {
	repo      domain.OutboxRepository
	threshold int
}

// NewOutboxBacklogChecker создаёт проверку backlog outbox.
func NewOutboxBacklogChecker(repo domain.OutboxRepository, threshold int) *OutboxBacklogChecker {
	return &OutboxBacklogChecker{repo: repo, threshold: threshold}
}

// Check выполняет проверку.
func (c *OutboxBacklogChecker) Check(ctx context.Context) Check {
	return timed("outbox", func() (Status, string) {
		stats, err := c.repo.Stats(ctx)
		switch {
		case err != nil:
			return StatusUnhealthy, err.Error()
		case c.threshold > 0 && stats.PendingCount > c.threshold:
			return StatusDegraded, fmt.Sprintf("%d pending events", stats.PendingCount)
		default:
			return StatusHealthy, ""
		}
	})
}
