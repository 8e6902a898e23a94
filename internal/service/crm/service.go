// Package crm реализует мутации и запросы CRM поверх domain.Store.
//
// Отказы валидации и ссылки на несуществующие записи возвращаются как
// обычный результат с сообщением; error означает только сбой хранилища.
package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/crm/internal/domain"
)

// Сообщения мутаций. Клиенты CRM сравнивают их как есть.
const (
	MsgInvalidEmail      = "Invalid email format"
	MsgEmailExists       = "Email already exists"
	MsgInvalidPhone      = "Invalid phone format"
	MsgNameRequired      = "Name is required"
	MsgCustomerCreated   = "Customer created successfully."
	MsgPriceNotPositive  = "Price must be positive"
	MsgPricePrecision    = "Price must have at most 2 decimal places"
	MsgPriceTooLarge     = "Price must not exceed 9999999999.99"
	MsgTotalTooLarge     = "Order total must not exceed 9999999999.99"
	MsgStockNegative     = "Stock cannot be negative"
	MsgProductCreated    = "Product created successfully."
	MsgInvalidCustomerID = "Invalid customer ID"
	MsgNoProducts        = "At least one product must be selected"
	MsgInvalidProductIDs = "One or more invalid product IDs"
	MsgOrderCreated      = "Order created successfully."
	MsgStockUpdated      = "Stock updated successfully"
	MsgInvalidOrderID    = "Invalid order ID"
	MsgOrderRecalculated = "Order total recalculated successfully."

	// HelloMessage - ответ health-пробы hello.
	HelloMessage = "Hello, GraphQL!"
)

// Имена операций для метрик и логов.
const (
	OpCreateCustomer         = "CreateCustomer"
	OpBulkCreateCustomers    = "BulkCreateCustomers"
	OpCreateProduct          = "CreateProduct"
	OpCreateOrder            = "CreateOrder"
	OpUpdateLowStockProducts = "UpdateLowStockProducts"
	OpRecalculateOrderTotal  = "RecalculateOrderTotal"
)

// Результаты мутаций для метрик.
const (
	ResultCreated  = "created"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
	ResultPartial  = "partial"
)

// MetricsRecorder принимает счётчики мутаций.
type MetricsRecorder interface {
	RecordMutation(operation, result string)
	RecordRestocked(count int)
}

type nopMetrics struct{}

func (nopMetrics) RecordMutation(string, string) {}
func (nopMetrics) RecordRestocked(int)           {}

// Service - единственная точка записи CRM: все инварианты проверяются здесь.
type Service struct {
	store   domain.Store
	logger  *log.Entry
	metrics MetricsRecorder
	now     func() time.Time
	newID   func() string
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics задаёт приёмник метрик.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithClock подменяет источник времени (тесты, seed).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator подменяет генератор идентификаторов.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// NewService конструирует сервис поверх хранилища.
func NewService(store domain.Store, opts ...Option) *Service {
	s := &Service{
		store:   store,
		logger:  log.WithField("component", "crm-service"),
		metrics: nopMetrics{},
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// enqueueEvent кладёт событие в outbox той же транзакции, что и запись.
func enqueueEvent(ctx context.Context, repos domain.Repositories, aggregateType, aggregateID, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	if _, err := repos.Outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       data,
	}); err != nil {
		return fmt.Errorf("enqueue %s: %w", eventType, err)
	}
	return nil
}

func (s *Service) fail(operation string, err error) error {
	s.metrics.RecordMutation(operation, ResultFailed)
	s.logger.WithError(err).WithField("operation", operation).Error("mutation failed")
	return fmt.Errorf("%s: %w", operation, err)
}
