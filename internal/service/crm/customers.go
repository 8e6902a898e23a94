package crm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/crm/internal/domain"
	"github.com/vladislavdragonenkov/crm/internal/validation"
)

// CustomerResult - результат CreateCustomer: Customer == nil означает отказ.
type CustomerResult struct {
	Customer *domain.Customer
	Message  string
}

// OK сообщает, что клиент создан.
func (r CustomerResult) OK() bool { return r.Customer != nil }

// BulkCustomersResult - результат BulkCreateCustomers.
type BulkCustomersResult struct {
	Customers []domain.Customer
	// Errors содержит строки вида "Record <N>: <причина>", N начинается с 1.
	Errors []string
}

type customerEvent struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Email string  `json:"email"`
	Phone *string `json:"phone,omitempty"`
}

func normalizeCustomerInput(in domain.CustomerInput) domain.CustomerInput {
	in.Name = strings.TrimSpace(in.Name)
	if in.Phone != nil && *in.Phone == "" {
		in.Phone = nil
	}
	return in
}

// admitCustomer проверяет вход в порядке: формат email, уникальность email
// (в хранилище и среди batch), формат телефона, имя. Пустая причина
// означает, что запись можно сохранять.
func (s *Service) admitCustomer(
	ctx context.Context,
	repo domain.CustomerRepository,
	in domain.CustomerInput,
	batch map[string]struct{},
) (domain.Customer, string, error) {
	if !validation.ValidateEmail(in.Email) {
		return domain.Customer{}, MsgInvalidEmail, nil
	}

	key := strings.ToLower(in.Email)
	if _, dup := batch[key]; dup {
		return domain.Customer{}, MsgEmailExists, nil
	}
	exists, err := repo.ExistsByEmail(ctx, in.Email)
	if err != nil {
		return domain.Customer{}, "", fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.Customer{}, MsgEmailExists, nil
	}

	if !validation.ValidatePhone(in.Phone) {
		return domain.Customer{}, MsgInvalidPhone, nil
	}
	if in.Name == "" {
		return domain.Customer{}, MsgNameRequired, nil
	}

	return domain.Customer{
		ID:        s.newID(),
		Name:      in.Name,
		Email:     in.Email,
		Phone:     in.Phone,
		CreatedAt: s.now(),
	}, "", nil
}

func (s *Service) persistCustomer(ctx context.Context, repos domain.Repositories, customer domain.Customer) error {
	if err := repos.Customers.Create(ctx, customer); err != nil {
		return err
	}
	return enqueueEvent(ctx, repos, domain.AggregateCustomer, customer.ID, domain.EventCustomerCreated, customerEvent{
		ID:    customer.ID,
		Name:  customer.Name,
		Email: customer.Email,
		Phone: customer.Phone,
	})
}

// CreateCustomer создаёт клиента или возвращает отказ с причиной.
func (s *Service) CreateCustomer(ctx context.Context, in domain.CustomerInput) (CustomerResult, error) {
	in = normalizeCustomerInput(in)

	var result CustomerResult
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		customer, reason, err := s.admitCustomer(ctx, repos.Customers, in, nil)
		if err != nil {
			return err
		}
		if reason != "" {
			result = CustomerResult{Message: reason}
			return nil
		}
		if err := s.persistCustomer(ctx, repos, customer); err != nil {
			return err
		}
		result = CustomerResult{Customer: &customer, Message: MsgCustomerCreated}
		return nil
	})
	if errors.Is(err, domain.ErrEmailAlreadyExists) {
		// Параллельная вставка того же email между проверкой и записью.
		result, err = CustomerResult{Message: MsgEmailExists}, nil
	}
	if err != nil {
		return CustomerResult{}, s.fail(OpCreateCustomer, err)
	}

	if !result.OK() {
		s.metrics.RecordMutation(OpCreateCustomer, ResultRejected)
		s.logger.WithFields(log.Fields{"email": in.Email, "reason": result.Message}).Info("customer rejected")
		return result, nil
	}

	s.metrics.RecordMutation(OpCreateCustomer, ResultCreated)
	s.logger.WithField("customer_id", result.Customer.ID).Info("customer created")
	return result, nil
}

// BulkCreateCustomers создаёт клиентов одной атомарной единицей.
//
// Каждая запись проверяется независимо: отклонённые попадают в Errors,
// принятые сохраняются вместе в одной транзакции. Если фиксация
// транзакции не удалась, не сохраняется ни одна запись и возвращается ошибка.
func (s *Service) BulkCreateCustomers(ctx context.Context, inputs []domain.CustomerInput) (BulkCustomersResult, error) {
	var result BulkCustomersResult

	err := s.store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		created := make([]domain.Customer, 0, len(inputs))
		rejected := make([]string, 0)
		batch := make(map[string]struct{}, len(inputs))

		for idx, raw := range inputs {
			in := normalizeCustomerInput(raw)
			customer, reason, err := s.admitCustomer(ctx, repos.Customers, in, batch)
			if err != nil {
				return err
			}
			if reason == "" {
				err = s.persistCustomer(ctx, repos, customer)
				if errors.Is(err, domain.ErrEmailAlreadyExists) {
					reason, err = MsgEmailExists, nil
				}
				if err != nil {
					return err
				}
			}
			if reason != "" {
				rejected = append(rejected, fmt.Sprintf("Record %d: %s", idx+1, reason))
				continue
			}

			batch[strings.ToLower(customer.Email)] = struct{}{}
			created = append(created, customer)
		}

		result = BulkCustomersResult{Customers: created, Errors: rejected}
		return nil
	})
	if err != nil {
		return BulkCustomersResult{}, s.fail(OpBulkCreateCustomers, err)
	}

	outcome := ResultCreated
	switch {
	case len(result.Customers) == 0 && len(result.Errors) > 0:
		outcome = ResultRejected
	case len(result.Errors) > 0:
		outcome = ResultPartial
	}
	s.metrics.RecordMutation(OpBulkCreateCustomers, outcome)
	s.logger.WithFields(log.Fields{
		"records":  len(inputs),
		"created":  len(result.Customers),
		"rejected": len(result.Errors),
	}).Info("bulk customer import finished")

	return result, nil
}
