package memory

import (
	"context"
	"strings"

	"github.com/vladislavdragonenkov/crm/internal/domain"
)

type customerRepository struct {
	acc access
}

// emailKey нормализует email для проверки уникальности.
func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create сохраняет клиента, если ID и email ещё не заняты.
func (r *customerRepository) Create(_ context.Context, customer domain.Customer) error {
	return r.acc.write(func(st *state) error {
		if _, exists := st.customers[customer.ID]; exists {
			return domain.ErrDuplicateID
		}
		key := emailKey(customer.Email)
		if _, taken := st.emails[key]; taken {
			return domain.ErrEmailAlreadyExists
		}
		if customer.Phone != nil {
			phone := *customer.Phone
			customer.Phone = &phone
		}
		st.customers[customer.ID] = customer
		st.customerOrder = append(st.customerOrder, customer.ID)
		st.emails[key] = customer.ID
		return nil
	})
}

// Get возвращает клиента или ErrCustomerNotFound.
func (r *customerRepository) Get(_ context.Context, id string) (domain.Customer, error) {
	var customer domain.Customer
	err := r.acc.read(func(st *state) error {
		c, ok := st.customers[id]
		if !ok {
			return domain.ErrCustomerNotFound
		}
		customer = c
		return nil
	})
	return customer, err
}

func (r *customerRepository) ExistsByEmail(_ context.Context, email string) (bool, error) {
	var exists bool
	err := r.acc.read(func(st *state) error {
		_, exists = st.emails[emailKey(email)]
		return nil
	})
	return exists, err
}

func (r *customerRepository) List(context.Context) ([]domain.Customer, error) {
	var result []domain.Customer
	err := r.acc.read(func(st *state) error {
		result = make([]domain.Customer, 0, len(st.customerOrder))
		for _, id := range st.customerOrder {
			result = append(result, st.customers[id])
		}
		return nil
	})
	return result, err
}

var _ domain.CustomerRepository = (*customerRepository)(nil)
