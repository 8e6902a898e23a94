package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/crm/internal/domain"
)

const customerEmailIndex = "customers_email_lower_key"

type customerRepository struct {
	q    queryer
	inTx bool
}

// Create вставляет клиента. Внутри транзакции вставка обёрнута в savepoint:
// нарушение уникальности email не должно прерывать всю транзакцию, иначе
// пакетный импорт не сможет продолжить с остальными записями.
func (r *customerRepository) Create(ctx context.Context, customer domain.Customer) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if r.inTx {
		if _, err := r.q.ExecContext(ctx, `SAVEPOINT customer_insert`); err != nil {
			return fmt.Errorf("savepoint customer insert: %w", err)
		}
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO customers (id, name, email, phone, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, customer.ID, customer.Name, customer.Email, customer.Phone, customer.CreatedAt)
	if err != nil {
		if r.inTx {
			if _, rbErr := r.q.ExecContext(ctx, `ROLLBACK TO SAVEPOINT customer_insert`); rbErr != nil {
				return fmt.Errorf("rollback to savepoint: %w", rbErr)
			}
		}
		if isUniqueViolation(err) {
			if _, constraint := pgErrorCode(err); constraint == customerEmailIndex {
				return domain.ErrEmailAlreadyExists
			}
			return domain.ErrDuplicateID
		}
		return fmt.Errorf("insert customer: %w", err)
	}

	if r.inTx {
		if _, err := r.q.ExecContext(ctx, `RELEASE SAVEPOINT customer_insert`); err != nil {
			return fmt.Errorf("release savepoint: %w", err)
		}
	}
	return nil
}

func (r *customerRepository) Get(ctx context.Context, id string) (domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	customer, err := scanCustomer(r.q.QueryRowContext(ctx, `
		SELECT id, name, email, phone, created_at
		FROM customers
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Customer{}, domain.ErrCustomerNotFound
		}
		return domain.Customer{}, fmt.Errorf("select customer: %w", err)
	}
	return customer, nil
}

func (r *customerRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var exists bool
	if err := r.q.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM customers WHERE lower(email) = lower($1))
	`, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("check customer email: %w", err)
	}
	return exists, nil
}

func (r *customerRepository) List(ctx context.Context) ([]domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT id, name, email, phone, created_at
		FROM customers
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Customer, 0)
	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan customer row: %w", err)
		}
		result = append(result, customer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customer rows: %w", err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row rowScanner) (domain.Customer, error) {
	var (
		customer domain.Customer
		phone    sql.NullString
	)
	if err := row.Scan(&customer.ID, &customer.Name, &customer.Email, &phone, &customer.CreatedAt); err != nil {
		return domain.Customer{}, err
	}
	if phone.Valid {
		customer.Phone = &phone.String
	}
	customer.CreatedAt = customer.CreatedAt.UTC()
	return customer, nil
}

var _ domain.CustomerRepository = (*customerRepository)(nil)
