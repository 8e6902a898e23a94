package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/crm/internal/domain"
)

const productColumns = `id, name, price, stock, created_at`

type productRepository struct {
	q queryer
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO products (id, name, price, stock, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, product.ID, product.Name, product.Price, product.Stock, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateID
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *productRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	product, err := scanProduct(r.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return product, nil
}

// GetMany возвращает товары в порядке первого упоминания id без дублей.
func (r *productRepository) GetMany(ctx context.Context, ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return []domain.Product{}, nil
	}

	found, err := r.query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	return orderByMention(ids, found), nil
}

func (r *productRepository) List(ctx context.Context) ([]domain.Product, error) {
	return r.query(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at, id`)
}

// ListBelowStock блокирует найденные строки до конца транзакции, чтобы
// параллельное пополнение не увеличило остаток дважды.
func (r *productRepository) ListBelowStock(ctx context.Context, threshold int) ([]domain.Product, error) {
	return r.query(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE stock < $1
		ORDER BY created_at, id
		FOR UPDATE
	`, threshold)
}

func (r *productRepository) AddStock(ctx context.Context, id string, delta int) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	product, err := scanProduct(r.q.QueryRowContext(ctx, `
		UPDATE products
		SET stock = stock + $2
		WHERE id = $1
		RETURNING `+productColumns, id, delta))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		if code, _ := pgErrorCode(err); code == pgCheckViolation {
			return domain.Product{}, domain.ErrStockNegative
		}
		return domain.Product{}, fmt.Errorf("add product stock: %w", err)
	}
	return product, nil
}

func (r *productRepository) query(ctx context.Context, query string, args ...any) ([]domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		result = append(result, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}
	return result, nil
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var product domain.Product
	if err := row.Scan(&product.ID, &product.Name, &product.Price, &product.Stock, &product.CreatedAt); err != nil {
		return domain.Product{}, err
	}
	product.CreatedAt = product.CreatedAt.UTC()
	return product, nil
}

func orderByMention(ids []string, found []domain.Product) []domain.Product {
	byID := make(map[string]domain.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}

	seen := make(map[string]struct{}, len(ids))
	result := make([]domain.Product, 0, len(found))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if p, ok := byID[id]; ok {
			result = append(result, p)
		}
	}
	return result
}

var _ domain.ProductRepository = (*productRepository)(nil)
