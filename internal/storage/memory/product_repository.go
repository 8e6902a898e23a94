package memory

import (
	"context"

	"github.com/vladislavdragonenkov/crm/internal/domain"
)

type productRepository struct {
	acc access
}

func (r *productRepository) Create(_ context.Context, product domain.Product) error {
	return r.acc.write(func(st *state) error {
		if _, exists := st.products[product.ID]; exists {
			return domain.ErrDuplicateID
		}
		st.products[product.ID] = product
		st.productOrder = append(st.productOrder, product.ID)
		return nil
	})
}

func (r *productRepository) Get(_ context.Context, id string) (domain.Product, error) {
	var product domain.Product
	err := r.acc.read(func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return domain.ErrProductNotFound
		}
		product = p
		return nil
	})
	return product, err
}

// GetMany возвращает товары в порядке первого упоминания id, пропуская дубли и неизвестные id.
func (r *productRepository) GetMany(_ context.Context, ids []string) ([]domain.Product, error) {
	var result []domain.Product
	err := r.acc.read(func(st *state) error {
		seen := make(map[string]struct{}, len(ids))
		result = make([]domain.Product, 0, len(ids))
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if p, ok := st.products[id]; ok {
				result = append(result, p)
			}
		}
		return nil
	})
	return result, err
}

func (r *productRepository) List(context.Context) ([]domain.Product, error) {
	return r.filter(func(domain.Product) bool { return true })
}

func (r *productRepository) ListBelowStock(_ context.Context, threshold int) ([]domain.Product, error) {
	return r.filter(func(p domain.Product) bool { return p.Stock < threshold })
}

// AddStock увеличивает остаток на delta; отрицательный итог запрещён.
func (r *productRepository) AddStock(_ context.Context, id string, delta int) (domain.Product, error) {
	var product domain.Product
	err := r.acc.write(func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return domain.ErrProductNotFound
		}
		if p.Stock+delta < 0 {
			return domain.ErrStockNegative
		}
		p.Stock += delta
		st.products[id] = p
		product = p
		return nil
	})
	return product, err
}

func (r *productRepository) filter(keep func(domain.Product) bool) ([]domain.Product, error) {
	var result []domain.Product
	err := r.acc.read(func(st *state) error {
		result = make([]domain.Product, 0, len(st.productOrder))
		for _, id := range st.productOrder {
			if p := st.products[id]; keep(p) {
				result = append(result, p)
			}
		}
		return nil
	})
	return result, err
}

var _ domain.ProductRepository = (*productRepository)(nil)
