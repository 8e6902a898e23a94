package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/crm/internal/domain"
)

type orderRepository struct {
	acc access
}

// Create сохраняет заказ вместе с набором товаров, если все ссылки валидны.
func (r *orderRepository) Create(_ context.Context, order domain.Order) error {
	return r.acc.write(func(st *state) error {
		if _, exists := st.orders[order.ID]; exists {
			return domain.ErrDuplicateID
		}
		if _, ok := st.customers[order.CustomerID]; !ok {
			return domain.ErrCustomerNotFound
		}
		for _, pid := range order.ProductIDs {
			if _, ok := st.products[pid]; !ok {
				return domain.ErrProductNotFound
			}
		}
		// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
		order.ProductIDs = append([]string(nil), order.ProductIDs...)
		st.orders[order.ID] = order
		st.orderOrder = append(st.orderOrder, order.ID)
		return nil
	})
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepository) Get(_ context.Context, id string) (domain.Order, error) {
	var order domain.Order
	err := r.acc.read(func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return domain.ErrOrderNotFound
		}
		order = cloneOrder(o)
		return nil
	})
	return order, err
}

// List возвращает заказы под фильтр, упорядоченные по дате заказа.
func (r *orderRepository) List(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	var result []domain.Order
	err := r.acc.read(func(st *state) error {
		result = make([]domain.Order, 0, len(st.orderOrder))
		for _, id := range st.orderOrder {
			if o := st.orders[id]; filter.Matches(o) {
				result = append(result, cloneOrder(o))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].OrderDate.Before(result[j].OrderDate)
	})
	return result, nil
}

func (r *orderRepository) UpdateTotal(_ context.Context, order domain.Order) error {
	return r.acc.write(func(st *state) error {
		current, ok := st.orders[order.ID]
		if !ok {
			return domain.ErrOrderNotFound
		}
		current.TotalAmount = order.TotalAmount
		st.orders[order.ID] = current
		return nil
	})
}

func cloneOrder(o domain.Order) domain.Order {
	o.ProductIDs = append([]string(nil), o.ProductIDs...)
	return o
}

var _ domain.OrderRepository = (*orderRepository)(nil)
