package crm

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/crm/internal/domain"
)

// OrderDetails - заказ вместе с клиентом и товарами.
type OrderDetails struct {
	Order    domain.Order
	Customer domain.Customer
	Products []domain.Product
}

// Hello - health-проба API.
func (s *Service) Hello() string {
	return HelloMessage
}

// Customers возвращает всех клиентов.
func (s *Service) Customers(ctx context.Context) ([]domain.Customer, error) {
	customers, err := s.store.Repos().Customers.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	return customers, nil
}

// Products возвращает все товары.
func (s *Service) Products(ctx context.Context) ([]domain.Product, error) {
	products, err := s.store.Repos().Products.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// Orders возвращает заказы под фильтр вместе с клиентом и товарами.
func (s *Service) Orders(ctx context.Context, filter domain.OrderFilter) ([]OrderDetails, error) {
	repos := s.store.Repos()

	orders, err := repos.Orders.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	customers := make(map[string]domain.Customer)
	result := make([]OrderDetails, 0, len(orders))
	for _, order := range orders {
		customer, ok := customers[order.CustomerID]
		if !ok {
			customer, err = repos.Customers.Get(ctx, order.CustomerID)
			if err != nil {
				return nil, fmt.Errorf("get customer %s: %w", order.CustomerID, err)
			}
			customers[order.CustomerID] = customer
		}

		products, err := repos.Products.GetMany(ctx, order.ProductIDs)
		if err != nil {
			return nil, fmt.Errorf("get products for order %s: %w", order.ID, err)
		}

		result = append(result, OrderDetails{Order: order, Customer: customer, Products: products})
	}
	return result, nil
}

// Ping проверяет доступность хранилища.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
