package api

import "github.com/vladislavdragonenkov/crm/internal/domain"

func toCustomerInput(in CustomerInput) domain.CustomerInput {
	return domain.CustomerInput{Name: in.Name, Email: in.Email, Phone: in.Phone}
}

func toCustomer(c domain.Customer) Customer {
	return Customer{
		ID:        c.ID,
		Name:      c.Name,
		Email:     c.Email,
		Phone:     c.Phone,
		CreatedAt: c.CreatedAt,
	}
}

func toCustomers(in []domain.Customer) []Customer {
	out := make([]Customer, 0, len(in))
	for _, c := range in {
		out = append(out, toCustomer(c))
	}
	return out
}

func toProduct(p domain.Product) Product {
	return Product{
		ID:        p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Stock:     p.Stock,
		CreatedAt: p.CreatedAt,
	}
}

func toProducts(in []domain.Product) []Product {
	out := make([]Product, 0, len(in))
	for _, p := range in {
		out = append(out, toProduct(p))
	}
	return out
}

func toOrder(o domain.Order, customer domain.Customer, products []domain.Product) Order {
	return Order{
		ID:          o.ID,
		Customer:    toCustomer(customer),
		Products:    toProducts(products),
		TotalAmount: o.TotalAmount,
		OrderDate:   o.OrderDate,
	}
}
