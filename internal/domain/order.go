package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order - заказ клиента на набор товаров.
//
// TotalAmount фиксируется при создании как сумма цен товаров и не
// пересчитывается при изменении цен, пока не вызван явный пересчёт.
type Order struct {
	ID          string
	CustomerID  string
	ProductIDs  []string
	TotalAmount decimal.Decimal
	OrderDate   time.Time
	CreatedAt   time.Time
}

// OrderFilter ограничивает выборку заказов.
type OrderFilter struct {
	// OrderDateFrom включает заказы с OrderDate >= OrderDateFrom (если не zero).
	OrderDateFrom time.Time
}

// Matches проверяет, попадает ли заказ под фильтр.
func (f OrderFilter) Matches(o Order) bool {
	if !f.OrderDateFrom.IsZero() && o.OrderDate.Before(f.OrderDateFrom) {
		return false
	}
	return true
}

// SumPrices считает сумму цен товаров.
func SumPrices(products []Product) decimal.Decimal {
	total := decimal.Zero
	for _, p := range products {
		total = total.Add(p.Price)
	}
	return total
}

// ValidateInvariants проверяет базовые инварианты заказа.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if len(o.ProductIDs) == 0 {
		errs = append(errs, ErrProductsRequired)
	}
	if o.TotalAmount.IsNegative() {
		errs = append(errs, ErrAmountNegative)
	}
	if o.TotalAmount.GreaterThan(MaxAmount) {
		errs = append(errs, ErrAmountTooLarge)
	}
	if o.OrderDate.IsZero() {
		errs = append(errs, ErrOrderDateRequired)
	}

	return errs
}
