package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxAmount - наибольшая сумма, которую вмещает NUMERIC(12, 2).
// Ограничивает цену товара и сумму заказа.
var MaxAmount = decimal.RequireFromString("9999999999.99")

// AmountScale - число знаков после запятой у цен и сумм.
const AmountScale = 2

const (
	// LowStockThreshold - товары с остатком ниже порога считаются заканчивающимися.
	LowStockThreshold = 10
	// RestockAmount - на сколько единиц пополняется остаток за один вызов.
	RestockAmount = 10
)

// Product описывает товар каталога.
type Product struct {
	ID        string
	Name      string
	Price     decimal.Decimal
	Stock     int
	CreatedAt time.Time
}

// Validate проверяет инварианты товара в порядке: цена, остаток, имя.
func (p Product) Validate() []error {
	var errs []error

	switch {
	case !p.Price.IsPositive():
		errs = append(errs, ErrPriceNotPositive)
	case !p.Price.Equal(p.Price.Truncate(AmountScale)):
		errs = append(errs, ErrPricePrecision)
	case p.Price.GreaterThan(MaxAmount):
		errs = append(errs, ErrPriceTooLarge)
	}
	if p.Stock < 0 {
		errs = append(errs, ErrStockNegative)
	}
	if p.Name == "" {
		errs = append(errs, ErrProductNameRequired)
	}

	return errs
}
