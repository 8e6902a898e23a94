package domain

import "errors"

var (
	// ErrCustomerNotFound возвращается, если клиент не найден.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrProductNotFound возвращается, если товар не найден.
	ErrProductNotFound = errors.New("product not found")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrEmailAlreadyExists - нарушение уникальности email клиента.
	ErrEmailAlreadyExists = errors.New("email already exists")
	// ErrDuplicateID - запись с таким идентификатором уже существует.
	ErrDuplicateID = errors.New("record with this id already exists")

	ErrCustomerRequired    = errors.New("customer_id is required")
	ErrProductsRequired    = errors.New("order must reference at least one product")
	ErrAmountNegative      = errors.New("total_amount must be non-negative")
	ErrAmountTooLarge      = errors.New("total_amount exceeds the maximum amount")
	ErrOrderDateRequired   = errors.New("order_date is required")
	ErrProductNameRequired = errors.New("product name is required")
	ErrPriceNotPositive    = errors.New("price must be positive")
	ErrPricePrecision      = errors.New("price must have at most 2 decimal places")
	ErrPriceTooLarge       = errors.New("price exceeds the maximum amount")
	ErrStockNegative       = errors.New("stock cannot be negative")

	// ErrOutboxPublish - ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsNotFound проверяет, что ошибка означает отсутствие записи.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCustomerNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrOrderNotFound)
}
