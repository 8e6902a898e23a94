package domain

import "context"

// CustomerRepository описывает хранилище клиентов.
type CustomerRepository interface {
	// Create сохраняет клиента. ErrEmailAlreadyExists при занятом email.
	Create(ctx context.Context, customer Customer) error
	// Get возвращает клиента или ErrCustomerNotFound.
	Get(ctx context.Context, id string) (Customer, error)
	// ExistsByEmail проверяет, занят ли email.
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	// List возвращает всех клиентов в порядке создания.
	List(ctx context.Context) ([]Customer, error)
}

// ProductRepository описывает хранилище товаров.
type ProductRepository interface {
	Create(ctx context.Context, product Product) error
	// Get возвращает товар или ErrProductNotFound.
	Get(ctx context.Context, id string) (Product, error)
	// GetMany возвращает найденные товары без дублей; отсутствующие id пропускаются.
	GetMany(ctx context.Context, ids []string) ([]Product, error)
	// List возвращает все товары в порядке создания.
	List(ctx context.Context) ([]Product, error)
	// ListBelowStock возвращает товары с stock < threshold в порядке создания.
	ListBelowStock(ctx context.Context, threshold int) ([]Product, error)
	// AddStock атомарно увеличивает остаток и возвращает обновлённый товар.
	AddStock(ctx context.Context, id string, delta int) (Product, error)
}

// OrderRepository описывает хранилище заказов.
type OrderRepository interface {
	// Create сохраняет заказ вместе с набором товаров одной атомарной записью.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// List возвращает заказы под фильтр, упорядоченные по OrderDate.
	List(ctx context.Context, filter OrderFilter) ([]Order, error)
	// UpdateTotal перезаписывает сохранённую сумму заказа.
	UpdateTotal(ctx context.Context, order Order) error
}

// Repositories группирует репозитории одной единицы работы.
type Repositories struct {
	Customers CustomerRepository
	Products  ProductRepository
	Orders    OrderRepository
	Outbox    OutboxRepository
}

// Store - внешнее хранилище CRM.
type Store interface {
	// Repos возвращает репозитории вне транзакции.
	Repos() Repositories
	// WithinTx выполняет fn в одной атомарной транзакции. Если fn вернула
	// ошибку, ни одна запись не сохраняется. Внутри транзакции чтение видит
	// собственные записи.
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
	// Ping проверяет доступность хранилища.
	Ping(ctx context.Context) error
}
