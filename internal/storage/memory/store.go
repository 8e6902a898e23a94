package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/crm/internal/domain"
)

// state - содержимое in-memory хранилища. Порядок вставки хранится отдельно,
// чтобы выборки возвращались в порядке создания, как в SQL-реализации.
type state struct {
	customers     map[string]domain.Customer
	customerOrder []string
	emails        map[string]string

	products     map[string]domain.Product
	productOrder []string

	orders     map[string]domain.Order
	orderOrder []string

	outbox *outboxLog
}

func newState() *state {
	return &state{
		customers: make(map[string]domain.Customer),
		emails:    make(map[string]string),
		products:  make(map[string]domain.Product),
		orders:    make(map[string]domain.Order),
		outbox:    newOutboxLog(nil),
	}
}

// clone копирует записи CRM целиком, а outbox - только слоем поверх
// текущего журнала: без Kafka он не вычищается и растёт с каждой мутацией.
func (s *state) clone() *state {
	c := &state{
		customers:     make(map[string]domain.Customer, len(s.customers)),
		customerOrder: append([]string(nil), s.customerOrder...),
		emails:        make(map[string]string, len(s.emails)),
		products:      make(map[string]domain.Product, len(s.products)),
		productOrder:  append([]string(nil), s.productOrder...),
		orders:        make(map[string]domain.Order, len(s.orders)),
		orderOrder:    append([]string(nil), s.orderOrder...),
		outbox:        newOutboxLog(s.outbox),
	}
	for k, v := range s.customers {
		c.customers[k] = v
	}
	for k, v := range s.emails {
		c.emails[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	return c
}

// access абстрагирует доступ к state: под мьютексом хранилища или внутри
// уже захваченной транзакции.
type access interface {
	read(fn func(st *state) error) error
	write(fn func(st *state) error) error
}

type lockedAccess struct {
	store *Store
}

func (a lockedAccess) read(fn func(st *state) error) error {
	a.store.mu.RLock()
	defer a.store.mu.RUnlock()
	return fn(a.store.st)
}

func (a lockedAccess) write(fn func(st *state) error) error {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	return fn(a.store.st)
}

// txAccess работает со staged-копией; мьютекс удерживает WithinTx.
type txAccess struct {
	st *state
}

func (a txAccess) read(fn func(st *state) error) error  { return fn(a.st) }
func (a txAccess) write(fn func(st *state) error) error { return fn(a.st) }

// Store - in-memory реализация domain.Store для локальной разработки и тестов.
// Каждая транзакция копирует клиентов, товары и заказы, поэтому хранилище
// рассчитано на объёмы dev-стенда, а не на продакшен.
type Store struct {
	mu sync.RWMutex
	st *state
}

// NewStore создаёт пустое in-memory хранилище.
func NewStore() *Store {
	return &Store{st: newState()}
}

// Repos возвращает репозитории, каждая операция которых атомарна сама по себе.
func (s *Store) Repos() domain.Repositories {
	return reposFor(lockedAccess{store: s})
}

// WithinTx выполняет fn над копией состояния и подменяет состояние только
// при успешном завершении. Транзакции сериализуются. Внутри fn нельзя
// обращаться к s.Repos(): это приведёт к взаимной блокировке.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.st.clone()
	if err := fn(ctx, reposFor(txAccess{st: staged})); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	staged.outbox = staged.outbox.merge()
	s.st = staged
	return nil
}

// Ping всегда успешен для in-memory хранилища.
func (s *Store) Ping(context.Context) error {
	return nil
}

// Outbox возвращает outbox-репозиторий вне транзакции (используется воркером).
func (s *Store) Outbox() domain.OutboxRepository {
	return &outboxRepository{acc: lockedAccess{store: s}}
}

func reposFor(acc access) domain.Repositories {
	return domain.Repositories{
		Customers: &customerRepository{acc: acc},
		Products:  &productRepository{acc: acc},
		Orders:    &orderRepository{acc: acc},
		Outbox:    &outboxRepository{acc: acc},
	}
}

var _ domain.Store = (*Store)(nil)
