package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/crm/internal/domain"
)

func seedCustomerAndProducts(t *testing.T, ctx context.Context, repos domain.Repositories) (domain.Customer, []domain.Product) {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Microsecond)
	customer := domain.Customer{ID: "customer-1", Name: "Alice", Email: "alice@example.com", CreatedAt: now}
	if err := repos.Customers.Create(ctx, customer); err != nil {
		t.Fatalf("create customer: %v", err)
	}

	products := []domain.Product{
		{ID: "product-1", Name: "Laptop", Price: decimal.RequireFromString("999.99"), Stock: 5, CreatedAt: now},
		{ID: "product-2", Name: "Smartphone", Price: decimal.RequireFromString("499.99"), Stock: 20, CreatedAt: now.Add(time.Millisecond)},
	}
	for _, p := range products {
		if err := repos.Products.Create(ctx, p); err != nil {
			t.Fatalf("create product %s: %v", p.ID, err)
		}
	}
	return customer, products
}

func TestCustomerRepository_PostgresEmailUniqueness(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	repos := store.Repos()

	seedCustomerAndProducts(t, ctx, repos)

	exists, err := repos.Customers.ExistsByEmail(ctx, "ALICE@example.com")
	if err != nil {
		t.Fatalf("exists by email: %v", err)
	}
	if !exists {
		t.Fatal("email lookup must be case-insensitive")
	}

	err = repos.Customers.Create(ctx, domain.Customer{ID: "customer-2", Name: "Alice 2", Email: "Alice@Example.com", CreatedAt: time.Now()})
	if !errors.Is(err, domain.ErrEmailAlreadyExists) {
		t.Fatalf("expected ErrEmailAlreadyExists, got %v", err)
	}

	if _, err := repos.Customers.Get(ctx, "missing"); !errors.Is(err, domain.ErrCustomerNotFound) {
		t.Fatalf("expected ErrCustomerNotFound, got %v", err)
	}
}

func TestStore_PostgresWithinTxSurvivesDuplicateEmail(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	seedCustomerAndProducts(t, ctx, store.Repos())

	err := store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		dupErr := repos.Customers.Create(ctx, domain.Customer{ID: "dup", Name: "Dup", Email: "alice@example.com", CreatedAt: time.Now()})
		if !errors.Is(dupErr, domain.ErrEmailAlreadyExists) {
			t.Fatalf("expected ErrEmailAlreadyExists, got %v", dupErr)
		}
		// Транзакция остаётся рабочей после отказа.
		return repos.Customers.Create(ctx, domain.Customer{ID: "bob", Name: "Bob", Email: "bob@example.com", CreatedAt: time.Now()})
	})
	if err != nil {
		t.Fatalf("within tx: %v", err)
	}

	customers, err := store.Repos().Customers.List(ctx)
	if err != nil {
		t.Fatalf("list customers: %v", err)
	}
	if len(customers) != 2 {
		t.Fatalf("expected 2 customers, got %d", len(customers))
	}
}

func TestStore_PostgresWithinTxRollback(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if err := repos.Customers.Create(ctx, domain.Customer{ID: "c", Name: "C", Email: "c@example.com", CreatedAt: time.Now()}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	customers, err := store.Repos().Customers.List(ctx)
	if err != nil {
		t.Fatalf("list customers: %v", err)
	}
	if len(customers) != 0 {
		t.Fatalf("rollback must discard writes, got %d customers", len(customers))
	}
}

func TestProductRepository_PostgresStock(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	repos := store.Repos()
	_, products := seedCustomerAndProducts(t, ctx, repos)

	low, err := repos.Products.ListBelowStock(ctx, domain.LowStockThreshold)
	if err != nil {
		t.Fatalf("list below stock: %v", err)
	}
	if len(low) != 1 || low[0].ID != products[0].ID {
		t.Fatalf("expected only laptop below threshold, got %+v", low)
	}
	if !low[0].Price.Equal(decimal.RequireFromString("999.99")) {
		t.Fatalf("price must survive NUMERIC round trip, got %s", low[0].Price)
	}

	updated, err := repos.Products.AddStock(ctx, products[0].ID, domain.RestockAmount)
	if err != nil {
		t.Fatalf("add stock: %v", err)
	}
	if updated.Stock != 15 {
		t.Fatalf("expected stock 15, got %d", updated.Stock)
	}

	if _, err := repos.Products.AddStock(ctx, products[0].ID, -100); !errors.Is(err, domain.ErrStockNegative) {
		t.Fatalf("expected ErrStockNegative, got %v", err)
	}
	if _, err := repos.Products.AddStock(ctx, "missing", 1); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}

	many, err := repos.Products.GetMany(ctx, []string{products[1].ID, "missing", products[0].ID, products[1].ID})
	if err != nil {
		t.Fatalf("get many: %v", err)
	}
	if len(many) != 2 || many[0].ID != products[1].ID || many[1].ID != products[0].ID {
		t.Fatalf("unexpected get many result: %+v", many)
	}
}

func TestOrderRepository_PostgresFlow(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	repos := store.Repos()
	customer, products := seedCustomerAndProducts(t, ctx, repos)

	now := time.Now().UTC().Truncate(time.Microsecond)
	old := domain.Order{
		ID:          "order-old",
		CustomerID:  customer.ID,
		ProductIDs:  []string{products[1].ID, products[0].ID},
		TotalAmount: decimal.RequireFromString("1499.98"),
		OrderDate:   now.AddDate(0, 0, -10),
		CreatedAt:   now,
	}
	recent := domain.Order{
		ID:          "order-recent",
		CustomerID:  customer.ID,
		ProductIDs:  []string{products[0].ID},
		TotalAmount: decimal.RequireFromString("999.99"),
		OrderDate:   now.AddDate(0, 0, -1),
		CreatedAt:   now,
	}
	for _, o := range []domain.Order{recent, old} {
		if err := repos.Orders.Create(ctx, o); err != nil {
			t.Fatalf("create order %s: %v", o.ID, err)
		}
	}

	got, err := repos.Orders.Get(ctx, old.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if len(got.ProductIDs) != 2 || got.ProductIDs[0] != products[1].ID {
		t.Fatalf("product order must be preserved, got %v", got.ProductIDs)
	}
	if got.TotalAmount.StringFixed(2) != "1499.98" {
		t.Fatalf("unexpected total: %s", got.TotalAmount)
	}

	all, err := repos.Orders.List(ctx, domain.OrderFilter{})
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(all) != 2 || all[0].ID != old.ID {
		t.Fatalf("orders must be sorted by order_date, got %+v", all)
	}

	week, err := repos.Orders.List(ctx, domain.OrderFilter{OrderDateFrom: now.AddDate(0, 0, -7)})
	if err != nil {
		t.Fatalf("list filtered orders: %v", err)
	}
	if len(week) != 1 || week[0].ID != recent.ID {
		t.Fatalf("unexpected filtered orders: %+v", week)
	}

	recent.TotalAmount = decimal.RequireFromString("10.00")
	if err := repos.Orders.UpdateTotal(ctx, recent); err != nil {
		t.Fatalf("update total: %v", err)
	}
	if err := repos.Orders.UpdateTotal(ctx, domain.Order{ID: "missing"}); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}

	bad := domain.Order{ID: "order-bad", CustomerID: "missing", ProductIDs: []string{products[0].ID}, OrderDate: now, CreatedAt: now}
	if err := repos.Orders.Create(ctx, bad); !errors.Is(err, domain.ErrCustomerNotFound) {
		t.Fatalf("expected ErrCustomerNotFound, got %v", err)
	}
	bad.CustomerID = customer.ID
	bad.ProductIDs = []string{"missing"}
	if err := repos.Orders.Create(ctx, bad); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
	if _, err := repos.Orders.Get(ctx, bad.ID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("failed create must not leave a partial order, got %v", err)
	}
}
