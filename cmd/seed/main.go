// Command seed заполняет хранилище CRM демонстрационными данными.
// Повторный запуск пропускает существующих клиентов (по email), товары
// (по имени) и заказ Alice.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/crm/internal/app"
	"github.com/vladislavdragonenkov/crm/internal/domain"
	"github.com/vladislavdragonenkov/crm/internal/service/crm"
)

const defaultTimeout = 30 * time.Second

type seedProduct struct {
	name  string
	price string
	stock int
}

func strPtr(s string) *string { return &s }

var (
	seedCustomers = []domain.CustomerInput{
		{Name: "Alice", Email: "alice@example.com", Phone: strPtr("+1 234-567-8900")},
		{Name: "Bob", Email: "bob@example.com", Phone: strPtr("123-456-7890")},
		{Name: "Carol", Email: "carol@example.com"},
	}
	seedProducts = []seedProduct{
		{name: "Laptop", price: "999.99", stock: 10},
		{name: "Smartphone", price: "499.99", stock: 20},
		{name: "Headphones", price: "199.99", stock: 30},
	}
)

// Заказ Alice: ноутбук и смартфон.
const orderCustomerEmail = "alice@example.com"

var orderProductNames = []string{"Laptop", "Smartphone"}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := app.ConfigFromEnv(os.LookupEnv)
	if err != nil {
		fail("invalid config: %v", err)
	}
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}
	if cfg.StorageDriver == app.StorageDriverMemory {
		log.Warn("seeding in-memory storage: data is lost when the command exits")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	store, closeFn, err := app.OpenStore(ctx, cfg, log.WithField("component", "seed"))
	if err != nil {
		fail("open storage: %v", err)
	}
	defer closeFn()

	if err := seed(ctx, crm.NewService(store), os.Stdout); err != nil {
		fail("seed failed: %v", err)
	}
}

// seed создаёт недостающие записи через сервис, соблюдая все его проверки.
func seed(ctx context.Context, svc *crm.Service, out io.Writer) error {
	if err := seedCustomerRecords(ctx, svc); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, "Seeded customers.")

	if err := seedProductRecords(ctx, svc); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, "Seeded products.")

	msg, err := seedOrder(ctx, svc)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, msg)
	return nil
}

func seedCustomerRecords(ctx context.Context, svc *crm.Service) error {
	existing, err := svc.Customers(ctx)
	if err != nil {
		return err
	}
	emails := make(map[string]struct{}, len(existing))
	for _, c := range existing {
		emails[c.Email] = struct{}{}
	}

	for _, in := range seedCustomers {
		if _, ok := emails[in.Email]; ok {
			continue
		}
		res, err := svc.CreateCustomer(ctx, in)
		if err != nil {
			return err
		}
		if !res.OK() {
			return fmt.Errorf("customer %s rejected: %s", in.Email, res.Message)
		}
	}
	return nil
}

func seedProductRecords(ctx context.Context, svc *crm.Service) error {
	existing, err := svc.Products(ctx)
	if err != nil {
		return err
	}
	names := make(map[string]struct{}, len(existing))
	for _, p := range existing {
		names[p.Name] = struct{}{}
	}

	for _, p := range seedProducts {
		if _, ok := names[p.name]; ok {
			continue
		}
		stock := p.stock
		res, err := svc.CreateProduct(ctx, crm.ProductInput{
			Name:  p.name,
			Price: decimal.RequireFromString(p.price),
			Stock: &stock,
		})
		if err != nil {
			return err
		}
		if !res.OK() {
			return fmt.Errorf("product %s rejected: %s", p.name, res.Message)
		}
	}
	return nil
}

func seedOrder(ctx context.Context, svc *crm.Service) (string, error) {
	customers, err := svc.Customers(ctx)
	if err != nil {
		return "", err
	}
	products, err := svc.Products(ctx)
	if err != nil {
		return "", err
	}

	var customerID string
	for _, c := range customers {
		if c.Email == orderCustomerEmail {
			customerID = c.ID
			break
		}
	}
	productIDs := make([]string, 0, len(orderProductNames))
	for _, name := range orderProductNames {
		for _, p := range products {
			if p.Name == name {
				productIDs = append(productIDs, p.ID)
				break
			}
		}
	}
	if customerID == "" || len(productIDs) != len(orderProductNames) {
		return "Could not seed orders: missing data.", nil
	}

	orders, err := svc.Orders(ctx, domain.OrderFilter{})
	if err != nil {
		return "", err
	}
	for _, o := range orders {
		if o.Order.CustomerID == customerID {
			return "Order for Alice already exists.", nil
		}
	}

	res, err := svc.CreateOrder(ctx, crm.OrderInput{CustomerID: customerID, ProductIDs: productIDs})
	if err != nil {
		return "", err
	}
	if !res.OK() {
		return "", fmt.Errorf("order rejected: %s", res.Message)
	}
	return "Seeded orders.", nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
