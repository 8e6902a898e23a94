package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/crm/internal/api"
)

// Имена задач.
const (
	JobHeartbeat      = "heartbeat"
	JobOrderReminders = "order-reminders"
	JobLowStock       = "low-stock"
	JobReport         = "report"
)

// Names перечисляет задачи в порядке вывода CLI.
func Names() []string {
	return []string{JobHeartbeat, JobOrderReminders, JobLowStock, JobReport}
}

// Client - вызовы API, которые используют задачи.
type Client interface {
	Hello(ctx context.Context) (string, error)
	Customers(ctx context.Context) ([]api.Customer, error)
	Orders(ctx context.Context, since *time.Time) ([]api.Order, error)
	UpdateLowStockProducts(ctx context.Context) (api.UpdateLowStockProductsResponse, error)
}

// unreachableClient отвечает одной и той же ошибкой на любой вызов.
type unreachableClient struct {
	err error
}

// UnreachableClient возвращает Client, все вызовы которого завершаются err.
// Так сбой подключения к API попадает в журнал задачи через FailureLine.
func UnreachableClient(err error) Client {
	return unreachableClient{err: err}
}

func (c unreachableClient) Hello(context.Context) (string, error) { return "", c.err }

func (c unreachableClient) Customers(context.Context) ([]api.Customer, error) { return nil, c.err }

func (c unreachableClient) Orders(context.Context, *time.Time) ([]api.Order, error) {
	return nil, c.err
}

func (c unreachableClient) UpdateLowStockProducts(context.Context) (api.UpdateLowStockProductsResponse, error) {
	return api.UpdateLowStockProductsResponse{}, c.err
}

// New создаёт задачу по имени для одного запуска.
func New(name string, cfg Config, client Client) (Job, error) {
	switch name {
	case JobHeartbeat:
		return &Heartbeat{client: client}, nil
	case JobOrderReminders:
		return &OrderReminders{client: client, lookbackDays: cfg.ReminderLookbackDays}, nil
	case JobLowStock:
		return &LowStockUpdate{client: client}, nil
	case JobReport:
		return &Report{client: client}, nil
	default:
		return nil, fmt.Errorf("unknown job %q", name)
	}
}

// Probe* - исходы health-пробы heartbeat.
const (
	ProbeOK      = "OK"
	ProbeError   = "ERROR"
	ProbeTimeout = "TIMEOUT"
)

// Heartbeat отмечает, что CRM жив, и дописывает исход пробы hello.
// Строка пишется при любом исходе пробы.
type Heartbeat struct {
	client Client
}

func (h *Heartbeat) Name() string    { return JobHeartbeat }
func (h *Heartbeat) LogFile() string { return HeartbeatLogFile }

func (h *Heartbeat) Run(ctx context.Context, _ time.Time) ([]string, error) {
	if _, err := h.client.Hello(ctx); err != nil {
		return nil, err
	}
	return []string{heartbeatLine(ProbeOK)}, nil
}

func (h *Heartbeat) FailureLine(err error) string {
	if api.IsTimeout(err) {
		return heartbeatLine(ProbeTimeout)
	}
	return heartbeatLine(ProbeError) + ": " + err.Error()
}

func heartbeatLine(outcome string) string {
	return fmt.Sprintf("CRM is alive (hello: %s)", outcome)
}

// OrderReminders перечисляет заказы за последние lookbackDays дней,
// считая от начала текущих суток.
type OrderReminders struct {
	client       Client
	lookbackDays int
}

func (o *OrderReminders) Name() string    { return JobOrderReminders }
func (o *OrderReminders) LogFile() string { return RemindersLogFile }

// Since возвращает нижнюю границу order_date для запуска в момент now.
func (o *OrderReminders) Since(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, -o.lookbackDays)
}

func (o *OrderReminders) Run(ctx context.Context, now time.Time) ([]string, error) {
	since := o.Since(now)
	orders, err := o.client.Orders(ctx, &since)
	if err != nil {
		return nil, err
	}

	lines := make([]string, 0, len(orders)+1)
	for _, order := range orders {
		if order.ID == "" {
			return nil, errors.New("malformed response: order without id")
		}
		lines = append(lines, fmt.Sprintf("Order ID: %s, Customer Email: %s", order.ID, order.Customer.Email))
	}
	lines = append(lines, fmt.Sprintf("Order reminders processed: %d orders since %s", len(orders), since.Format(time.DateOnly)))
	return lines, nil
}

func (o *OrderReminders) FailureLine(err error) string {
	return "ERROR: Failed to send order reminders: " + err.Error()
}

// LowStockUpdate вызывает UpdateLowStockProducts и пишет новые остатки.
type LowStockUpdate struct {
	client Client
}

func (l *LowStockUpdate) Name() string    { return JobLowStock }
func (l *LowStockUpdate) LogFile() string { return LowStockLogFile }

func (l *LowStockUpdate) Run(ctx context.Context, _ time.Time) ([]string, error) {
	resp, err := l.client.UpdateLowStockProducts(ctx)
	if err != nil {
		return nil, err
	}
	if resp.Success == "" {
		return nil, errors.New("malformed response: missing success message")
	}

	lines := make([]string, 0, len(resp.UpdatedProducts)+1)
	for _, p := range resp.UpdatedProducts {
		lines = append(lines, "Updated product: "+p)
	}
	lines = append(lines, fmt.Sprintf("Low stock update: %d products restocked. %s", len(resp.UpdatedProducts), resp.Success))
	return lines, nil
}

func (l *LowStockUpdate) FailureLine(err error) string {
	return "ERROR: Failed to update low stock products: " + err.Error()
}

// Report пишет сводку: число клиентов, заказов и выручку по всем заказам.
type Report struct {
	client Client
}

func (r *Report) Name() string    { return JobReport }
func (r *Report) LogFile() string { return ReportLogFile }

func (r *Report) Run(ctx context.Context, _ time.Time) ([]string, error) {
	customers, err := r.client.Customers(ctx)
	if err != nil {
		return nil, err
	}
	orders, err := r.client.Orders(ctx, nil)
	if err != nil {
		return nil, err
	}

	revenue := decimal.Zero
	for _, o := range orders {
		revenue = revenue.Add(o.TotalAmount)
	}
	return []string{fmt.Sprintf("Report: %d customers, %d orders, %s total revenue",
		len(customers), len(orders), revenue.StringFixed(2))}, nil
}

func (r *Report) FailureLine(err error) string {
	return "ERROR: Failed to generate CRM report: " + err.Error()
}
