package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/crm/internal/domain"
	"github.com/vladislavdragonenkov/crm/internal/service/crm"
)

// Транспорты для метрик и логов.
const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

// Исходы запроса для метрик.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Service - операции CRM, которые обслуживает API.
type Service interface {
	Hello() string
	Customers(ctx context.Context) ([]domain.Customer, error)
	Products(ctx context.Context) ([]domain.Product, error)
	Orders(ctx context.Context, filter domain.OrderFilter) ([]crm.OrderDetails, error)
	CreateCustomer(ctx context.Context, in domain.CustomerInput) (crm.CustomerResult, error)
	BulkCreateCustomers(ctx context.Context, inputs []domain.CustomerInput) (crm.BulkCustomersResult, error)
	CreateProduct(ctx context.Context, in crm.ProductInput) (crm.ProductResult, error)
	CreateOrder(ctx context.Context, in crm.OrderInput) (crm.OrderResult, error)
	UpdateLowStockProducts(ctx context.Context) (crm.RestockResult, error)
	RecalculateOrderTotal(ctx context.Context, orderID string) (crm.OrderResult, error)
}

// MetricsRecorder принимает длительность и исход запросов.
type MetricsRecorder interface {
	RecordAPIRequest(transport, operation, outcome string, duration time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) RecordAPIRequest(string, string, string, time.Duration) {}

type handlerFunc func(ctx context.Context, variables json.RawMessage) (any, error)

// Dispatcher исполняет операции по имени независимо от транспорта.
type Dispatcher struct {
	svc      Service
	logger   *log.Entry
	metrics  MetricsRecorder
	handlers map[string]handlerFunc
}

// DispatcherOption настраивает Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger задаёт logger.
func WithDispatcherLogger(logger *log.Entry) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithDispatcherMetrics задаёт приёмник метрик.
func WithDispatcherMetrics(m MetricsRecorder) DispatcherOption {
	return func(d *Dispatcher) {
		if m != nil {
			d.metrics = m
		}
	}
}

// NewDispatcher регистрирует все операции CRM.
func NewDispatcher(svc Service, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		svc:     svc,
		logger:  log.WithField("component", "crm-api"),
		metrics: nopMetrics{},
	}
	for _, opt := range opts {
		opt(d)
	}

	d.handlers = map[string]handlerFunc{
		OpHello:                  d.hello,
		OpCustomers:              d.customers,
		OpProducts:               d.products,
		OpOrders:                 d.orders,
		OpCreateCustomer:         d.createCustomer,
		OpBulkCreateCustomers:    d.bulkCreateCustomers,
		OpCreateProduct:          d.createProduct,
		OpCreateOrder:            d.createOrder,
		OpUpdateLowStockProducts: d.updateLowStockProducts,
		OpRecalculateOrderTotal:  d.recalculateOrderTotal,
	}
	return d
}

// Operations возвращает отсортированный список поддерживаемых операций.
func (d *Dispatcher) Operations() []string {
	ops := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		ops = append(ops, name)
	}
	sort.Strings(ops)
	return ops
}

// Execute исполняет операцию и возвращает сериализованный data.
// Ошибка всегда имеет тип *Error.
func (d *Dispatcher) Execute(ctx context.Context, transport string, req Request) (json.RawMessage, error) {
	start := time.Now()

	data, err := d.execute(ctx, req)

	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	d.metrics.RecordAPIRequest(transport, req.Operation, outcome, time.Since(start))

	if err != nil {
		apiErr := toError(err)
		entry := d.logger.WithFields(log.Fields{
			"transport": transport,
			"operation": req.Operation,
			"kind":      apiErr.Kind,
		})
		if apiErr.Kind == KindInternal {
			entry.WithError(err).Error("request failed")
		} else {
			entry.WithError(err).Warn("request rejected")
		}
		return nil, apiErr
	}
	return data, nil
}

func (d *Dispatcher) execute(ctx context.Context, req Request) (json.RawMessage, error) {
	handler, ok := d.handlers[req.Operation]
	if !ok {
		return nil, &Error{Kind: KindNotFound, Message: "unknown operation " + quote(req.Operation)}
	}

	result, err := handler(ctx, req.Variables)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(result)
	if err != nil {
		return nil, &Error{Kind: KindInternal, Message: "encode response", Err: err}
	}
	return data, nil
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// decodeVariables разбирает переменные операции; неизвестные поля отклоняются.
func decodeVariables[T any](raw json.RawMessage) (T, error) {
	var v T
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return v, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, badRequest("invalid variables: %v", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return v, badRequest("invalid variables: trailing data")
	}
	return v, nil
}

func (d *Dispatcher) hello(context.Context, json.RawMessage) (any, error) {
	return HelloResponse{Hello: d.svc.Hello()}, nil
}

func (d *Dispatcher) customers(ctx context.Context, _ json.RawMessage) (any, error) {
	customers, err := d.svc.Customers(ctx)
	if err != nil {
		return nil, err
	}
	return CustomersResponse{Customers: toCustomers(customers)}, nil
}

func (d *Dispatcher) products(ctx context.Context, _ json.RawMessage) (any, error) {
	products, err := d.svc.Products(ctx)
	if err != nil {
		return nil, err
	}
	return ProductsResponse{Products: toProducts(products)}, nil
}

func (d *Dispatcher) orders(ctx context.Context, raw json.RawMessage) (any, error) {
	req, err := decodeVariables[OrdersRequest](raw)
	if err != nil {
		return nil, err
	}

	var filter domain.OrderFilter
	if req.OrderDateGte != nil {
		filter.OrderDateFrom = req.OrderDateGte.UTC()
	}

	details, err := d.svc.Orders(ctx, filter)
	if err != nil {
		return nil, err
	}
	orders := make([]Order, 0, len(details))
	for _, od := range details {
		orders = append(orders, toOrder(od.Order, od.Customer, od.Products))
	}
	return OrdersResponse{Orders: orders}, nil
}

func (d *Dispatcher) createCustomer(ctx context.Context, raw json.RawMessage) (any, error) {
	req, err := decodeVariables[CreateCustomerRequest](raw)
	if err != nil {
		return nil, err
	}

	res, err := d.svc.CreateCustomer(ctx, toCustomerInput(req))
	if err != nil {
		return nil, err
	}
	resp := CreateCustomerResponse{Message: res.Message}
	if res.Customer != nil {
		c := toCustomer(*res.Customer)
		resp.Customer = &c
	}
	return resp, nil
}

func (d *Dispatcher) bulkCreateCustomers(ctx context.Context, raw json.RawMessage) (any, error) {
	req, err := decodeVariables[BulkCreateCustomersRequest](raw)
	if err != nil {
		return nil, err
	}

	inputs := make([]domain.CustomerInput, 0, len(req.Input))
	for _, in := range req.Input {
		inputs = append(inputs, toCustomerInput(in))
	}

	res, err := d.svc.BulkCreateCustomers(ctx, inputs)
	if err != nil {
		return nil, err
	}
	errs := res.Errors
	if errs == nil {
		errs = []string{}
	}
	return BulkCreateCustomersResponse{Customers: toCustomers(res.Customers), Errors: errs}, nil
}

func (d *Dispatcher) createProduct(ctx context.Context, raw json.RawMessage) (any, error) {
	req, err := decodeVariables[CreateProductRequest](raw)
	if err != nil {
		return nil, err
	}

	res, err := d.svc.CreateProduct(ctx, crm.ProductInput{Name: req.Name, Price: req.Price, Stock: req.Stock})
	if err != nil {
		return nil, err
	}
	resp := CreateProductResponse{Message: res.Message}
	if res.Product != nil {
		p := toProduct(*res.Product)
		resp.Product = &p
	}
	return resp, nil
}

func (d *Dispatcher) createOrder(ctx context.Context, raw json.RawMessage) (any, error) {
	req, err := decodeVariables[CreateOrderRequest](raw)
	if err != nil {
		return nil, err
	}

	in := crm.OrderInput{CustomerID: req.CustomerID, ProductIDs: req.ProductIDs}
	if req.OrderDate != nil {
		date := req.OrderDate.UTC()
		in.OrderDate = &date
	}

	res, err := d.svc.CreateOrder(ctx, in)
	if err != nil {
		return nil, err
	}
	resp := CreateOrderResponse{Message: res.Message}
	if res.Order != nil {
		o := toOrder(*res.Order, res.Customer, res.Products)
		resp.Order = &o
	}
	return resp, nil
}

func (d *Dispatcher) updateLowStockProducts(ctx context.Context, raw json.RawMessage) (any, error) {
	if _, err := decodeVariables[struct{}](raw); err != nil {
		return nil, err
	}

	res, err := d.svc.UpdateLowStockProducts(ctx)
	if err != nil {
		return nil, err
	}
	updated := res.UpdatedProducts
	if updated == nil {
		updated = []string{}
	}
	return UpdateLowStockProductsResponse{
		UpdatedProducts: updated,
		Products:        toProducts(res.Products),
		Success:         res.Message,
	}, nil
}

func (d *Dispatcher) recalculateOrderTotal(ctx context.Context, raw json.RawMessage) (any, error) {
	req, err := decodeVariables[RecalculateOrderTotalRequest](raw)
	if err != nil {
		return nil, err
	}

	res, err := d.svc.RecalculateOrderTotal(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	resp := RecalculateOrderTotalResponse{Message: res.Message}
	if res.Order != nil {
		o := toOrder(*res.Order, res.Customer, res.Products)
		resp.Order = &o
	}
	return resp, nil
}
