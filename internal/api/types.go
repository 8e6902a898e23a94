// Package api описывает внешний контракт CRM: операции, их переменные и
// ответы. Один и тот же набор операций обслуживается по HTTP (POST /graphql)
// и по gRPC (crm.v1.CRMService/Execute).
package api

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Имена операций.
const (
	OpHello                  = "hello"
	OpCustomers              = "customers"
	OpProducts               = "products"
	OpOrders                 = "orders"
	OpCreateCustomer         = "CreateCustomer"
	OpBulkCreateCustomers    = "BulkCreateCustomers"
	OpCreateProduct          = "CreateProduct"
	OpCreateOrder            = "CreateOrder"
	OpUpdateLowStockProducts = "UpdateLowStockProducts"
	OpRecalculateOrderTotal  = "RecalculateOrderTotal"
)

// Request - вызов одной операции.
type Request struct {
	Operation string          `json:"operation"`
	Variables json.RawMessage `json:"variables,omitempty"`
}

// Response - конверт ответа: data при успехе, errors при сбое запроса.
type Response struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Errors []ErrorBody     `json:"errors,omitempty"`
}

// ErrorBody - ошибка в конверте ответа.
type ErrorBody struct {
	Message string `json:"message"`
	Kind    Kind   `json:"kind"`
}

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     *string   `json:"phone"`
	CreatedAt time.Time `json:"createdAt"`
}

type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	CreatedAt time.Time       `json:"createdAt"`
}

type Order struct {
	ID          string          `json:"id"`
	Customer    Customer        `json:"customer"`
	Products    []Product       `json:"products"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	OrderDate   time.Time       `json:"orderDate"`
}

type HelloResponse struct {
	Hello string `json:"hello"`
}

type CustomersResponse struct {
	Customers []Customer `json:"customers"`
}

type ProductsResponse struct {
	Products []Product `json:"products"`
}

// OrdersRequest фильтрует заказы: orderDateGte включает границу.
type OrdersRequest struct {
	OrderDateGte *time.Time `json:"orderDateGte,omitempty"`
}

type OrdersResponse struct {
	Orders []Order `json:"orders"`
}

// CustomerInput - переменные CreateCustomer и элемент BulkCreateCustomers.
type CustomerInput struct {
	Name  string  `json:"name"`
	Email string  `json:"email"`
	Phone *string `json:"phone,omitempty"`
}

type CreateCustomerRequest = CustomerInput

// CreateCustomerResponse: Customer == nil означает отказ, причина в Message.
type CreateCustomerResponse struct {
	Customer *Customer `json:"customer"`
	Message  string    `json:"message"`
}

type BulkCreateCustomersRequest struct {
	Input []CustomerInput `json:"input"`
}

type BulkCreateCustomersResponse struct {
	Customers []Customer `json:"customers"`
	Errors    []string   `json:"errors"`
}

type CreateProductRequest struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock *int            `json:"stock,omitempty"`
}

type CreateProductResponse struct {
	Product *Product `json:"product"`
	Message string   `json:"message"`
}

type CreateOrderRequest struct {
	CustomerID string     `json:"customerId"`
	ProductIDs []string   `json:"productIds"`
	OrderDate  *time.Time `json:"orderDate,omitempty"`
}

type CreateOrderResponse struct {
	Order   *Order `json:"order"`
	Message string `json:"message"`
}

// UpdateLowStockProductsResponse: UpdatedProducts в формате "Имя (остаток)".
type UpdateLowStockProductsResponse struct {
	UpdatedProducts []string  `json:"updatedProducts"`
	Products        []Product `json:"products"`
	Success         string    `json:"success"`
}

type RecalculateOrderTotalRequest struct {
	OrderID string `json:"orderId"`
}

type RecalculateOrderTotalResponse struct {
	Order   *Order `json:"order"`
	Message string `json:"message"`
}
