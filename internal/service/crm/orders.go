package crm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/crm/internal/domain"
)

// OrderInput - входные данные CreateOrder. OrderDate == nil означает «сейчас».
type OrderInput struct {
	CustomerID string
	ProductIDs []string
	OrderDate  *time.Time
}

// OrderResult - результат мутаций заказа: Order == nil означает отказ.
// При успехе Customer и Products содержат связанные записи.
type OrderResult struct {
	Order    *domain.Order
	Customer domain.Customer
	Products []domain.Product
	Message  string
}

// OK сообщает, что мутация применена.
func (r OrderResult) OK() bool { return r.Order != nil }

type orderEvent struct {
	ID          string          `json:"id"`
	CustomerID  string          `json:"customer_id"`
	ProductIDs  []string        `json:"product_ids"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	OrderDate   time.Time       `json:"order_date"`
}

type orderTotalEvent struct {
	ID          string          `json:"id"`
	Previous    decimal.Decimal `json:"previous_total"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// CreateOrder создаёт заказ, фиксируя сумму как сумму цен товаров на момент
// создания. Повторяющиеся id товаров считаются невалидным набором.
func (s *Service) CreateOrder(ctx context.Context, in OrderInput) (OrderResult, error) {
	var result OrderResult

	err := s.store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if in.CustomerID == "" {
			result = OrderResult{Message: MsgInvalidCustomerID}
			return nil
		}
		customer, err := repos.Customers.Get(ctx, in.CustomerID)
		if errors.Is(err, domain.ErrCustomerNotFound) {
			result = OrderResult{Message: MsgInvalidCustomerID}
			return nil
		}
		if err != nil {
			return fmt.Errorf("get customer: %w", err)
		}

		if len(in.ProductIDs) == 0 {
			result = OrderResult{Message: MsgNoProducts}
			return nil
		}
		products, err := repos.Products.GetMany(ctx, in.ProductIDs)
		if err != nil {
			return fmt.Errorf("get products: %w", err)
		}
		if len(products) != len(in.ProductIDs) {
			result = OrderResult{Message: MsgInvalidProductIDs}
			return nil
		}

		now := s.now()
		orderDate := now
		if in.OrderDate != nil && !in.OrderDate.IsZero() {
			orderDate = in.OrderDate.UTC()
		}

		total := domain.SumPrices(products)
		if total.GreaterThan(domain.MaxAmount) {
			result = OrderResult{Message: MsgTotalTooLarge}
			return nil
		}

		order := domain.Order{
			ID:          s.newID(),
			CustomerID:  customer.ID,
			ProductIDs:  append([]string(nil), in.ProductIDs...),
			TotalAmount: total,
			OrderDate:   orderDate,
			CreatedAt:   now,
		}
		if errs := order.ValidateInvariants(); len(errs) > 0 {
			return errors.Join(errs...)
		}

		if err := repos.Orders.Create(ctx, order); err != nil {
			return err
		}
		if err := enqueueEvent(ctx, repos, domain.AggregateOrder, order.ID, domain.EventOrderCreated, orderEvent{
			ID:          order.ID,
			CustomerID:  order.CustomerID,
			ProductIDs:  order.ProductIDs,
			TotalAmount: order.TotalAmount,
			OrderDate:   order.OrderDate,
		}); err != nil {
			return err
		}

		result = OrderResult{Order: &order, Customer: customer, Products: products, Message: MsgOrderCreated}
		return nil
	})
	if err != nil {
		return OrderResult{}, s.fail(OpCreateOrder, err)
	}

	if !result.OK() {
		s.metrics.RecordMutation(OpCreateOrder, ResultRejected)
		s.logger.WithFields(log.Fields{"customer_id": in.CustomerID, "reason": result.Message}).Info("order rejected")
		return result, nil
	}

	s.metrics.RecordMutation(OpCreateOrder, ResultCreated)
	s.logger.WithFields(log.Fields{
		"order_id": result.Order.ID,
		"total":    result.Order.TotalAmount.StringFixed(2),
	}).Info("order created")
	return result, nil
}

// RecalculateOrderTotal пересчитывает сумму заказа по текущим ценам товаров.
func (s *Service) RecalculateOrderTotal(ctx context.Context, orderID string) (OrderResult, error) {
	var result OrderResult

	err := s.store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		order, err := repos.Orders.Get(ctx, orderID)
		if errors.Is(err, domain.ErrOrderNotFound) {
			result = OrderResult{Message: MsgInvalidOrderID}
			return nil
		}
		if err != nil {
			return fmt.Errorf("get order: %w", err)
		}

		products, err := repos.Products.GetMany(ctx, order.ProductIDs)
		if err != nil {
			return fmt.Errorf("get products: %w", err)
		}
		customer, err := repos.Customers.Get(ctx, order.CustomerID)
		if err != nil {
			return fmt.Errorf("get customer: %w", err)
		}

		total := domain.SumPrices(products)
		if total.GreaterThan(domain.MaxAmount) {
			result = OrderResult{Message: MsgTotalTooLarge}
			return nil
		}
		previous := order.TotalAmount
		order.TotalAmount = total
		if err := repos.Orders.UpdateTotal(ctx, order); err != nil {
			return err
		}
		if err := enqueueEvent(ctx, repos, domain.AggregateOrder, order.ID, domain.EventOrderTotalRecalculated, orderTotalEvent{
			ID:          order.ID,
			Previous:    previous,
			TotalAmount: order.TotalAmount,
		}); err != nil {
			return err
		}

		result = OrderResult{Order: &order, Customer: customer, Products: products, Message: MsgOrderRecalculated}
		return nil
	})
	if err != nil {
		return OrderResult{}, s.fail(OpRecalculateOrderTotal, err)
	}

	if !result.OK() {
		s.metrics.RecordMutation(OpRecalculateOrderTotal, ResultRejected)
		return result, nil
	}
	s.metrics.RecordMutation(OpRecalculateOrderTotal, ResultCreated)
	s.logger.WithField("order_id", orderID).Info("order total recalculated")
	return result, nil
}
