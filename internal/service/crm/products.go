package crm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/crm/internal/domain"
)

// ProductInput - входные данные CreateProduct. Stock == nil означает 0.
type ProductInput struct {
	Name  string
	Price decimal.Decimal
	Stock *int
}

// ProductResult - результат CreateProduct: Product == nil означает отказ.
type ProductResult struct {
	Product *domain.Product
	Message string
}

// OK сообщает, что товар создан.
func (r ProductResult) OK() bool { return r.Product != nil }

// RestockResult - результат UpdateLowStockProducts.
type RestockResult struct {
	// UpdatedProducts - строки вида "<name> (<new_stock>)".
	UpdatedProducts []string
	Products        []domain.Product
	Message         string
}

type productEvent struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

type restockEvent struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Added    int    `json:"added"`
	NewStock int    `json:"new_stock"`
}

// productRejections переводит нарушения Product.Validate в сообщения отказа.
var productRejections = map[error]string{
	domain.ErrPriceNotPositive:    MsgPriceNotPositive,
	domain.ErrPricePrecision:      MsgPricePrecision,
	domain.ErrPriceTooLarge:       MsgPriceTooLarge,
	domain.ErrStockNegative:       MsgStockNegative,
	domain.ErrProductNameRequired: MsgNameRequired,
}

// CreateProduct создаёт товар. Цена должна быть положительной, не длиннее
// двух знаков после запятой и помещаться в NUMERIC(12, 2).
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (ProductResult, error) {
	stock := 0
	if in.Stock != nil {
		stock = *in.Stock
	}

	product := domain.Product{
		Name:  strings.TrimSpace(in.Name),
		Price: in.Price,
		Stock: stock,
	}
	if errs := product.Validate(); len(errs) > 0 {
		reason, ok := productRejections[errs[0]]
		if !ok {
			return ProductResult{}, s.fail(OpCreateProduct, errors.Join(errs...))
		}
		s.metrics.RecordMutation(OpCreateProduct, ResultRejected)
		s.logger.WithFields(log.Fields{"name": in.Name, "reason": reason}).Info("product rejected")
		return ProductResult{Message: reason}, nil
	}
	product.ID = s.newID()
	product.CreatedAt = s.now()

	err := s.store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if err := repos.Products.Create(ctx, product); err != nil {
			return err
		}
		return enqueueEvent(ctx, repos, domain.AggregateProduct, product.ID, domain.EventProductCreated, productEvent{
			ID:    product.ID,
			Name:  product.Name,
			Price: product.Price,
			Stock: product.Stock,
		})
	})
	if err != nil {
		return ProductResult{}, s.fail(OpCreateProduct, err)
	}

	s.metrics.RecordMutation(OpCreateProduct, ResultCreated)
	s.logger.WithField("product_id", product.ID).Info("product created")
	return ProductResult{Product: &product, Message: MsgProductCreated}, nil
}

// UpdateLowStockProducts пополняет на RestockAmount каждый товар с остатком
// ниже LowStockThreshold. Пополнение не идемпотентно: товар, оставшийся
// ниже порога, будет пополнен снова при следующем вызове.
func (s *Service) UpdateLowStockProducts(ctx context.Context) (RestockResult, error) {
	var updated []domain.Product

	err := s.store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		low, err := repos.Products.ListBelowStock(ctx, domain.LowStockThreshold)
		if err != nil {
			return fmt.Errorf("list low stock: %w", err)
		}

		updated = make([]domain.Product, 0, len(low))
		for _, p := range low {
			next, err := repos.Products.AddStock(ctx, p.ID, domain.RestockAmount)
			if err != nil {
				return fmt.Errorf("restock %s: %w", p.ID, err)
			}
			if err := enqueueEvent(ctx, repos, domain.AggregateProduct, next.ID, domain.EventProductRestocked, restockEvent{
				ID:       next.ID,
				Name:     next.Name,
				Added:    domain.RestockAmount,
				NewStock: next.Stock,
			}); err != nil {
				return err
			}
			updated = append(updated, next)
		}
		return nil
	})
	if err != nil {
		return RestockResult{}, s.fail(OpUpdateLowStockProducts, err)
	}

	lines := make([]string, 0, len(updated))
	for _, p := range updated {
		lines = append(lines, fmt.Sprintf("%s (%d)", p.Name, p.Stock))
	}

	s.metrics.RecordMutation(OpUpdateLowStockProducts, ResultCreated)
	s.metrics.RecordRestocked(len(updated))
	s.logger.WithField("restocked", len(updated)).Info("low stock products updated")

	return RestockResult{
		UpdatedProducts: lines,
		Products:        updated,
		Message:         MsgStockUpdated,
	}, nil
}
