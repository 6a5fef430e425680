package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pharmacy-api/internal/models"
	"pharmacy-api/internal/store"
	"pharmacy-api/internal/util"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// stockReservation is a decrement already applied for an order in progress.
type stockReservation struct {
	ProductID primitive.ObjectID
	Name      string
	Quantity  int
}

// InventoryClient applies stock changes for order placement.
type InventoryClient struct {
	store  store.Store
	logger *zap.Logger
}

// NewInventoryClient creates a new inventory client
func NewInventoryClient(st store.Store) *InventoryClient {
	return &InventoryClient{
		store:  st,
		logger: util.GetLogger(),
	}
}

// DecrementStock takes quantity units of product. When the conditional
// update loses, the product is re-read so the error carries the current
// availability.
func (ic *InventoryClient) DecrementStock(ctx context.Context, product *models.Product, quantity int) error {
	ctx, span := util.StartSpan(ctx, "InventoryClient.DecrementStock",
		trace.WithAttributes(
			attribute.String("product_id", product.ID.Hex()),
			attribute.Int("quantity", quantity),
		))
	defer span.End()

	start := time.Now()
	defer func() {
		util.StockDecrementLatency.Observe(time.Since(start).Seconds())
	}()

	ok, err := ic.store.DecrementStock(ctx, product.ID, quantity)
	if err != nil {
		util.StockDecrementsFailed.WithLabelValues("error").Inc()
		util.RecordError(span, err)
		return fmt.Errorf("failed to decrement stock for product %s: %w", product.ID.Hex(), err)
	}
	if ok {
		return nil
	}

	util.StockDecrementsFailed.WithLabelValues("insufficient_stock").Inc()

	current, err := ic.store.GetProductByID(ctx, product.ID.Hex())
	if errors.Is(err, store.ErrNotFound) {
		return &ProductNotFoundError{Name: product.Name}
	}
	if err != nil {
		return fmt.Errorf("failed to re-read product %s: %w", product.ID.Hex(), err)
	}
	return &InsufficientStockError{Name: product.Name, Available: current.CountInStock, Requested: quantity}
}

// ReleaseStock gives back reserved units after a failed order on a store
// without transactions.
func (ic *InventoryClient) ReleaseStock(ctx context.Context, reservations []stockReservation) {
	for i := len(reservations) - 1; i >= 0; i-- {
		r := reservations[i]
		if err := ic.store.IncrementStock(ctx, r.ProductID, r.Quantity); err != nil {
			ic.logger.Error("Failed to compensate stock decrement",
				zap.String("product_id", r.ProductID.Hex()),
				zap.String("product", r.Name),
				zap.Int("quantity", r.Quantity),
				zap.Error(err))
			continue
		}
		util.StockCompensationsTotal.Inc()
	}
}
