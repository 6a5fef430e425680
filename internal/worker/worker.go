package worker

import (
	"context"
	"errors"

	"pharmacy-api/internal/broker"
	"pharmacy-api/internal/models"
	"pharmacy-api/internal/store"
	"pharmacy-api/internal/util"

	"go.uber.org/zap"
)

// StockAlertWorker watches ORDER_CREATED events and warns when an ordered
// product runs low.
type StockAlertWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        store.Store
	threshold    int
	logger       *zap.Logger
}

// NewStockAlertWorker creates a new stock alert worker. consumer may be nil
// when only HandleOrderCreated is used.
func NewStockAlertWorker(consumer *broker.Consumer, st store.Store, threshold int) *StockAlertWorker {
	w := &StockAlertWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		store:        st,
		threshold:    threshold,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnOrderCreated(w.HandleOrderCreated)
	return w
}

// Start consumes events until ctx is cancelled
func (w *StockAlertWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting stock alert worker", zap.Int("threshold", w.threshold))
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StockAlertWorker) Stop() error {
	w.logger.Info("Stopping stock alert worker")
	return w.consumer.Close()
}

// HandleOrderCreated checks the remaining stock of every ordered product.
// Products deleted since the order are skipped.
func (w *StockAlertWorker) HandleOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	ctx, span := util.StartSpan(ctx, "StockAlertWorker.HandleOrderCreated")
	defer span.End()

	for _, item := range event.Items {
		product, err := w.store.GetProductByID(ctx, item.ProductID)
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidID) {
			continue
		}
		if err != nil {
			util.RecordError(span, err)
			return err
		}

		if product.CountInStock <= w.threshold {
			util.LowStockAlertsTotal.Inc()
			w.logger.Warn("Product stock is low",
				zap.String("order_id", event.OrderID),
				zap.String("product_id", item.ProductID),
				zap.String("product", product.Name),
				zap.Int("count_in_stock", product.CountInStock),
				zap.Int("threshold", w.threshold))
		}
	}
	return nil
}
