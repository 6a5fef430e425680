package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pharmacy-api/internal/models"
	"pharmacy-api/internal/store"
	"pharmacy-api/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// EventPublisher publishes order lifecycle events. *broker.EventPublisher
// satisfies it.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, order *models.Order) error
	PublishOrderStatusChanged(ctx context.Context, orderID string, from, to models.OrderStatus) error
}

// IdempotencyStore remembers which order an Idempotency-Key produced.
// *redisclient.Client satisfies it.
type IdempotencyStore interface {
	Reserve(ctx context.Context, key string) (bool, error)
	Lookup(ctx context.Context, key string) (orderID string, pending bool, err error)
	Complete(ctx context.Context, key, orderID string) error
	Release(ctx context.Context, key string) error
}

// OrderService handles order business logic
type OrderService struct {
	store       store.Store
	inventory   *InventoryClient
	idempotency IdempotencyStore
	events      EventPublisher
	logger      *zap.Logger
	now         func() time.Time
}

// NewOrderService creates a new order service. idempotency and events may be
// nil to disable Idempotency-Key support and event publishing.
func NewOrderService(
	st store.Store,
	inventory *InventoryClient,
	idempotency IdempotencyStore,
	events EventPublisher,
) *OrderService {
	return &OrderService{
		store:       st,
		inventory:   inventory,
		idempotency: idempotency,
		events:      events,
		logger:      util.GetLogger(),
		now:         time.Now,
	}
}

// PlaceOrderRequest is the body of POST /api/orders
type PlaceOrderRequest struct {
	OrderItems      []OrderItemRequest     `json:"orderItems" binding:"dive"`
	CustomerName    string                 `json:"customerName"`
	CustomerMobile  string                 `json:"customerMobile"`
	CustomerEmail   string                 `json:"customerEmail" binding:"omitempty,email"`
	ShippingAddress ShippingAddressRequest `json:"shippingAddress"`
	TotalPrice      float64                `json:"totalPrice" binding:"gte=0"`
}

// OrderItemRequest is one line of an order
type OrderItemRequest struct {
	Product           string  `json:"product" binding:"required"`
	Name              string  `json:"name" binding:"required"`
	Qty               int     `json:"qty" binding:"required,min=1"`
	Image             string  `json:"image" binding:"required"`
	Price             float64 `json:"price" binding:"gte=0"`
	PrescriptionImage string  `json:"prescriptionImage"`
}

// ShippingAddressRequest is the delivery address supplied with an order
type ShippingAddressRequest struct {
	Address    string `json:"address" binding:"required"`
	City       string `json:"city" binding:"required"`
	PostalCode string `json:"postalCode" binding:"required"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
	Name       string `json:"name"`
	Email      string `json:"email"`
}

// UpdateOrderStatusRequest is the body of PATCH /api/orders/:id/status
type UpdateOrderStatusRequest struct {
	Status models.OrderStatus `json:"status" binding:"required"`
}

// PlaceOrder decrements stock for every item and persists the order. Either
// all decrements and the order are kept or none are. With a non-empty
// idempotencyKey a repeated request returns the first order and replayed is
// true.
func (s *OrderService) PlaceOrder(ctx context.Context, req *PlaceOrderRequest, idempotencyKey string) (order *models.Order, replayed bool, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.PlaceOrder",
		trace.WithAttributes(attribute.Int("items", len(req.OrderItems))))
	defer span.End()

	if len(req.OrderItems) == 0 {
		util.OrdersFailedTotal.WithLabelValues("empty").Inc()
		return nil, false, ErrEmptyOrder
	}

	if idempotencyKey != "" && s.idempotency != nil {
		existing, claimed, claimErr := s.claimIdempotencyKey(ctx, idempotencyKey)
		if claimErr != nil {
			util.RecordError(span, claimErr)
			return nil, false, claimErr
		}
		if existing != nil {
			util.OrdersReplayedTotal.Inc()
			s.logger.Info("Duplicate order request detected",
				zap.String("idempotency_key", idempotencyKey),
				zap.String("order_id", existing.ID.Hex()))
			return existing, true, nil
		}
		if claimed {
			defer func() {
				s.settleIdempotencyKey(ctx, idempotencyKey, order, err)
			}()
		}
	}

	order, err = s.placeOrder(ctx, req)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues(failureReason(err)).Inc()
		util.RecordError(span, err)
		return nil, false, err
	}

	util.OrdersCreatedTotal.Inc()
	span.SetAttributes(attribute.String("order_id", order.ID.Hex()))
	s.logger.Info("Order created",
		zap.String("order_id", order.ID.Hex()),
		zap.Int("items", len(order.OrderItems)),
		zap.Float64("total_price", order.TotalPrice))

	if s.events != nil {
		if err := s.events.PublishOrderCreated(ctx, order); err != nil {
			s.logger.Error("Failed to publish OrderCreated event",
				zap.String("order_id", order.ID.Hex()),
				zap.Error(err))
		}
	}

	return order, false, nil
}

func (s *OrderService) placeOrder(ctx context.Context, req *PlaceOrderRequest) (*models.Order, error) {
	order := newOrder(req)

	var reserved []stockReservation
	run := func(ctx context.Context) error {
		reserved = reserved[:0]
		for _, item := range req.OrderItems {
			product, err := s.lookupProduct(ctx, item)
			if err != nil {
				return err
			}

			if product.CountInStock < item.Qty {
				util.StockDecrementsFailed.WithLabelValues("insufficient_stock").Inc()
				return &InsufficientStockError{Name: product.Name, Available: product.CountInStock, Requested: item.Qty}
			}

			if err := s.inventory.DecrementStock(ctx, product, item.Qty); err != nil {
				return err
			}
			reserved = append(reserved, stockReservation{ProductID: product.ID, Name: product.Name, Quantity: item.Qty})
		}

		if err := s.store.CreateOrder(ctx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		return nil
	}

	if s.store.SupportsTransactions() {
		if err := s.store.WithTransaction(ctx, run); err != nil {
			return nil, err
		}
		return order, nil
	}

	if err := run(ctx); err != nil {
		if len(reserved) > 0 {
			s.logger.Warn("Order failed, compensating stock decrements",
				zap.Int("reservations", len(reserved)),
				zap.Error(err))
			s.inventory.ReleaseStock(context.WithoutCancel(ctx), reserved)
		}
		return nil, err
	}
	return order, nil
}

// lookupProduct loads the product an item refers to. Unknown and malformed
// ids are both reported as a missing product.
func (s *OrderService) lookupProduct(ctx context.Context, item OrderItemRequest) (*models.Product, error) {
	product, err := s.store.GetProductByID(ctx, item.Product)
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidID) {
		name := item.Name
		if name == "" {
			name = item.Product
		}
		return nil, &ProductNotFoundError{Name: name}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load product %s: %w", item.Product, err)
	}
	return product, nil
}

// newOrder builds the order document from a request. An item whose product
// id does not parse never reaches the store: lookupProduct rejects it first.
func newOrder(req *PlaceOrderRequest) *models.Order {
	items := make([]models.OrderItem, 0, len(req.OrderItems))
	for _, item := range req.OrderItems {
		productID, _ := store.ParseID(item.Product)
		items = append(items, models.OrderItem{
			Name:              item.Name,
			Qty:               item.Qty,
			Image:             item.Image,
			Price:             item.Price,
			Product:           productID,
			PrescriptionImage: item.PrescriptionImage,
		})
	}

	return &models.Order{
		OrderItems:      items,
		ShippingAddress: shippingAddress(req),
		PaymentMethod:   models.DefaultPaymentMethod,
		TotalPrice:      req.TotalPrice,
		IsPaid:          false,
		IsDelivered:     false,
		Status:          models.OrderStatusPending,
	}
}

// shippingAddress overlays the top-level customer details onto the supplied
// address. Empty customer fields leave the address untouched.
func shippingAddress(req *PlaceOrderRequest) models.ShippingAddress {
	a := req.ShippingAddress
	addr := models.ShippingAddress{
		Address:    a.Address,
		City:       a.City,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Phone:      a.Phone,
		Name:       a.Name,
		Email:      a.Email,
	}
	if addr.Country == "" {
		addr.Country = models.DefaultCountry
	}
	if req.CustomerName != "" {
		addr.Name = req.CustomerName
	}
	if req.CustomerMobile != "" {
		addr.Phone = req.CustomerMobile
	}
	if req.CustomerEmail != "" {
		addr.Email = req.CustomerEmail
	}
	return addr
}

// claimIdempotencyKey reserves key for this request and reports whether it
// now holds the key. It returns the stored order when key already completed.
// Idempotency store failures degrade to placing the order without it.
func (s *OrderService) claimIdempotencyKey(ctx context.Context, key string) (*models.Order, bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.idempotency.Reserve(ctx, key)
		if err != nil {
			s.logger.Warn("Idempotency store unavailable, continuing without it",
				zap.String("idempotency_key", key),
				zap.Error(err))
			return nil, false, nil
		}
		if ok {
			return nil, true, nil
		}

		orderID, pending, err := s.idempotency.Lookup(ctx, key)
		if err != nil {
			s.logger.Warn("Idempotency lookup failed, continuing without it",
				zap.String("idempotency_key", key),
				zap.Error(err))
			return nil, false, nil
		}
		if pending {
			return nil, false, ErrRequestInProgress
		}
		if orderID == "" {
			// expired between Reserve and Lookup
			continue
		}

		order, err := s.store.GetOrderByID(ctx, orderID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to load order %s for idempotency key: %w", orderID, err)
		}
		return order, false, nil
	}
	return nil, false, ErrRequestInProgress
}

// settleIdempotencyKey binds key to the created order, or frees it when
// placement failed so the client may retry.
func (s *OrderService) settleIdempotencyKey(ctx context.Context, key string, order *models.Order, err error) {
	ctx = context.WithoutCancel(ctx)
	if err != nil || order == nil {
		if relErr := s.idempotency.Release(ctx, key); relErr != nil {
			s.logger.Error("Failed to release idempotency key",
				zap.String("idempotency_key", key),
				zap.Error(relErr))
		}
		return
	}
	if cErr := s.idempotency.Complete(ctx, key, order.ID.Hex()); cErr != nil {
		s.logger.Error("Failed to complete idempotency key",
			zap.String("idempotency_key", key),
			zap.String("order_id", order.ID.Hex()),
			zap.Error(cErr))
	}
}

func failureReason(err error) string {
	var insufficient *InsufficientStockError
	switch {
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.As(err, &insufficient):
		return "insufficient_stock"
	default:
		return "store_error"
	}
}

// ListOrders returns all orders, newest first
func (s *OrderService) ListOrders(ctx context.Context) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders")
	defer span.End()

	orders, err := s.store.ListOrders(ctx)
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// GetOrder retrieves an order by ID. A malformed id is returned as a store
// error, not ErrOrderNotFound.
func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder",
		trace.WithAttributes(attribute.String("order_id", id)))
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to get order %s: %w", id, err)
	}
	return order, nil
}

// UpdateOrderStatus moves an order to status. Delivered also marks the order
// delivered.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateOrderStatus",
		trace.WithAttributes(
			attribute.String("order_id", id),
			attribute.String("status", string(status)),
		))
	defer span.End()

	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	current, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	order, err := s.store.UpdateOrderStatus(ctx, id, status, s.now())
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to update order %s: %w", id, err)
	}

	util.OrderStatusUpdatesTotal.WithLabelValues(string(status)).Inc()
	s.logger.Info("Order status updated",
		zap.String("order_id", id),
		zap.String("from", string(current.Status)),
		zap.String("to", string(status)))

	if s.events != nil && current.Status != status {
		if err := s.events.PublishOrderStatusChanged(ctx, id, current.Status, status); err != nil {
			s.logger.Error("Failed to publish OrderStatusChanged event",
				zap.String("order_id", id),
				zap.Error(err))
		}
	}

	return order, nil
}
