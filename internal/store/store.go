package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pharmacy-api/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrNotFound is returned when no document matches an identifier.
	ErrNotFound = errors.New("not found")
	// ErrInvalidID is returned when an identifier is not a 24 character hex ObjectID.
	ErrInvalidID = errors.New("invalid identifier")
)

// ProductFilter narrows a catalog query. Zero fields are ignored.
type ProductFilter struct {
	Keyword     string
	Category    string
	SubCategory string
}

// IsZero reports whether the filter matches every product.
func (f ProductFilter) IsZero() bool {
	return f.Keyword == "" && f.Category == "" && f.SubCategory == ""
}

// Store is the persistence boundary for the catalog and orders.
//
// DecrementStock is a conditional update: it succeeds only when the product
// holds at least qty units, so concurrent callers can never drive
// countInStock below zero. Calls made with the context handed to the
// WithTransaction callback take part in that transaction.
type Store interface {
	FindProducts(ctx context.Context, filter ProductFilter) ([]models.Product, error)
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
	ProductCategories(ctx context.Context) ([]string, error)
	ReplaceProducts(ctx context.Context, products []models.Product) ([]models.Product, error)
	DeleteAllProducts(ctx context.Context) (int64, error)
	DecrementStock(ctx context.Context, id primitive.ObjectID, qty int) (bool, error)
	IncrementStock(ctx context.Context, id primitive.ObjectID, qty int) error

	CreateOrder(ctx context.Context, order *models.Order) error
	ListOrders(ctx context.Context) ([]models.Order, error)
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus, at time.Time) (*models.Order, error)

	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	SupportsTransactions() bool

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// ParseID converts a hex identifier into an ObjectID.
func ParseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return oid, nil
}

// now returns the current time at the precision the document store keeps.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// prepareProducts assigns identifiers and timestamps to products about to be inserted.
func prepareProducts(products []models.Product) []models.Product {
	out := make([]models.Product, len(products))
	ts := now()
	for i, p := range products {
		if p.ID.IsZero() {
			p.ID = primitive.NewObjectID()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = ts
		}
		p.UpdatedAt = ts
		if p.Tags == nil {
			p.Tags = []string{}
		}
		out[i] = p
	}
	return out
}

// prepareOrder assigns the identifier and timestamps of a new order.
func prepareOrder(order *models.Order) {
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	ts := now()
	order.CreatedAt = ts
	order.UpdatedAt = ts
}

// applyStatus mutates order the way UpdateOrderStatus persists it.
func applyStatus(order *models.Order, status models.OrderStatus, at time.Time) {
	at = at.UTC().Truncate(time.Millisecond)
	order.Status = status
	order.UpdatedAt = at
	if status == models.OrderStatusDelivered && !order.IsDelivered {
		order.IsDelivered = true
		order.DeliveredAt = &at
	}
}
