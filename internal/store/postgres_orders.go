package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pharmacy-api/internal/models"

	"github.com/jmoiron/sqlx"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type orderRow struct {
	ID              string                        `db:"id"`
	UserID          sql.NullString                `db:"user_id"`
	OrderItems      jsonb[[]models.OrderItem]     `db:"order_items"`
	ShippingAddress jsonb[models.ShippingAddress] `db:"shipping_address"`
	PaymentMethod   string                        `db:"payment_method"`
	PaymentResult   jsonb[*models.PaymentResult]  `db:"payment_result"`
	TotalPrice      float64                       `db:"total_price"`
	IsPaid          bool                          `db:"is_paid"`
	PaidAt          sql.NullTime                  `db:"paid_at"`
	IsDelivered     bool                          `db:"is_delivered"`
	DeliveredAt     sql.NullTime                  `db:"delivered_at"`
	Status          string                        `db:"status"`
	CreatedAt       time.Time                     `db:"created_at"`
	UpdatedAt       time.Time                     `db:"updated_at"`
}

func newOrderRow(o *models.Order) orderRow {
	row := orderRow{
		ID:              o.ID.Hex(),
		OrderItems:      jsonb[[]models.OrderItem]{V: o.OrderItems},
		ShippingAddress: jsonb[models.ShippingAddress]{V: o.ShippingAddress},
		PaymentMethod:   o.PaymentMethod,
		PaymentResult:   jsonb[*models.PaymentResult]{V: o.PaymentResult},
		TotalPrice:      o.TotalPrice,
		IsPaid:          o.IsPaid,
		IsDelivered:     o.IsDelivered,
		Status:          string(o.Status),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	if o.User != nil {
		row.UserID = sql.NullString{String: o.User.Hex(), Valid: true}
	}
	if o.PaidAt != nil {
		row.PaidAt = sql.NullTime{Time: *o.PaidAt, Valid: true}
	}
	if o.DeliveredAt != nil {
		row.DeliveredAt = sql.NullTime{Time: *o.DeliveredAt, Valid: true}
	}
	return row
}

func (r orderRow) model() (*models.Order, error) {
	id, err := primitive.ObjectIDFromHex(r.ID)
	if err != nil {
		return nil, fmt.Errorf("corrupt order id %q: %w", r.ID, err)
	}
	o := &models.Order{
		ID:              id,
		OrderItems:      r.OrderItems.V,
		ShippingAddress: r.ShippingAddress.V,
		PaymentMethod:   r.PaymentMethod,
		PaymentResult:   r.PaymentResult.V,
		TotalPrice:      r.TotalPrice,
		IsPaid:          r.IsPaid,
		IsDelivered:     r.IsDelivered,
		Status:          models.OrderStatus(r.Status),
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
	if o.OrderItems == nil {
		o.OrderItems = []models.OrderItem{}
	}
	if r.UserID.Valid {
		if uid, err := primitive.ObjectIDFromHex(r.UserID.String); err == nil {
			o.User = &uid
		}
	}
	if r.PaidAt.Valid {
		t := r.PaidAt.Time.UTC()
		o.PaidAt = &t
	}
	if r.DeliveredAt.Valid {
		t := r.DeliveredAt.Time.UTC()
		o.DeliveredAt = &t
	}
	return o, nil
}

func (s *PostgresStore) CreateOrder(ctx context.Context, order *models.Order) error {
	prepareOrder(order)

	_, err := sqlx.NamedExecContext(ctx, s.conn(ctx), `
		INSERT INTO orders (id, user_id, order_items, shipping_address, payment_method,
			payment_result, total_price, is_paid, paid_at, is_delivered, delivered_at,
			status, created_at, updated_at)
		VALUES (:id, :user_id, :order_items, :shipping_address, :payment_method,
			:payment_result, :total_price, :is_paid, :paid_at, :is_delivered, :delivered_at,
			:status, :created_at, :updated_at)`,
		newOrderRow(order))
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListOrders(ctx context.Context) ([]models.Order, error) {
	var rows []orderRow
	if err := sqlx.SelectContext(ctx, s.conn(ctx), &rows, "SELECT * FROM orders ORDER BY created_at DESC, id DESC"); err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}

	orders := make([]models.Order, 0, len(rows))
	for _, r := range rows {
		o, err := r.model()
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, nil
}

func (s *PostgresStore) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}

	var row orderRow
	err = sqlx.GetContext(ctx, s.conn(ctx), &row, "SELECT * FROM orders WHERE id = $1", oid.Hex())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return row.model()
}

func (s *PostgresStore) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus, at time.Time) (*models.Order, error) {
	var updated *models.Order
	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		oid, err := ParseID(id)
		if err != nil {
			return err
		}

		var row orderRow
		err = sqlx.GetContext(ctx, s.conn(ctx), &row, "SELECT * FROM orders WHERE id = $1 FOR UPDATE", oid.Hex())
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("order %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return err
		}

		order, err := row.model()
		if err != nil {
			return err
		}
		applyStatus(order, status, at)

		next := newOrderRow(order)
		_, err = s.conn(ctx).ExecContext(ctx,
			`UPDATE orders SET status = $1, updated_at = $2, is_delivered = $3, delivered_at = $4
			 WHERE id = $5`,
			next.Status, next.UpdatedAt, next.IsDelivered, next.DeliveredAt, next.ID)
		if err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
