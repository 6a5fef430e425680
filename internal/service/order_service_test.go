package service

import (
	"context"
	"errors"
	"testing"

	"pharmacy-api/internal/models"
	"pharmacy-api/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"
)

func newOrderService(st store.Store, idem IdempotencyStore, events EventPublisher) *OrderService {
	return NewOrderService(st, NewInventoryClient(st), idem, events)
}

func itemFor(p models.Product, qty int) OrderItemRequest {
	return OrderItemRequest{
		Product: p.ID.Hex(),
		Name:    p.Name,
		Qty:     qty,
		Image:   p.Image,
		Price:   p.Price,
	}
}

func orderRequest(items ...OrderItemRequest) *PlaceOrderRequest {
	var total float64
	for _, it := range items {
		total += it.Price * float64(it.Qty)
	}
	return &PlaceOrderRequest{
		OrderItems:     items,
		CustomerName:   "Asha Rao",
		CustomerMobile: "9876543210",
		CustomerEmail:  "asha@example.com",
		ShippingAddress: ShippingAddressRequest{
			Address:    "12 MG Road",
			City:       "Pune",
			PostalCode: "411001",
		},
		TotalPrice: total,
	}
}

func TestPlaceOrderDecrementsStock(t *testing.T) {
	st := store.NewMemoryStore()
	catalog := seedCatalog(t, st)
	events := &recordingPublisher{}
	svc := newOrderService(st, nil, events)

	para := catalog["Paracetamol 500mg"]
	vitc := catalog["Vitamin C Tablets"]

	order, replayed, err := svc.PlaceOrder(context.Background(), orderRequest(itemFor(para, 3), itemFor(vitc, 10)), "")
	require.NoError(t, err)
	assert.False(t, replayed)

	assert.False(t, order.ID.IsZero())
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.DefaultPaymentMethod, order.PaymentMethod)
	assert.False(t, order.IsPaid)
	assert.False(t, order.IsDelivered)
	assert.Nil(t, order.User)
	assert.Equal(t, 290.0, order.TotalPrice)
	require.Len(t, order.OrderItems, 2)
	assert.Equal(t, para.ID, order.OrderItems[0].Product)
	assert.Equal(t, 3, order.OrderItems[0].Qty)

	assert.Equal(t, 7, stockOf(t, st, para))
	assert.Equal(t, 90, stockOf(t, st, vitc))

	stored, err := st.GetOrderByID(context.Background(), order.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, order.ShippingAddress, stored.ShippingAddress)

	assert.Equal(t, []string{order.ID.Hex()}, events.created)
}

func TestPlaceOrderExactStock(t *testing.T) {
	st := store.NewMemoryStore()
	catalog := seedCatalog(t, st)
	svc := newOrderService(st, nil, nil)
	ibu := catalog["Ibuprofen 400mg"]

	_, _, err := svc.PlaceOrder(context.Background(), orderRequest(itemFor(ibu, 5)), "")
	require.NoError(t, err)
	assert.Equal(t, 0, stockOf(t, st, ibu))
}

func TestPlaceOrderEmpty(t *testing.T) {
	st := store.NewMemoryStore()
	seedCatalog(t, st)
	svc := newOrderService(st, nil, nil)

	for _, req := range []*PlaceOrderRequest{orderRequest(), {OrderItems: nil}} {
		_, _, err := svc.PlaceOrder(context.Background(), req, "")
		assert.ErrorIs(t, err, ErrEmptyOrder)
	}

	orders, err := st.ListOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestPlaceOrderFailureLeavesStockUnchanged(t *testing.T) {
	modes := []struct {
		name string
		opts []store.MemoryOption
	}{
		{name: "transactional"},
		{name: "compensated", opts: []store.MemoryOption{store.WithoutTransactions()}},
	}

	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			t.Run("missing product", func(t *testing.T) {
				st := store.NewMemoryStore(mode.opts...)
				catalog := seedCatalog(t, st)
				svc := newOrderService(st, nil, nil)
				para := catalog["Paracetamol 500mg"]

				missing := OrderItemRequest{Product: primitive.NewObjectID().Hex(), Name: "Insulin Pen", Qty: 1, Image: "x", Price: 1}
				_, _, err := svc.PlaceOrder(context.Background(), orderRequest(itemFor(para, 2), missing), "")

				var notFound *ProductNotFoundError
				require.ErrorAs(t, err, &notFound)
				assert.Equal(t, "Product not found: Insulin Pen", notFound.Message())
				assert.ErrorIs(t, err, ErrProductNotFound)

				assert.Equal(t, 10, stockOf(t, st, para))
				orders, err := st.ListOrders(context.Background())
				require.NoError(t, err)
				assert.Empty(t, orders)
			})

			t.Run("insufficient stock", func(t *testing.T) {
				st := store.NewMemoryStore(mode.opts...)
				catalog := seedCatalog(t, st)
				svc := newOrderService(st, nil, nil)
				para := catalog["Paracetamol 500mg"]
				vitc := catalog["Vitamin C Tablets"]
				ibu := catalog["Ibuprofen 400mg"]

				_, _, err := svc.PlaceOrder(context.Background(),
					orderRequest(itemFor(para, 4), itemFor(vitc, 1), itemFor(ibu, 6)), "")

				var insufficient *InsufficientStockError
				require.ErrorAs(t, err, &insufficient)
				assert.Equal(t, "Not enough stock for Ibuprofen 400mg. Available: 5, Requested: 6", insufficient.Message())

				assert.Equal(t, 10, stockOf(t, st, para))
				assert.Equal(t, 100, stockOf(t, st, vitc))
				assert.Equal(t, 5, stockOf(t, st, ibu))
			})
		})
	}
}

func TestPlaceOrderMalformedProductID(t *testing.T) {
	st := store.NewMemoryStore()
	seedCatalog(t, st)
	svc := newOrderService(st, nil, nil)

	item := OrderItemRequest{Product: "not-an-object-id", Name: "Mystery", Qty: 1, Image: "x"}
	_, _, err := svc.PlaceOrder(context.Background(), orderRequest(item), "")

	var notFound *ProductNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "Mystery", notFound.Name)
}

func TestPlaceOrderConcurrentNeverOversells(t *testing.T) {
	for _, opts := range [][]store.MemoryOption{nil, {store.WithoutTransactions()}} {
		st := store.NewMemoryStore(opts...)
		catalog := seedCatalog(t, st)
		svc := newOrderService(st, nil, nil)
		para := catalog["Paracetamol 500mg"]

		results := make(chan error, 12)
		var g errgroup.Group
		for i := 0; i < 12; i++ {
			g.Go(func() error {
				_, _, err := svc.PlaceOrder(context.Background(), orderRequest(itemFor(para, 3)), "")
				results <- err
				return nil
			})
		}
		require.NoError(t, g.Wait())
		close(results)

		placed := 0
		for err := range results {
			if err == nil {
				placed++
				continue
			}
			var insufficient *InsufficientStockError
			assert.ErrorAs(t, err, &insufficient)
		}

		assert.Equal(t, 3, placed)
		assert.Equal(t, 1, stockOf(t, st, para))

		orders, err := st.ListOrders(context.Background())
		require.NoError(t, err)
		assert.Len(t, orders, 3)
	}
}

func TestPlaceOrderIdempotentReplay(t *testing.T) {
	st := store.NewMemoryStore()
	catalog := seedCatalog(t, st)
	idem := newMemoryIdempotency()
	events := &recordingPublisher{}
	svc := newOrderService(st, idem, events)
	para := catalog["Paracetamol 500mg"]

	first, replayed, err := svc.PlaceOrder(context.Background(), orderRequest(itemFor(para, 2)), "key-1")
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, first.ID.Hex(), idem.keys["key-1"])

	second, replayed, err := svc.PlaceOrder(context.Background(), orderRequest(itemFor(para, 2)), "key-1")
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, second.ID)

	assert.Equal(t, 8, stockOf(t, st, para))
	assert.Len(t, events.created, 1)

	_, replayed, err = svc.PlaceOrder(context.Background(), orderRequest(itemFor(para, 2)), "key-2")
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, 6, stockOf(t, st, para))
}

func TestPlaceOrderIdempotencyInProgress(t *testing.T) {
	st := store.NewMemoryStore()
	catalog := seedCatalog(t, st)
	idem := newMemoryIdempotency()
	idem.keys["busy"] = ""
	svc := newOrderService(st, idem, nil)
	para := catalog["Paracetamol 500mg"]

	_, _, err := svc.PlaceOrder(context.Background(), orderRequest(itemFor(para, 1)), "busy")
	assert.ErrorIs(t, err, ErrRequestInProgress)
	assert.Equal(t, 10, stockOf(t, st, para))
}

func TestPlaceOrderReleasesKeyOnFailure(t *testing.T) {
	st := store.NewMemoryStore()
	catalog := seedCatalog(t, st)
	idem := newMemoryIdempotency()
	svc := newOrderService(st, idem, nil)
	ibu := catalog["Ibuprofen 400mg"]

	_, _, err := svc.PlaceOrder(context.Background(), orderRequest(itemFor(ibu, 50)), "retry-me")
	require.Error(t, err)
	_, held := idem.keys["retry-me"]
	assert.False(t, held)

	_, _, err = svc.PlaceOrder(context.Background(), orderRequest(itemFor(ibu, 5)), "retry-me")
	require.NoError(t, err)
	assert.NotEmpty(t, idem.keys["retry-me"])
}

func TestPlaceOrderIdempotencyStoreDown(t *testing.T) {
	st := store.NewMemoryStore()
	catalog := seedCatalog(t, st)
	idem := newMemoryIdempotency()
	idem.err = errors.New("connection refused")
	svc := newOrderService(st, idem, nil)

	_, replayed, err := svc.PlaceOrder(context.Background(), orderRequest(itemFor(catalog["Paracetamol 500mg"], 1)), "key")
	require.NoError(t, err)
	assert.False(t, replayed)
}

func TestPlaceOrderPublishFailureIsNotFatal(t *testing.T) {
	st := store.NewMemoryStore()
	catalog := seedCatalog(t, st)
	svc := newOrderService(st, nil, &recordingPublisher{err: errors.New("broker down")})

	order, _, err := svc.PlaceOrder(context.Background(), orderRequest(itemFor(catalog["Paracetamol 500mg"], 1)), "")
	require.NoError(t, err)
	assert.NotNil(t, order)
}

func TestShippingAddressOverlay(t *testing.T) {
	tests := []struct {
		name string
		req  PlaceOrderRequest
		want models.ShippingAddress
	}{
		{
			name: "customer details override address fields",
			req: PlaceOrderRequest{
				CustomerName:   "Asha",
				CustomerMobile: "999",
				CustomerEmail:  "asha@example.com",
				ShippingAddress: ShippingAddressRequest{
					Address: "1 Main St", City: "Pune", PostalCode: "411001", Country: "Nepal",
					Name: "Old", Phone: "000", Email: "old@example.com",
				},
			},
			want: models.ShippingAddress{
				Address: "1 Main St", City: "Pune", PostalCode: "411001", Country: "Nepal",
				Name: "Asha", Phone: "999", Email: "asha@example.com",
			},
		},
		{
			name: "empty customer details keep address fields",
			req: PlaceOrderRequest{
				ShippingAddress: ShippingAddressRequest{
					Address: "1 Main St", City: "Pune", PostalCode: "411001", Name: "Ravi",
				},
			},
			want: models.ShippingAddress{
				Address: "1 Main St", City: "Pune", PostalCode: "411001", Country: "India", Name: "Ravi",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shippingAddress(&tt.req))
		})
	}
}

func TestListAndGetOrders(t *testing.T) {
	st := store.NewMemoryStore()
	catalog := seedCatalog(t, st)
	svc := newOrderService(st, nil, nil)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		order, _, err := svc.PlaceOrder(ctx, orderRequest(itemFor(catalog["Vitamin C Tablets"], 1)), "")
		require.NoError(t, err)
		ids = append(ids, order.ID.Hex())
	}

	orders, err := svc.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]},
		[]string{orders[0].ID.Hex(), orders[1].ID.Hex(), orders[2].ID.Hex()})

	got, err := svc.GetOrder(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, ids[0], got.ID.Hex())

	_, err = svc.GetOrder(ctx, primitive.NewObjectID().Hex())
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = svc.GetOrder(ctx, "bogus")
	assert.ErrorIs(t, err, store.ErrInvalidID)
	assert.NotErrorIs(t, err, ErrOrderNotFound)

	_, err = newOrderService(failingStore{st}, nil, nil).ListOrders(ctx)
	assert.ErrorIs(t, err, errStoreDown)
}

func TestUpdateOrderStatus(t *testing.T) {
	st := store.NewMemoryStore()
	catalog := seedCatalog(t, st)
	events := &recordingPublisher{}
	svc := newOrderService(st, nil, events)
	ctx := context.Background()

	order, _, err := svc.PlaceOrder(ctx, orderRequest(itemFor(catalog["Paracetamol 500mg"], 1)), "")
	require.NoError(t, err)
	id := order.ID.Hex()

	_, err = svc.UpdateOrderStatus(ctx, id, models.OrderStatus("Lost"))
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = svc.UpdateOrderStatus(ctx, primitive.NewObjectID().Hex(), models.OrderStatusShipped)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	shipped, err := svc.UpdateOrderStatus(ctx, id, models.OrderStatusShipped)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, shipped.Status)
	assert.False(t, shipped.IsDelivered)

	delivered, err := svc.UpdateOrderStatus(ctx, id, models.OrderStatusDelivered)
	require.NoError(t, err)
	assert.True(t, delivered.IsDelivered)
	assert.NotNil(t, delivered.DeliveredAt)

	_, err = svc.UpdateOrderStatus(ctx, id, models.OrderStatusDelivered)
	require.NoError(t, err)

	assert.Equal(t, []statusChange{
		{OrderID: id, From: models.OrderStatusPending, To: models.OrderStatusShipped},
		{OrderID: id, From: models.OrderStatusShipped, To: models.OrderStatusDelivered},
	}, events.changed)
}
