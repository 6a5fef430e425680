package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"pharmacy-api/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type memTxKey struct{}

// memTx records how to undo the writes made inside a transaction.
type memTx struct {
	undo []func()
}

// MemoryStore is an in-process Store used by tests and STORE_DRIVER=memory.
// Transactions roll back on error but are not isolated from each other.
type MemoryStore struct {
	mu           sync.RWMutex
	products     map[primitive.ObjectID]models.Product
	productSeq   map[primitive.ObjectID]int64
	orders       map[primitive.ObjectID]models.Order
	orderSeq     map[primitive.ObjectID]int64
	seq          int64
	transactions bool
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithoutTransactions makes WithTransaction run its callback without
// rollback, like a standalone MongoDB server.
func WithoutTransactions() MemoryOption {
	return func(s *MemoryStore) { s.transactions = false }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		products:     make(map[primitive.ObjectID]models.Product),
		productSeq:   make(map[primitive.ObjectID]int64),
		orders:       make(map[primitive.ObjectID]models.Order),
		orderSeq:     make(map[primitive.ObjectID]int64),
		transactions: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.transactions {
		return fn(ctx)
	}
	if _, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		return fn(ctx)
	}

	tx := &memTx{}
	if err := fn(context.WithValue(ctx, memTxKey{}, tx)); err != nil {
		s.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *MemoryStore) SupportsTransactions() bool { return s.transactions }

// record registers an undo step. Callers must hold s.mu.
func (s *MemoryStore) record(ctx context.Context, undo func()) {
	if tx, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		tx.undo = append(tx.undo, undo)
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close(ctx context.Context) error { return nil }

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func matchesProduct(p models.Product, f ProductFilter) bool {
	if f.Keyword != "" &&
		!containsFold(p.Name, f.Keyword) &&
		!containsFold(p.Brand, f.Keyword) &&
		!containsFold(p.Category, f.Keyword) {
		return false
	}
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.SubCategory != "" && p.SubCategory != f.SubCategory {
		return false
	}
	return true
}

func cloneProduct(p models.Product) models.Product {
	p.Tags = append([]string{}, p.Tags...)
	if p.OriginalPrice != nil {
		v := *p.OriginalPrice
		p.OriginalPrice = &v
	}
	return p
}

func cloneOrder(o models.Order) models.Order {
	o.OrderItems = append([]models.OrderItem{}, o.OrderItems...)
	if o.DeliveredAt != nil {
		t := *o.DeliveredAt
		o.DeliveredAt = &t
	}
	if o.PaidAt != nil {
		t := *o.PaidAt
		o.PaidAt = &t
	}
	if o.PaymentResult != nil {
		r := *o.PaymentResult
		o.PaymentResult = &r
	}
	return o
}

func (s *MemoryStore) FindProducts(ctx context.Context, filter ProductFilter) ([]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := []models.Product{}
	for _, p := range s.products {
		if matchesProduct(p, filter) {
			products = append(products, cloneProduct(p))
		}
	}
	sort.Slice(products, func(i, j int) bool {
		return s.productSeq[products[i].ID] < s.productSeq[products[j].ID]
	})
	return products, nil
}

func (s *MemoryStore) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[oid]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	p = cloneProduct(p)
	return &p, nil
}

func (s *MemoryStore) ProductCategories(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	categories := []string{}
	for _, p := range s.products {
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		categories = append(categories, p.Category)
	}
	sort.Strings(categories)
	return categories, nil
}

func (s *MemoryStore) ReplaceProducts(ctx context.Context, products []models.Product) ([]models.Product, error) {
	prepared := prepareProducts(products)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.products = make(map[primitive.ObjectID]models.Product, len(prepared))
	s.productSeq = make(map[primitive.ObjectID]int64, len(prepared))
	out := make([]models.Product, 0, len(prepared))
	for _, p := range prepared {
		s.seq++
		s.products[p.ID] = cloneProduct(p)
		s.productSeq[p.ID] = s.seq
		out = append(out, cloneProduct(p))
	}
	return out, nil
}

func (s *MemoryStore) DeleteAllProducts(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := int64(len(s.products))
	s.products = make(map[primitive.ObjectID]models.Product)
	s.productSeq = make(map[primitive.ObjectID]int64)
	return n, nil
}

func (s *MemoryStore) DecrementStock(ctx context.Context, id primitive.ObjectID, qty int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok || p.CountInStock < qty {
		return false, nil
	}
	prev := p
	p.CountInStock -= qty
	p.UpdatedAt = now()
	s.products[id] = p

	s.record(ctx, func() {
		cur, ok := s.products[id]
		if !ok {
			return
		}
		cur.CountInStock += qty
		cur.UpdatedAt = prev.UpdatedAt
		s.products[id] = cur
	})
	return true, nil
}

func (s *MemoryStore) IncrementStock(ctx context.Context, id primitive.ObjectID, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return nil
	}
	p.CountInStock += qty
	p.UpdatedAt = now()
	s.products[id] = p

	s.record(ctx, func() {
		if cur, ok := s.products[id]; ok {
			cur.CountInStock -= qty
			s.products[id] = cur
		}
	})
	return nil
}

func (s *MemoryStore) CreateOrder(ctx context.Context, order *models.Order) error {
	prepareOrder(order)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.ID]; exists {
		return fmt.Errorf("order %s already exists", order.ID.Hex())
	}
	s.seq++
	s.orders[order.ID] = cloneOrder(*order)
	s.orderSeq[order.ID] = s.seq

	id := order.ID
	s.record(ctx, func() {
		delete(s.orders, id)
		delete(s.orderSeq, id)
	})
	return nil
}

func (s *MemoryStore) ListOrders(ctx context.Context) ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]models.Order, 0, len(s.orders))
	for _, o := range s.orders {
		orders = append(orders, cloneOrder(o))
	}
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return s.orderSeq[orders[i].ID] > s.orderSeq[orders[j].ID]
	})
	return orders, nil
}

func (s *MemoryStore) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[oid]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	o = cloneOrder(o)
	return &o, nil
}

func (s *MemoryStore) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus, at time.Time) (*models.Order, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[oid]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	prev := cloneOrder(o)
	applyStatus(&o, status, at)
	s.orders[oid] = o

	s.record(ctx, func() { s.orders[oid] = prev })

	o = cloneOrder(o)
	return &o, nil
}
