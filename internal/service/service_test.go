package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"pharmacy-api/internal/models"
	"pharmacy-api/internal/store"

	"github.com/stretchr/testify/require"
)

// memoryIdempotency is an in-process IdempotencyStore.
type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]string
	err  error
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: make(map[string]string)}
}

func (m *memoryIdempotency) Reserve(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = ""
	return true, nil
}

func (m *memoryIdempotency) Lookup(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	orderID, ok := m.keys[key]
	if !ok {
		return "", false, nil
	}
	return orderID, orderID == "", nil
}

func (m *memoryIdempotency) Complete(ctx context.Context, key, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = orderID
	return nil
}

func (m *memoryIdempotency) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

type statusChange struct {
	OrderID  string
	From, To models.OrderStatus
}

// recordingPublisher is an EventPublisher that keeps what it was given.
type recordingPublisher struct {
	mu      sync.Mutex
	created []string
	changed []statusChange
	err     error
}

func (p *recordingPublisher) PublishOrderCreated(ctx context.Context, order *models.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.created = append(p.created, order.ID.Hex())
	return nil
}

func (p *recordingPublisher) PublishOrderStatusChanged(ctx context.Context, orderID string, from, to models.OrderStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.changed = append(p.changed, statusChange{OrderID: orderID, From: from, To: to})
	return nil
}

// failingStore fails every catalog and order read.
type failingStore struct {
	*store.MemoryStore
}

var errStoreDown = errors.New("store down")

func (f failingStore) FindProducts(ctx context.Context, filter store.ProductFilter) ([]models.Product, error) {
	return nil, errStoreDown
}

func (f failingStore) ProductCategories(ctx context.Context) ([]string, error) {
	return nil, errStoreDown
}

func (f failingStore) ListOrders(ctx context.Context) ([]models.Order, error) {
	return nil, errStoreDown
}

func seedCatalog(t *testing.T, st store.Store) map[string]models.Product {
	t.Helper()
	products, err := st.ReplaceProducts(context.Background(), []models.Product{
		{Name: "Paracetamol 500mg", Category: "Medicines", SubCategory: "Pain Relief", Brand: "Crocin", Price: 30, CountInStock: 10, Image: "/images/paracetamol.jpg"},
		{Name: "Ibuprofen 400mg", Category: "Medicines", SubCategory: "Pain Relief", Brand: "Brufen", Price: 25, CountInStock: 5, Image: "/images/ibuprofen.jpg"},
		{Name: "Vitamin C Tablets", Category: "Supplements", SubCategory: "Vitamins", Brand: "Limcee", Price: 20, CountInStock: 100, Image: "/images/vitc.jpg"},
	})
	require.NoError(t, err)

	byName := make(map[string]models.Product, len(products))
	for _, p := range products {
		byName[p.Name] = p
	}
	return byName
}

func stockOf(t *testing.T, st store.Store, p models.Product) int {
	t.Helper()
	got, err := st.GetProductByID(context.Background(), p.ID.Hex())
	require.NoError(t, err)
	return got.CountInStock
}
