package service

import (
	"context"
	"testing"

	"pharmacy-api/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestListProducts(t *testing.T) {
	st := store.NewMemoryStore()
	seedCatalog(t, st)
	svc := NewProductService(st)
	ctx := context.Background()

	all, err := svc.ListProducts(ctx, ListProductsRequest{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	pain, err := svc.ListProducts(ctx, ListProductsRequest{Keyword: "brufen"})
	require.NoError(t, err)
	require.Len(t, pain, 1)
	assert.Equal(t, "Ibuprofen 400mg", pain[0].Name)

	vitamins, err := svc.ListProducts(ctx, ListProductsRequest{Category: "Supplements", SubCategory: "Vitamins"})
	require.NoError(t, err)
	require.Len(t, vitamins, 1)

	none, err := svc.ListProducts(ctx, ListProductsRequest{Category: "Supplements", SubCategory: "Pain Relief"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = NewProductService(failingStore{st}).ListProducts(ctx, ListProductsRequest{})
	assert.ErrorIs(t, err, errStoreDown)
}

func TestGetProduct(t *testing.T) {
	st := store.NewMemoryStore()
	catalog := seedCatalog(t, st)
	svc := NewProductService(st)
	ctx := context.Background()

	p, err := svc.GetProduct(ctx, catalog["Vitamin C Tablets"].ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, "Limcee", p.Brand)

	_, err = svc.GetProduct(ctx, primitive.NewObjectID().Hex())
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = svc.GetProduct(ctx, "xyz")
	assert.ErrorIs(t, err, store.ErrInvalidID)
}

func TestCategories(t *testing.T) {
	st := store.NewMemoryStore()
	seedCatalog(t, st)

	categories, err := NewProductService(st).Categories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Medicines", "Supplements"}, categories)

	_, err = NewProductService(failingStore{st}).Categories(context.Background())
	assert.ErrorIs(t, err, errStoreDown)
}
