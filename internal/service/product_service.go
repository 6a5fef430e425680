package service

import (
	"context"
	"errors"
	"fmt"

	"pharmacy-api/internal/models"
	"pharmacy-api/internal/store"
	"pharmacy-api/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ProductService serves catalog queries
type ProductService struct {
	store  store.Store
	logger *zap.Logger
}

// NewProductService creates a new product service
func NewProductService(st store.Store) *ProductService {
	return &ProductService{
		store:  st,
		logger: util.GetLogger(),
	}
}

// ListProductsRequest holds the optional catalog filters
type ListProductsRequest struct {
	Keyword     string `form:"keyword"`
	Category    string `form:"category"`
	SubCategory string `form:"subCategory"`
}

// ListProducts returns every product matching the request. Keyword matches
// name, brand or category case-insensitively; category and subCategory must
// match exactly.
func (s *ProductService) ListProducts(ctx context.Context, req ListProductsRequest) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.ListProducts",
		trace.WithAttributes(
			attribute.String("keyword", req.Keyword),
			attribute.String("category", req.Category),
			attribute.String("sub_category", req.SubCategory),
		))
	defer span.End()

	filter := store.ProductFilter{
		Keyword:     req.Keyword,
		Category:    req.Category,
		SubCategory: req.SubCategory,
	}

	filtered := "false"
	if !filter.IsZero() {
		filtered = "true"
	}
	util.ProductQueriesTotal.WithLabelValues(filtered).Inc()

	products, err := s.store.FindProducts(ctx, filter)
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	span.SetAttributes(attribute.Int("results", len(products)))
	s.logger.Debug("Products listed",
		zap.String("keyword", req.Keyword),
		zap.String("category", req.Category),
		zap.String("sub_category", req.SubCategory),
		zap.Int("count", len(products)))
	return products, nil
}

// GetProduct returns one product by id
func (s *ProductService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.GetProduct")
	defer span.End()

	product, err := s.store.GetProductByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to get product %s: %w", id, err)
	}
	return product, nil
}

// Categories returns the distinct product categories, sorted
func (s *ProductService) Categories(ctx context.Context) ([]string, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.Categories")
	defer span.End()

	categories, err := s.store.ProductCategories(ctx)
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}
