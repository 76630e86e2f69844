package services

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"marketplace/apperr"
	"marketplace/circuitbreaker"
	"marketplace/middleware"
	"marketplace/models"
	"marketplace/repository"
)

type ProductCache interface {
	Get(ctx context.Context, id string) (*models.Product, error)
	Set(ctx context.Context, p *models.Product) error
	Delete(ctx context.Context, id string) error
}

// ProductService serves vendor listings. Reads go through the cache and the
// database breaker; writes invalidate the cached copy.
type ProductService struct {
	products repository.ProductRepository
	cache    ProductCache
	breaker  *circuitbreaker.CircuitBreaker
	logger   *zap.Logger
}

func NewProductService(products repository.ProductRepository, cache ProductCache, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger) *ProductService {
	return &ProductService{products: products, cache: cache, breaker: breaker, logger: logger}
}

func (s *ProductService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	ctx, span := otel.Tracer("product-service").Start(ctx, "GetProduct")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", id))

	cached, err := s.cache.Get(ctx, id)
	if err == nil {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, nil
	}
	if !errors.Is(err, redis.Nil) {
		s.logger.Warn("Product cache read failed",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("product_id", id),
			zap.Error(err),
		)
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	var product *models.Product
	err = s.breaker.Execute(ctx, func(ctx context.Context) error {
		p, err := s.products.GetByID(ctx, id)
		if err != nil {
			return err
		}
		product = p
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("product not found")
		}
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			span.SetAttributes(attribute.String("circuit.state", "open"))
			return nil, apperr.Gateway("product store temporarily unavailable", err)
		}
		span.RecordError(err)
		return nil, apperr.Persistence("failed to load product", err)
	}

	if err := s.cache.Set(ctx, product); err != nil {
		s.logger.Warn("Failed to cache product", zap.String("product_id", id), zap.Error(err))
	}
	return product, nil
}

// Owners maps product ids to their vendor. Unknown ids are left out.
func (s *ProductService) Owners(ctx context.Context, ids []string) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	owners, err := s.products.OwnersByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Persistence("failed to resolve product owners", err)
	}
	return owners, nil
}

func (s *ProductService) ListVendorProducts(ctx context.Context, vendorID string) ([]models.Product, error) {
	products, err := s.products.ListByVendor(ctx, vendorID)
	if err != nil {
		return nil, apperr.Persistence("failed to list products", err)
	}
	return products, nil
}

func (s *ProductService) CreateProduct(ctx context.Context, vendorID string, req models.CreateProductRequest) (*models.Product, error) {
	if vendorID == "" {
		return nil, apperr.Authentication("vendor must be signed in")
	}
	if req.Price == nil {
		return nil, apperr.ValidationFields("invalid product", map[string]string{"price": "is required"})
	}
	if req.Price.IsNegative() {
		return nil, apperr.ValidationFields("invalid product", map[string]string{"price": "must not be negative"})
	}

	product := &models.Product{
		VendorID:    vendorID,
		Name:        req.Name,
		Description: req.Description,
		Price:       *req.Price,
		Images:      req.Images,
		Category:    req.Category,
		Stock:       req.Stock,
	}
	for _, v := range req.Variants {
		if v.Price != nil && v.Price.IsNegative() {
			return nil, apperr.ValidationFields("invalid product", map[string]string{"variants.price": "must not be negative"})
		}
		product.Variants = append(product.Variants, models.ProductVariant{
			Name:  v.Name,
			Value: v.Value,
			Price: v.Price,
			Stock: v.Stock,
		})
	}

	if err := s.products.Create(ctx, product); err != nil {
		return nil, apperr.Persistence("failed to create product", err)
	}

	s.logger.Info("Product created",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("product_id", product.ID),
		zap.String("vendor_id", vendorID),
	)
	return product, nil
}

func (s *ProductService) UpdateProduct(ctx context.Context, vendorID, id string, req models.UpdateProductRequest) (*models.Product, error) {
	current, err := s.owned(ctx, vendorID, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		current.Name = *req.Name
	}
	if req.Description != nil {
		current.Description = *req.Description
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return nil, apperr.ValidationFields("invalid product", map[string]string{"price": "must not be negative"})
		}
		current.Price = *req.Price
	}
	if req.Images != nil {
		current.Images = req.Images
	}
	if req.Category != nil {
		current.Category = *req.Category
	}
	if req.Stock != nil {
		current.Stock = *req.Stock
	}

	if err := s.products.Update(ctx, current); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("product not found")
		}
		return nil, apperr.Persistence("failed to update product", err)
	}
	s.invalidate(ctx, id)

	s.logger.Info("Product updated", zap.String("product_id", id))
	return current, nil
}

func (s *ProductService) DeleteProduct(ctx context.Context, vendorID, id string) error {
	if _, err := s.owned(ctx, vendorID, id); err != nil {
		return err
	}
	if err := s.products.Delete(ctx, id, vendorID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("product not found")
		}
		return apperr.Persistence("failed to delete product", err)
	}
	s.invalidate(ctx, id)

	s.logger.Info("Product deleted", zap.String("product_id", id))
	return nil
}

func (s *ProductService) owned(ctx context.Context, vendorID, id string) (*models.Product, error) {
	if vendorID == "" {
		return nil, apperr.Authentication("vendor must be signed in")
	}
	product, err := s.products.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("product not found")
		}
		return nil, apperr.Persistence("failed to load product", err)
	}
	if product.VendorID != vendorID {
		return nil, apperr.Authorization("product belongs to another vendor")
	}
	return product, nil
}

func (s *ProductService) invalidate(ctx context.Context, id string) {
	if err := s.cache.Delete(ctx, id); err != nil {
		s.logger.Warn("Failed to invalidate product cache", zap.String("product_id", id), zap.Error(err))
	}
}
