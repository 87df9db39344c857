package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Troha7/E-store/internal/entity"
	"github.com/Troha7/E-store/internal/repository"
)

type ProductService struct {
	products ProductStore
	cache    ProductCache
	events   EventPublisher
}

// NewProductService creates a new instance of ProductService. cache may be nil, in which
// case every read goes to the store.
func NewProductService(products ProductStore, cache ProductCache, events EventPublisher) *ProductService {
	if events == nil {
		events = nopPublisher{}
	}
	return &ProductService{
		products: products,
		cache:    cache,
		events:   events,
	}
}

func (p *ProductService) Create(ctx context.Context, product *entity.Product) (*entity.Product, error) {
	if err := validateProduct(product); err != nil {
		logger.Warn().Err(err).Msg("Invalid product")
		return nil, err
	}
	logger.Info().Msgf("Start to create product %q", product.Name)

	product.ID = 0
	created, err := p.products.CreateProduct(ctx, product)
	if errors.Is(err, repository.ErrDuplicate) {
		logger.Warn().Msgf("Product %q already exists", product.Name)
		return nil, fmt.Errorf("%w: product %q already exists", ErrConflict, product.Name)
	}
	if err != nil {
		return nil, fail(err, "Error creating product %q", product.Name)
	}

	logger.Info().Msgf("Product id=%d have been created", created.ID)
	return created, nil
}

// Update overwrites the product's fields and drops its cached copy here and, through the
// product event, on every other instance.
func (p *ProductService) Update(ctx context.Context, id int64, product *entity.Product) (*entity.Product, error) {
	logger.Info().Msgf("Start to update product id=%d", id)

	if err := validateProduct(product); err != nil {
		logger.Warn().Err(err).Msg("Invalid product")
		return nil, err
	}

	if _, err := p.products.GetProductByID(ctx, id); err != nil {
		return nil, fail(err, "Product id=%d wasn't found", id)
	}

	product.ID = id
	updated, err := p.products.UpdateProduct(ctx, product)
	if errors.Is(err, repository.ErrDuplicate) {
		logger.Warn().Msgf("Product %q already exists", product.Name)
		return nil, fmt.Errorf("%w: product %q already exists", ErrConflict, product.Name)
	}
	if err != nil {
		return nil, fail(err, "Error updating product id=%d", id)
	}

	p.InvalidateCache(ctx, id)
	p.publish(ctx, entity.EventProductUpdated, id, updated)
	logger.Info().Msgf("Product id=%d have been updated", id)
	return updated, nil
}

// FindByID reads through the cache.
func (p *ProductService) FindByID(ctx context.Context, id int64) (*entity.Product, error) {
	if p.cache != nil {
		cached, err := p.cache.Get(ctx, id)
		if err != nil {
			logger.Error().Err(err).Msgf("Error getting product %d from cache", id)
		}
		if cached != nil {
			return cached, nil
		}
		logger.Debug().Msgf("Product %d not found in cache", id)
	}

	product, err := p.products.GetProductByID(ctx, id)
	if err != nil {
		return nil, fail(err, "Product id=%d wasn't found", id)
	}

	// Write to cache
	if p.cache != nil {
		if err := p.cache.Set(ctx, product); err != nil {
			logger.Error().Err(err).Msgf("Error setting product %d in cache", id)
		}
	}
	return product, nil
}

func (p *ProductService) FindAll(ctx context.Context) ([]entity.Product, error) {
	products, err := p.products.GetProducts(ctx)
	if err != nil {
		return nil, fail(err, "Error getting products")
	}
	return products, nil
}

// FindByNameContaining returns the products whose name contains name. No match is reported
// as ErrEntityNotFound.
func (p *ProductService) FindByNameContaining(ctx context.Context, name string) ([]entity.Product, error) {
	logger.Info().Msgf("Start to find products by name containing %q", name)

	products, err := p.products.SearchProductsByName(ctx, name)
	if err != nil {
		return nil, fail(err, "Error searching products by name %q", name)
	}
	if len(products) == 0 {
		logger.Warn().Msgf("Products with name containing %q weren't found", name)
		return nil, fmt.Errorf("%w: products with name containing %q", ErrEntityNotFound, name)
	}
	return products, nil
}

func (p *ProductService) DeleteByID(ctx context.Context, id int64) error {
	logger.Info().Msgf("Start to delete product id=%d", id)

	if err := p.products.DeleteProduct(ctx, id); err != nil {
		return fail(err, "Error deleting product id=%d", id)
	}

	p.InvalidateCache(ctx, id)
	p.publish(ctx, entity.EventProductDeleted, id, nil)
	logger.Info().Msgf("Product id=%d has been deleted", id)
	return nil
}

// InvalidateCache drops the cached copy of a product. Cache errors are only logged.
func (p *ProductService) InvalidateCache(ctx context.Context, id int64) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Delete(ctx, id); err != nil {
		logger.Error().Err(err).Msgf("Error deleting product %d from cache", id)
	}
}

// PreWarmCache pre-warms the cache with product data.
func (p *ProductService) PreWarmCache(ctx context.Context) error {
	if p.cache == nil {
		return nil
	}

	products, err := p.products.GetProducts(ctx)
	if err != nil {
		return fail(err, "Error getting products")
	}

	for i := range products {
		if err := p.cache.Set(ctx, &products[i]); err != nil {
			logger.Error().Err(err).Msgf("Error setting product %d in cache", products[i].ID)
		}
	}

	logger.Info().Msgf("Cache pre-warmed with %d product(s)", len(products))
	return nil
}

func (p *ProductService) publish(ctx context.Context, eventType string, id int64, payload any) {
	if err := p.events.Publish(ctx, eventType, id, payload); err != nil {
		logger.Error().Err(err).Msgf("Error publishing product %s event for product id=%d", eventType, id)
	}
}

func validateProduct(product *entity.Product) error {
	if product == nil {
		return fmt.Errorf("%w: product is required", ErrInvalidInput)
	}
	if strings.TrimSpace(product.Name) == "" {
		return fmt.Errorf("%w: product name is required", ErrInvalidInput)
	}
	if product.Price.IsNegative() {
		return fmt.Errorf("%w: product price %s is negative", ErrInvalidInput, product.Price)
	}
	if !product.Price.Equal(product.Price.Round(2)) {
		return fmt.Errorf("%w: product price %s has more than 2 decimal places", ErrInvalidInput, product.Price)
	}
	return nil
}
