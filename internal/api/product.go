package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Troha7/E-store/internal/entity"
)

type ProductService interface {
	Create(ctx context.Context, product *entity.Product) (*entity.Product, error)
	Update(ctx context.Context, id int64, product *entity.Product) (*entity.Product, error)
	FindByID(ctx context.Context, id int64) (*entity.Product, error)
	FindAll(ctx context.Context) ([]entity.Product, error)
	FindByNameContaining(ctx context.Context, name string) ([]entity.Product, error)
	DeleteByID(ctx context.Context, id int64) error
	PreWarmCache(ctx context.Context) error
}

type ProductHandler struct {
	productService ProductService
}

// NewProductHandler creates a new instance of ProductHandler
func NewProductHandler(productService ProductService) *ProductHandler {
	return &ProductHandler{productService: productService}
}

// CreateProduct --> POST /products
func (ph *ProductHandler) CreateProduct(c echo.Context) error {
	req := productRequest{}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request payload")
	}
	product, err := ph.productService.Create(c.Request().Context(), req.toProduct())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, toProductResponse(product))
}

// UpdateProduct --> PUT /products/:id
func (ph *ProductHandler) UpdateProduct(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid product ID")
	}
	req := productRequest{}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request payload")
	}
	product, err := ph.productService.Update(c.Request().Context(), id, req.toProduct())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, toProductResponse(product))
}

// GetProduct --> GET /products/:id
func (ph *ProductHandler) GetProduct(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid product ID")
	}
	product, err := ph.productService.FindByID(c.Request().Context(), id)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, toProductResponse(product))
}

// GetProducts --> GET /products
func (ph *ProductHandler) GetProducts(c echo.Context) error {
	products, err := ph.productService.FindAll(c.Request().Context())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, toProductResponses(products))
}

// SearchProducts --> GET /products/search?name=
func (ph *ProductHandler) SearchProducts(c echo.Context) error {
	products, err := ph.productService.FindByNameContaining(c.Request().Context(), c.QueryParam("name"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, toProductResponses(products))
}

// DeleteProduct --> DELETE /products/:id
func (ph *ProductHandler) DeleteProduct(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid product ID")
	}
	if err := ph.productService.DeleteByID(c.Request().Context(), id); err != nil {
		return errorJSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// PreWarmupCache pre-warms the cache with product data --> /products/warmup-cache
func (ph *ProductHandler) PreWarmupCache(c echo.Context) error {
	if err := ph.productService.PreWarmCache(c.Request().Context()); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Cache pre-warmed"})
}
