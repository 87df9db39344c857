package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Troha7/E-store/internal/entity"
)

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db}
}

func (r *ProductRepository) GetProductByID(ctx context.Context, id int64) (*entity.Product, error) {
	query := `SELECT id, name, description, price FROM products WHERE id = ?`
	return r.getProduct(ctx, query, id)
}

func (r *ProductRepository) GetProductByName(ctx context.Context, name string) (*entity.Product, error) {
	query := `SELECT id, name, description, price FROM products WHERE name = ?`
	return r.getProduct(ctx, query, name)
}

func (r *ProductRepository) CreateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error) {
	query := `INSERT INTO products (name, description, price) VALUES (?, ?, ?)`
	res, err := conn(ctx, r.db).ExecContext(ctx, query, product.Name, product.Description, product.Price)
	if isDuplicateKey(err) {
		return nil, fmt.Errorf("product name %q: %w", product.Name, ErrDuplicate)
	}
	if err != nil {
		return nil, fmt.Errorf("insert product: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert product: %w", err)
	}

	product.ID = id
	return product, nil
}

func (r *ProductRepository) UpdateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error) {
	query := `UPDATE products SET name = ?, description = ?, price = ? WHERE id = ?`
	_, err := conn(ctx, r.db).ExecContext(ctx, query, product.Name, product.Description, product.Price, product.ID)
	if isDuplicateKey(err) {
		return nil, fmt.Errorf("product name %q: %w", product.Name, ErrDuplicate)
	}
	if err != nil {
		return nil, fmt.Errorf("update product %d: %w", product.ID, err)
	}
	return product, nil
}

func (r *ProductRepository) DeleteProduct(ctx context.Context, id int64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if isReferenced(err) {
		return fmt.Errorf("product %d is part of an order: %w", id, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("delete product %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete product %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ProductRepository) GetProducts(ctx context.Context) ([]entity.Product, error) {
	query := `SELECT id, name, description, price FROM products ORDER BY id`
	return r.queryProducts(ctx, query)
}

func (r *ProductRepository) SearchProductsByName(ctx context.Context, name string) ([]entity.Product, error) {
	query := `SELECT id, name, description, price FROM products WHERE name LIKE CONCAT('%', ?, '%') ORDER BY id`
	return r.queryProducts(ctx, query, name)
}

// ExistsProductsByIDs is true iff every id refers to a stored product.
func (r *ProductRepository) ExistsProductsByIDs(ctx context.Context, ids []int64) (bool, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return true, nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}

	query := `SELECT COUNT(*) = ? FROM products WHERE id IN (` + placeholders(len(ids)) + `)`

	var exists bool
	if err := conn(ctx, r.db).QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check products %v: %w", ids, err)
	}
	return exists, nil
}

func (r *ProductRepository) getProduct(ctx context.Context, query string, arg any) (*entity.Product, error) {
	product := &entity.Product{}
	err := conn(ctx, r.db).QueryRowContext(ctx, query, arg).Scan(&product.ID, &product.Name, &product.Description, &product.Price)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return product, nil
}

func (r *ProductRepository) queryProducts(ctx context.Context, query string, args ...any) ([]entity.Product, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := []entity.Product{}
	for rows.Next() {
		var product entity.Product
		if err := rows.Scan(&product.ID, &product.Name, &product.Description, &product.Price); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}
