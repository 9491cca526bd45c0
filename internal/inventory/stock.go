package inventory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/leafplant/farmstock/internal/database"
	"github.com/leafplant/farmstock/internal/models"
)

const selectProduct = `
	SELECT id, name, price, quantity, status, category, created_at, updated_at, version
	FROM products`

func scanProduct(row *sql.Row) (*models.Product, error) {
	product := &models.Product{}
	err := row.Scan(
		&product.ID,
		&product.Name,
		&product.Price,
		&product.Quantity,
		&product.Status,
		&product.Category,
		&product.CreatedAt,
		&product.UpdatedAt,
		&product.Version,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return product, nil
}

func lockProduct(ctx context.Context, tx *sql.Tx, id int64) (*models.Product, error) {
	product := &models.Product{}
	err := tx.QueryRowContext(ctx, selectProduct+`
		WHERE id = $1
		FOR UPDATE`, id).Scan(
		&product.ID,
		&product.Name,
		&product.Price,
		&product.Quantity,
		&product.Status,
		&product.Category,
		&product.CreatedAt,
		&product.UpdatedAt,
		&product.Version,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("lock product: %w", err)
	}
	return product, nil
}

func writeQuantityStatus(ctx context.Context, tx *sql.Tx, prev *models.Product, newQty int, newStatus string) (*models.Product, error) {
	updated := &models.Product{}
	err := tx.QueryRowContext(ctx, `
		UPDATE products
		SET quantity = $1, status = $2, updated_at = NOW(), version = version + 1
		WHERE id = $3
		RETURNING id, name, price, quantity, status, category, created_at, updated_at, version`,
		newQty, newStatus, prev.ID).Scan(
		&updated.ID,
		&updated.Name,
		&updated.Price,
		&updated.Quantity,
		&updated.Status,
		&updated.Category,
		&updated.CreatedAt,
		&updated.UpdatedAt,
		&updated.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("update quantity: %w", err)
	}
	return updated, nil
}

// DeductStockTx locks a product by name and deducts quantity inside the
// caller's transaction. The order journal uses it so a sale's deduction and
// journal insert commit or roll back as one unit. Returns the post-update
// snapshot; a deduction can only deplete, never restock, so no transition
// flag is reported.
func DeductStockTx(ctx context.Context, tx *sql.Tx, productName string, quantity int) (*models.Product, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("deduct stock: non-positive quantity %d", quantity)
	}

	prev := &models.Product{}
	err := tx.QueryRowContext(ctx, selectProduct+`
		WHERE LOWER(name) = LOWER($1)
		FOR UPDATE`, productName).Scan(
		&prev.ID,
		&prev.Name,
		&prev.Price,
		&prev.Quantity,
		&prev.Status,
		&prev.Category,
		&prev.CreatedAt,
		&prev.UpdatedAt,
		&prev.Version,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("lock product: %w", err)
	}

	newQty := prev.Quantity - quantity
	if newQty < 0 {
		return nil, database.ErrInsufficientStock
	}

	newStatus := models.ResolveStatus(prev.Status, newQty, "")
	return writeQuantityStatus(ctx, tx, prev, newQty, newStatus)
}
