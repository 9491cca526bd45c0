package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"github.com/leafplant/farmstock/internal/database"
	"github.com/leafplant/farmstock/internal/models"
)

// RestockFunc is invoked after a committed write moved a product from
// unavailable to available. It runs outside the transaction, so it must
// never be handed the row lock's lifetime.
type RestockFunc func(ctx context.Context, productName string, newQuantity int)

// Ledger owns all product quantity and status mutations. Every write runs
// as a read-modify-write under a row lock and recomputes the derived status
// through models.ResolveStatus, so quantity and status cannot drift apart.
type Ledger struct {
	db      *sql.DB
	restock RestockFunc
}

func NewLedger(db *sql.DB, restock RestockFunc) *Ledger {
	return &Ledger{db: db, restock: restock}
}

// ProductUpdate carries an admin edit. Nil fields are left unchanged.
// ExplicitStatus is the manual override from the dashboard dropdown; it only
// takes effect under the rules of models.ResolveStatus.
type ProductUpdate struct {
	Name           *string
	Price          *decimal.Decimal
	Quantity       *int
	Category       *string
	ExplicitStatus string
}

func (l *Ledger) CreateProduct(ctx context.Context, name, category string, price decimal.Decimal, quantity int) (*models.Product, error) {
	if price.IsNegative() {
		return nil, fmt.Errorf("create product: negative price")
	}
	if quantity < 0 {
		return nil, fmt.Errorf("create product: negative quantity")
	}

	product := &models.Product{}
	status := models.ResolveStatus(models.StatusInStock, quantity, "")

	query := `
		INSERT INTO products (name, price, quantity, status, category, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW(), 1)
		RETURNING id, name, price, quantity, status, category, created_at, updated_at, version`

	err := l.db.QueryRowContext(ctx, query, name, price, quantity, status, category).Scan(
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
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func (l *Ledger) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	return scanProduct(l.db.QueryRowContext(ctx, selectProduct+` WHERE id = $1`, id))
}

// GetProductByName matches case-insensitively, the same way the chat path
// looks products up.
func (l *Ledger) GetProductByName(ctx context.Context, name string) (*models.Product, error) {
	return scanProduct(l.db.QueryRowContext(ctx, selectProduct+` WHERE LOWER(name) = LOWER($1)`, name))
}

// GetStatus re-fetches the committed row on every call; the record is shared
// with other writer processes, so no caching.
func (l *Ledger) GetStatus(ctx context.Context, id int64) (string, error) {
	var status string
	err := l.db.QueryRowContext(ctx, `SELECT status FROM products WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", database.ErrProductNotFound
		}
		return "", fmt.Errorf("get status: %w", err)
	}
	return status, nil
}

// AdjustQuantity applies a signed delta to a product's quantity inside a
// single row-locked transaction. A delta that would take the quantity
// negative fails with ErrInsufficientStock and changes nothing.
func (l *Ledger) AdjustQuantity(ctx context.Context, id int64, delta int) (*models.Product, error) {
	var updated *models.Product
	var restocked bool

	err := database.WithRetry(ctx, l.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		prev, err := lockProduct(ctx, tx, id)
		if err != nil {
			return err
		}

		newQty := prev.Quantity + delta
		if newQty < 0 {
			return database.ErrInsufficientStock
		}

		newStatus := models.ResolveStatus(prev.Status, newQty, "")
		updated, err = writeQuantityStatus(ctx, tx, prev, newQty, newStatus)
		if err != nil {
			return err
		}
		restocked = models.IsRestock(prev.Quantity, newQty, prev.Status, newStatus)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if restocked {
		l.fireRestock(ctx, updated.Name, updated.Quantity)
	}
	return updated, nil
}

// SetFields is the admin-driven full edit. Status resolution: depletion
// always forces Out of Stock, recovery from Out of Stock forces In Stock,
// and only then does the dropdown's explicit choice count.
func (l *Ledger) SetFields(ctx context.Context, id int64, upd ProductUpdate) (*models.Product, error) {
	var updated *models.Product
	var restocked bool

	err := database.WithRetry(ctx, l.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		prev, err := lockProduct(ctx, tx, id)
		if err != nil {
			return err
		}

		name := prev.Name
		if upd.Name != nil {
			name = *upd.Name
		}
		price := prev.Price
		if upd.Price != nil {
			price = *upd.Price
		}
		category := prev.Category
		if upd.Category != nil {
			category = *upd.Category
		}
		newQty := prev.Quantity
		if upd.Quantity != nil {
			newQty = *upd.Quantity
		}
		if newQty < 0 {
			return database.ErrInsufficientStock
		}

		newStatus := models.ResolveStatus(prev.Status, newQty, upd.ExplicitStatus)

		updated = &models.Product{}
		err = tx.QueryRowContext(ctx, `
			UPDATE products
			SET name = $1, price = $2, quantity = $3, status = $4, category = $5,
			    updated_at = NOW(), version = version + 1
			WHERE id = $6
			RETURNING id, name, price, quantity, status, category, created_at, updated_at, version`,
			name, price, newQty, newStatus, category, id).Scan(
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
			return fmt.Errorf("update product: %w", err)
		}
		restocked = models.IsRestock(prev.Quantity, newQty, prev.Status, newStatus)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if restocked {
		l.fireRestock(ctx, updated.Name, updated.Quantity)
	}
	return updated, nil
}

func (l *Ledger) DeleteProduct(ctx context.Context, id int64) error {
	result, err := l.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return database.ErrProductNotFound
	}
	return nil
}

func (l *Ledger) ListProducts(ctx context.Context, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	offset := (page - 1) * pageSize
	rows, err := l.db.QueryContext(ctx, selectProduct+`
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var product models.Product
		err := rows.Scan(
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
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}

	return &OffsetPage{
		Items:      products,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

// fireRestock hands a committed unavailable→available transition to the
// dispatcher. Best effort: a notification problem must never fail the write
// that caused it.
func (l *Ledger) fireRestock(ctx context.Context, name string, quantity int) {
	if l.restock == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("restock trigger panic for %q: %v", name, r)
		}
	}()
	l.restock(ctx, name, quantity)
}
