package orders

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/leafplant/farmstock/internal/database"
	"github.com/leafplant/farmstock/internal/inventory"
	"github.com/leafplant/farmstock/internal/models"
)

// Journal is the append-only record of confirmed sales. An order row exists
// iff the matching stock deduction committed in the same transaction, so the
// journal can never oversell and never drift from the ledger. Corrections
// are new compensating entries, never in-place edits.
type Journal struct {
	db             *sql.DB
	commissionRate decimal.Decimal
}

func NewJournal(db *sql.DB, commissionRate float64) *Journal {
	return &Journal{
		db:             db,
		commissionRate: decimal.NewFromFloat(commissionRate),
	}
}

// SaleRequest is the validated structured order the conversational agent
// hands over. The journal never parses prose.
type SaleRequest struct {
	CustomerID    int64
	LeaderID      int64
	ProductName   string
	Quantity      int
	UnitListPrice decimal.Decimal
	DiscountRate  decimal.Decimal
}

// RecordSale deducts stock and appends the confirmed order as one atomic
// unit. On ErrInsufficientStock nothing is written; the caller tells the
// customer the item is sold out and may offer a restock alert instead.
func (j *Journal) RecordSale(ctx context.Context, req SaleRequest) (*models.Order, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("record sale: non-positive quantity %d", req.Quantity)
	}

	totalPrice := req.UnitListPrice.
		Mul(decimal.NewFromInt(int64(req.Quantity))).
		Mul(decimal.NewFromInt(1).Sub(req.DiscountRate))
	commission := totalPrice.Mul(j.commissionRate)

	var order *models.Order
	err := database.WithRetry(ctx, j.db, database.TxOptions{
		IsolationLevel: sql.LevelSerializable,
		MaxRetries:     3,
	}, func(tx *sql.Tx) error {
		var exists bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM customers WHERE id = $1)`,
			req.CustomerID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check customer exists: %w", err)
		}
		if !exists {
			return database.ErrCustomerNotFound
		}

		product, err := inventory.DeductStockTx(ctx, tx, req.ProductName, req.Quantity)
		if err != nil {
			return err
		}

		order = &models.Order{}
		err = tx.QueryRowContext(ctx, `
			INSERT INTO orders (order_number, customer_id, leader_id, product_name, quantity,
			                    total_price, commission, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
			RETURNING id, order_number, customer_id, leader_id, product_name, quantity,
			          total_price, commission, status, created_at`,
			generateOrderNumber(), req.CustomerID, req.LeaderID, product.Name, req.Quantity,
			totalPrice, commission, models.OrderStatusConfirmed).Scan(
			&order.ID,
			&order.OrderNumber,
			&order.CustomerID,
			&order.LeaderID,
			&order.ProductName,
			&order.Quantity,
			&order.TotalPrice,
			&order.Commission,
			&order.Status,
			&order.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("append order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

func generateOrderNumber() string {
	return "ORD-" + uuid.NewString()
}

const selectOrder = `
	SELECT id, order_number, customer_id, leader_id, product_name, quantity,
	       total_price, commission, status, created_at
	FROM orders`

func (j *Journal) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	order := &models.Order{}
	err := j.db.QueryRowContext(ctx, selectOrder+` WHERE id = $1`, id).Scan(
		&order.ID,
		&order.OrderNumber,
		&order.CustomerID,
		&order.LeaderID,
		&order.ProductName,
		&order.Quantity,
		&order.TotalPrice,
		&order.Commission,
		&order.Status,
		&order.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// ListOrdersByLeader pages through a leader's orders for commission
// tracking, newest first, keyset-paginated.
func (j *Journal) ListOrdersByLeader(ctx context.Context, leaderID int64, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	rows, err := j.db.QueryContext(ctx, selectOrder+`
		WHERE leader_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`,
		leaderID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var results []models.Order
	for rows.Next() {
		var order models.Order
		err := rows.Scan(
			&order.ID,
			&order.OrderNumber,
			&order.CustomerID,
			&order.LeaderID,
			&order.ProductName,
			&order.Quantity,
			&order.TotalPrice,
			&order.Commission,
			&order.Status,
			&order.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		results = append(results, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(results) > limit
	if hasMore {
		results = results[:limit]
	}

	var nextCursor string
	if hasMore && len(results) > 0 {
		last := results[len(results)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}

	return &CursorPage{
		Items:      results,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}
