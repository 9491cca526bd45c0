package alerts

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/leafplant/farmstock/internal/database"
	"github.com/leafplant/farmstock/internal/models"
)

// Registry owns stock alert subscriptions. A customer may hold at most one
// pending alert per product name; resolved alerts accumulate as history.
// Uniqueness of the pending pair is enforced by a partial unique index on
// (customer_phone, lower(product_name)) WHERE notified = FALSE, so racing
// subscribers cannot create duplicates.
type Registry struct {
	db *sql.DB
}

func NewRegistry(db *sql.DB) *Registry {
	return &Registry{db: db}
}

const selectAlert = `
	SELECT id, customer_phone, product_name, notified, notified_at, created_at
	FROM stock_alerts`

// Subscribe records a customer's interest in a sold-out product. Idempotent:
// if a pending alert for this (phone, product) pair already exists it is
// returned unchanged.
func (r *Registry) Subscribe(ctx context.Context, customerPhone, productName string) (*models.StockAlert, error) {
	alert := &models.StockAlert{}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO stock_alerts (customer_phone, product_name, notified, created_at)
		VALUES ($1, $2, FALSE, NOW())
		ON CONFLICT (customer_phone, LOWER(product_name)) WHERE notified = FALSE DO NOTHING
		RETURNING id, customer_phone, product_name, notified, notified_at, created_at`,
		customerPhone, productName).Scan(
		&alert.ID,
		&alert.CustomerPhone,
		&alert.ProductName,
		&alert.Notified,
		&alert.NotifiedAt,
		&alert.CreatedAt,
	)
	if err == nil {
		return alert, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	// Insert skipped: a pending alert already exists, return it.
	err = r.db.QueryRowContext(ctx, selectAlert+`
		WHERE customer_phone = $1 AND LOWER(product_name) = LOWER($2) AND notified = FALSE`,
		customerPhone, productName).Scan(
		&alert.ID,
		&alert.CustomerPhone,
		&alert.ProductName,
		&alert.Notified,
		&alert.NotifiedAt,
		&alert.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("subscribe: fetch existing: %w", err)
	}
	return alert, nil
}

// ListPending returns un-notified alerts for a product, oldest first. Name
// matching is case-insensitive, mirroring the ledger's lookup semantics.
func (r *Registry) ListPending(ctx context.Context, productName string) ([]models.StockAlert, error) {
	rows, err := r.db.QueryContext(ctx, selectAlert+`
		WHERE LOWER(product_name) = LOWER($1) AND notified = FALSE
		ORDER BY created_at, id`, productName)
	if err != nil {
		return nil, fmt.Errorf("list pending alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.StockAlert
	for rows.Next() {
		var alert models.StockAlert
		err := rows.Scan(
			&alert.ID,
			&alert.CustomerPhone,
			&alert.ProductName,
			&alert.Notified,
			&alert.NotifiedAt,
			&alert.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return alerts, nil
}

// MarkNotified flips an alert from pending to notified. One-way and
// idempotent: marking an already-notified alert is a no-op, not an error.
func (r *Registry) MarkNotified(ctx context.Context, alertID int64, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE stock_alerts
		SET notified = TRUE, notified_at = $2
		WHERE id = $1 AND notified = FALSE`,
		alertID, at)
	if err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var exists bool
	err = r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM stock_alerts WHERE id = $1)`, alertID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	if !exists {
		return database.ErrAlertNotFound
	}
	return nil
}

// ListByPhone returns a customer's alert history, newest first.
func (r *Registry) ListByPhone(ctx context.Context, customerPhone string) ([]models.StockAlert, error) {
	rows, err := r.db.QueryContext(ctx, selectAlert+`
		WHERE customer_phone = $1
		ORDER BY created_at DESC, id DESC`, customerPhone)
	if err != nil {
		return nil, fmt.Errorf("list alerts by phone: %w", err)
	}
	defer rows.Close()

	var alerts []models.StockAlert
	for rows.Next() {
		var alert models.StockAlert
		err := rows.Scan(
			&alert.ID,
			&alert.CustomerPhone,
			&alert.ProductName,
			&alert.Notified,
			&alert.NotifiedAt,
			&alert.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return alerts, nil
}
