package orders

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/leafplant/farmstock/internal/database"
	"github.com/leafplant/farmstock/internal/models"
)

// Customer and group leader accessors. These are reference entities for the
// journal: orders link a buyer to the leader whose commission the sale earns.

func CreateLeader(ctx context.Context, db *sql.DB, name, area string) (*models.GroupLeader, error) {
	leader := &models.GroupLeader{}
	err := db.QueryRowContext(ctx, `
		INSERT INTO group_leaders (name, area, created_at)
		VALUES ($1, $2, NOW())
		RETURNING id, name, area, created_at`,
		name, area).Scan(&leader.ID, &leader.Name, &leader.Area, &leader.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create leader: %w", err)
	}
	return leader, nil
}

func GetLeader(ctx context.Context, db *sql.DB, id int64) (*models.GroupLeader, error) {
	leader := &models.GroupLeader{}
	err := db.QueryRowContext(ctx, `
		SELECT id, name, area, created_at
		FROM group_leaders
		WHERE id = $1`, id).Scan(&leader.ID, &leader.Name, &leader.Area, &leader.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrLeaderNotFound
		}
		return nil, fmt.Errorf("get leader: %w", err)
	}
	return leader, nil
}

func CreateCustomer(ctx context.Context, db *sql.DB, name, phone, email string, leaderID int64) (*models.Customer, error) {
	customer := &models.Customer{}
	err := db.QueryRowContext(ctx, `
		INSERT INTO customers (name, phone, email, leader_id, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, name, phone, email, leader_id, created_at`,
		name, phone, email, leaderID).Scan(
		&customer.ID,
		&customer.Name,
		&customer.Phone,
		&customer.Email,
		&customer.LeaderID,
		&customer.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	return customer, nil
}

// GetCustomerByPhone is the webhook's authentication gate: registered
// customers can order, unknown numbers only onboard.
func GetCustomerByPhone(ctx context.Context, db *sql.DB, phone string) (*models.Customer, error) {
	customer := &models.Customer{}
	err := db.QueryRowContext(ctx, `
		SELECT id, name, phone, email, leader_id, created_at
		FROM customers
		WHERE phone = $1`, phone).Scan(
		&customer.ID,
		&customer.Name,
		&customer.Phone,
		&customer.Email,
		&customer.LeaderID,
		&customer.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return customer, nil
}
