package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stock status values. Status is derived from quantity plus an optional
// manual override; ResolveStatus is the single place that rule lives.
const (
	StatusInStock    = "In Stock"
	StatusOutOfStock = "Out of Stock"
)

const (
	OrderStatusConfirmed = "Confirmed"
	OrderStatusCancelled = "Cancelled"
)

type Product struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Status    string          `json:"status"`
	Category  string          `json:"category,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Version   int             `json:"version"`
}

// StockAlert is a customer's standing request to be told when a product is
// back in stock. It flips from pending to notified exactly once and is never
// deleted; resolved alerts stay around as an audit trail.
type StockAlert struct {
	ID            int64      `json:"id"`
	CustomerPhone string     `json:"customer_phone"`
	ProductName   string     `json:"product_name"`
	Notified      bool       `json:"notified"`
	NotifiedAt    *time.Time `json:"notified_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Order is an append-only journal entry for a confirmed sale. Orders carry
// the product name rather than a foreign key so the journal survives catalog
// deletions.
type Order struct {
	ID          int64           `json:"id"`
	OrderNumber string          `json:"order_number"`
	CustomerID  int64           `json:"customer_id"`
	LeaderID    int64           `json:"leader_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	Commission  decimal.Decimal `json:"commission"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email,omitempty"`
	LeaderID  int64     `json:"leader_id"`
	CreatedAt time.Time `json:"created_at"`
}

// GroupLeader is the referring agent an order's commission is routed to.
type GroupLeader struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Area      string    `json:"area,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ResolveStatus computes a product's status after a write.
//
// Precedence:
//  1. quantity <= 0 always forces Out of Stock.
//  2. Recovery from Out of Stock with positive quantity forces In Stock.
//  3. Otherwise an explicit caller-supplied status wins (manual override,
//     only reachable while quantity stays positive and the product was
//     already In Stock); default is In Stock.
func ResolveStatus(prevStatus string, newQuantity int, explicit string) string {
	if newQuantity <= 0 {
		return StatusOutOfStock
	}
	if prevStatus == StatusOutOfStock {
		return StatusInStock
	}
	if explicit == StatusInStock || explicit == StatusOutOfStock {
		return explicit
	}
	return StatusInStock
}

// IsRestock reports whether a write moved a product from unavailable to
// available. Both the quantity edge and the status edge count, so a manual
// override clear behaves the same as a replenishment.
func IsRestock(prevQuantity, newQuantity int, prevStatus, newStatus string) bool {
	if prevQuantity <= 0 && newQuantity > 0 {
		return true
	}
	return prevStatus == StatusOutOfStock && newStatus == StatusInStock
}
