package integration

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/leafplant/farmstock/internal/database"
	"github.com/leafplant/farmstock/internal/inventory"
	"github.com/leafplant/farmstock/internal/models"
	"github.com/leafplant/farmstock/internal/orders"
)

const commissionRate = 0.111

func TestRecordSale_Confirmed(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	ledger := inventory.NewLedger(db, nil)
	journal := orders.NewJournal(db, commissionRate)
	customer := seedCustomer(t, db, "Alice", "+6591110001")

	if _, err := ledger.CreateProduct(ctx, "Mizuna", "greens", decimal.NewFromFloat(2.50), 30); err != nil {
		t.Fatalf("Create product: %v", err)
	}

	order, err := journal.RecordSale(ctx, orders.SaleRequest{
		CustomerID:    customer.ID,
		LeaderID:      customer.LeaderID,
		ProductName:   "mizuna",
		Quantity:      20,
		UnitListPrice: decimal.NewFromFloat(2.50),
		DiscountRate:  decimal.NewFromFloat(0.10),
	})
	if err != nil {
		t.Fatalf("RecordSale: %v", err)
	}

	// 2.50 * 20 * 0.90 = 45.00; commission 45.00 * 0.111 = 4.995
	if !order.TotalPrice.Equal(decimal.NewFromFloat(45.00)) {
		t.Errorf("Expected total 45.00, got %s", order.TotalPrice)
	}
	if !order.Commission.Equal(decimal.NewFromFloat(4.995)) {
		t.Errorf("Expected commission 4.995, got %s", order.Commission)
	}
	if order.Status != models.OrderStatusConfirmed {
		t.Errorf("Expected status Confirmed, got %q", order.Status)
	}
	if order.LeaderID != customer.LeaderID {
		t.Errorf("Expected leader %d, got %d", customer.LeaderID, order.LeaderID)
	}

	product, err := ledger.GetProductByName(ctx, "Mizuna")
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if product.Quantity != 10 {
		t.Errorf("Expected quantity 10 after sale, got %d", product.Quantity)
	}
}

func TestRecordSale_AtomicOnInsufficientStock(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	ledger := inventory.NewLedger(db, nil)
	journal := orders.NewJournal(db, commissionRate)
	customer := seedCustomer(t, db, "Bob", "+6591110002")

	if _, err := ledger.CreateProduct(ctx, "Kale", "greens", decimal.NewFromInt(3), 5); err != nil {
		t.Fatalf("Create product: %v", err)
	}

	_, err := journal.RecordSale(ctx, orders.SaleRequest{
		CustomerID:    customer.ID,
		LeaderID:      customer.LeaderID,
		ProductName:   "Kale",
		Quantity:      6,
		UnitListPrice: decimal.NewFromInt(3),
		DiscountRate:  decimal.Zero,
	})
	if err != database.ErrInsufficientStock {
		t.Fatalf("Expected ErrInsufficientStock, got: %v", err)
	}

	// No journal row, no deduction.
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&count); err != nil {
		t.Fatalf("Count orders: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected no order rows, got %d", count)
	}

	product, err := ledger.GetProductByName(ctx, "Kale")
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if product.Quantity != 5 {
		t.Errorf("Expected quantity unchanged at 5, got %d", product.Quantity)
	}
}

func TestRecordSale_UnknownCustomer(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	ledger := inventory.NewLedger(db, nil)
	journal := orders.NewJournal(db, commissionRate)

	if _, err := ledger.CreateProduct(ctx, "Kale", "greens", decimal.NewFromInt(3), 5); err != nil {
		t.Fatalf("Create product: %v", err)
	}

	_, err := journal.RecordSale(ctx, orders.SaleRequest{
		CustomerID:    42,
		LeaderID:      1,
		ProductName:   "Kale",
		Quantity:      1,
		UnitListPrice: decimal.NewFromInt(3),
		DiscountRate:  decimal.Zero,
	})
	if err != database.ErrCustomerNotFound {
		t.Fatalf("Expected ErrCustomerNotFound, got: %v", err)
	}
}

func TestConcurrentSales_NoOversell(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	ledger := inventory.NewLedger(db, nil)
	journal := orders.NewJournal(db, commissionRate)
	customer := seedCustomer(t, db, "Carol", "+6591110003")

	if _, err := ledger.CreateProduct(ctx, "Bok Choy", "greens", decimal.NewFromInt(2), 10); err != nil {
		t.Fatalf("Create product: %v", err)
	}

	concurrency := 6
	var wg sync.WaitGroup
	errs := make(chan error, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := journal.RecordSale(ctx, orders.SaleRequest{
				CustomerID:    customer.ID,
				LeaderID:      customer.LeaderID,
				ProductName:   "Bok Choy",
				Quantity:      3,
				UnitListPrice: decimal.NewFromInt(2),
				DiscountRate:  decimal.Zero,
			})
			if err != nil {
				errs <- err
			}
		}()
	}

	wg.Wait()
	close(errs)

	failures := 0
	for err := range errs {
		if err != database.ErrInsufficientStock {
			t.Errorf("Unexpected error: %v", err)
		}
		failures++
	}
	successes := concurrency - failures

	var orderCount int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&orderCount); err != nil {
		t.Fatalf("Count orders: %v", err)
	}
	if orderCount != successes {
		t.Errorf("Expected %d order rows, got %d", successes, orderCount)
	}

	product, err := ledger.GetProductByName(ctx, "Bok Choy")
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if product.Quantity != 10-successes*3 {
		t.Errorf("Expected quantity %d, got %d", 10-successes*3, product.Quantity)
	}
	if product.Quantity < 0 {
		t.Error("Quantity went negative")
	}
}

func TestListOrdersByLeader_Cursor(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	ledger := inventory.NewLedger(db, nil)
	journal := orders.NewJournal(db, commissionRate)
	customer := seedCustomer(t, db, "Dana", "+6591110004")

	if _, err := ledger.CreateProduct(ctx, "Mizuna", "greens", decimal.NewFromInt(2), 100); err != nil {
		t.Fatalf("Create product: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := journal.RecordSale(ctx, orders.SaleRequest{
			CustomerID:    customer.ID,
			LeaderID:      customer.LeaderID,
			ProductName:   "Mizuna",
			Quantity:      1,
			UnitListPrice: decimal.NewFromInt(2),
			DiscountRate:  decimal.Zero,
		}); err != nil {
			t.Fatalf("RecordSale %d: %v", i, err)
		}
	}

	page1, err := journal.ListOrdersByLeader(ctx, customer.LeaderID, "", 3)
	if err != nil {
		t.Fatalf("ListOrdersByLeader: %v", err)
	}
	if !page1.HasMore || page1.NextCursor == "" {
		t.Fatalf("Expected more pages, got %+v", page1)
	}
	if got := len(page1.Items.([]models.Order)); got != 3 {
		t.Errorf("Expected 3 orders on page 1, got %d", got)
	}

	page2, err := journal.ListOrdersByLeader(ctx, customer.LeaderID, page1.NextCursor, 3)
	if err != nil {
		t.Fatalf("ListOrdersByLeader page 2: %v", err)
	}
	if page2.HasMore {
		t.Error("Expected final page")
	}
	if got := len(page2.Items.([]models.Order)); got != 2 {
		t.Errorf("Expected 2 orders on page 2, got %d", got)
	}
}
