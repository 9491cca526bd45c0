package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/leafplant/farmstock/internal/models"
)

// Sender delivers one outbound message. Implementations must bound their
// own send timeout; a timed-out send is a failure, never a success.
type Sender interface {
	Send(ctx context.Context, destination, text string) error
}

// AlertSource is the slice of the subscription registry the dispatcher needs.
type AlertSource interface {
	ListPending(ctx context.Context, productName string) ([]models.StockAlert, error)
	MarkNotified(ctx context.Context, alertID int64, at time.Time) error
}

// Dispatcher fans a restock event out to every customer waiting on the
// product. Each subscriber is handled independently: one failed delivery
// leaves that alert pending for the next restock and never blocks the rest.
type Dispatcher struct {
	alerts AlertSource
	sender Sender

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewDispatcher(alerts AlertSource, sender Sender) *Dispatcher {
	return &Dispatcher{
		alerts: alerts,
		sender: sender,
		locks:  make(map[string]*sync.Mutex),
	}
}

// DispatchRestock notifies all pending subscribers that productName is back
// with newQuantity units. Invocations for the same product serialize, so two
// rapid restock transitions cannot interleave between a send and its
// mark-notified and double-message a subscriber.
func (d *Dispatcher) DispatchRestock(ctx context.Context, productName string, newQuantity int) error {
	lock := d.productLock(productName)
	lock.Lock()
	defer lock.Unlock()

	pending, err := d.alerts.ListPending(ctx, productName)
	if err != nil {
		return fmt.Errorf("dispatch restock: %w", err)
	}

	var failed int
	for _, alert := range pending {
		if err := d.sender.Send(ctx, alert.CustomerPhone, RestockMessage(alert.ProductName, newQuantity)); err != nil {
			// Alert stays pending; the next restock event retries it.
			log.Printf("restock notification to %s for %q failed: %v", alert.CustomerPhone, alert.ProductName, err)
			failed++
			continue
		}
		if err := d.alerts.MarkNotified(ctx, alert.ID, time.Now().UTC()); err != nil {
			log.Printf("mark alert %d notified failed: %v", alert.ID, err)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("dispatch restock: %d of %d notifications failed", failed, len(pending))
	}
	return nil
}

func (d *Dispatcher) productLock(productName string) *sync.Mutex {
	key := strings.ToLower(productName)
	d.mu.Lock()
	defer d.mu.Unlock()
	lock, ok := d.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[key] = lock
	}
	return lock
}

// RestockMessage is the text sent to a waiting customer.
func RestockMessage(productName string, quantity int) string {
	return fmt.Sprintf("Hi! Good news from the farm: %s is back in stock (%d available). Would you like to place an order?", productName, quantity)
}
