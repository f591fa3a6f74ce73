package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID              string
	UserID          string
	Status          Status
	Total           decimal.Decimal
	ShippingAddress string
	Notes           string
	// Version is the optimistic concurrency token; status updates are
	// compare-and-swap on it, stale writers are rejected.
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
	Items     []OrderItem
}

// OrderItem snapshots product name and unit price at reservation time, so a
// later catalog rename or reprice never changes a placed order.
type OrderItem struct {
	ID          string
	OrderID     string
	ProductID   string
	ProductName string
	UnitPrice   decimal.Decimal
	Quantity    int
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// OrderSummary is the list-view projection.
type OrderSummary struct {
	ID        string          `json:"id"`
	Status    Status          `json:"status"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
	CreatedAt time.Time       `json:"created_at"`
}
