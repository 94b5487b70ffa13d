package order

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"storefront/pkg/cart"
)

// Order represents a placed customer order.
type Order struct {
	ID       string           `json:"id"`
	UserID   string           `json:"user_id"`
	Lines    []cart.OrderLine `json:"lines"`
	Total    decimal.Decimal  `json:"total"`
	PlacedAt time.Time        `json:"placed_at"`
}

// Confirmation returns the client-facing view of o.
func (o Order) Confirmation() cart.Confirmation {
	return cart.Confirmation{OrderID: o.ID, Total: o.Total, PlacedAt: o.PlacedAt}
}

// Repository defines behavior for persisting orders.
type Repository interface {
	Create(ctx context.Context, o Order) error
	Get(ctx context.Context, id string) (Order, error)
	List(ctx context.Context, userID string) ([]Order, error)
	Delete(ctx context.Context, id string) error
}

var (
	// ErrNotFound indicates the requested order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrExists indicates an order with the same ID was already stored.
	ErrExists = errors.New("order already exists")
)

// Schema creates the orders table.
const Schema = `CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	lines JSONB NOT NULL,
	total NUMERIC(12,2) NOT NULL,
	placed_at TIMESTAMPTZ NOT NULL
)`
