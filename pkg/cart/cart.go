// Package cart holds the shopping cart domain shared by the client core
// and the reference backend.
package cart

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PendingPrefix marks identifiers assigned locally before the server
// confirms a line.
const PendingPrefix = "local-"

// Product is a catalog entry referenced by a cart line.
type Product struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Image string          `json:"image,omitempty"`
}

// Line is one product and quantity entry in a cart.
type Line struct {
	ID       string  `json:"id"`
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
	// Pending is set on optimistic lines whose add call has not been
	// confirmed by the server.
	Pending bool `json:"-"`
}

// Subtotal returns price times quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// IsPendingID reports whether id was assigned locally.
func IsPendingID(id string) bool {
	return strings.HasPrefix(id, PendingPrefix)
}

// Address is a delivery address. All fields are required together.
type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	Country    string `json:"country"`
	PostalCode string `json:"postal_code"`
}

// IsZero reports whether no field is set.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Validate returns a *ValidationError naming the first empty field.
func (a Address) Validate() error {
	fields := []struct{ name, value string }{
		{"street", a.Street},
		{"city", a.City},
		{"state", a.State},
		{"country", a.Country},
		{"postal_code", a.PostalCode},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return &ValidationError{Field: f.name, Reason: "required"}
		}
	}
	return nil
}

// OrderLine is a cart line resolved for submission.
type OrderLine struct {
	LineID    string          `json:"line_id"`
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// NewOrderLine resolves l into an OrderLine.
func NewOrderLine(l Line) OrderLine {
	return OrderLine{
		LineID:    l.ID,
		ProductID: l.Product.ID,
		Name:      l.Product.Name,
		Price:     l.Product.Price,
		Quantity:  l.Quantity,
		Subtotal:  l.Subtotal(),
	}
}

// Confirmation is returned by the server for a placed order.
type Confirmation struct {
	OrderID  string          `json:"order_id"`
	Total    decimal.Decimal `json:"total"`
	PlacedAt time.Time       `json:"placed_at"`
}

// Gateway is the remote cart API consumed by the client core.
type Gateway interface {
	FetchCart(ctx context.Context, page, limit int) ([]Line, error)
	AddItem(ctx context.Context, productID string, quantity int, name string, price decimal.Decimal) (Line, error)
	RemoveItem(ctx context.Context, lineID string) error
	FetchAddress(ctx context.Context) (Address, error)
	UpdateAddress(ctx context.Context, a Address) error
	PlaceOrder(ctx context.Context, lines []OrderLine, total decimal.Decimal) (Confirmation, error)
}
