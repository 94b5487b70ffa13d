// Package carttest provides an in-memory cart.Gateway for tests.
package carttest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"storefront/pkg/cart"
)

// Gateway is a scriptable cart.Gateway. Zero value is ready to use.
type Gateway struct {
	mu sync.Mutex

	// Pages maps a 1-based page number to the lines returned for it.
	Pages    map[int][]cart.Line
	FetchErr error
	// Block, when set, makes FetchCart wait until it is closed.
	Block      chan struct{}
	fetchCalls int

	AddErr   error
	added    []cart.Line
	addCalls int

	RemoveErr map[string]error
	removed   []string

	Addr       cart.Address
	AddressErr error
	UpdateErr  error

	OrderErr error
	orders   []Order
}

// Order is a recorded PlaceOrder call.
type Order struct {
	Lines []cart.OrderLine
	Total decimal.Decimal
}

// Line builds a cart line.
func Line(id, productID string, price int64, qty int) cart.Line {
	return cart.Line{
		ID:       id,
		Product:  cart.Product{ID: productID, Name: "product " + productID, Price: decimal.NewFromInt(price)},
		Quantity: qty,
	}
}

// FetchCart returns Pages[page] or FetchErr.
func (g *Gateway) FetchCart(ctx context.Context, page, limit int) ([]cart.Line, error) {
	g.mu.Lock()
	g.fetchCalls++
	block := g.Block
	g.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FetchErr != nil {
		return nil, g.FetchErr
	}
	lines := g.Pages[page]
	if len(lines) > limit {
		lines = lines[:limit]
	}
	return append([]cart.Line(nil), lines...), nil
}

// FetchCalls returns how many times FetchCart was invoked.
func (g *Gateway) FetchCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fetchCalls
}

// AddItem records the line and returns it. Like the server, it merges the
// quantity into an earlier line for the same product, whether that line
// came from Pages or a previous add; otherwise the line gets a fresh id.
func (g *Gateway) AddItem(ctx context.Context, productID string, quantity int, name string, price decimal.Decimal) (cart.Line, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addCalls++
	if g.AddErr != nil {
		return cart.Line{}, g.AddErr
	}
	l, ok := g.held(productID)
	if ok {
		l.Quantity += quantity
	} else {
		l = cart.Line{
			ID:       uuid.NewString(),
			Product:  cart.Product{ID: productID, Name: name, Price: price},
			Quantity: quantity,
		}
	}
	for i := range g.added {
		if g.added[i].Product.ID == productID {
			g.added[i] = l
			return l, nil
		}
	}
	g.added = append(g.added, l)
	return l, nil
}

func (g *Gateway) held(productID string) (cart.Line, bool) {
	for _, l := range g.added {
		if l.Product.ID == productID {
			return l, true
		}
	}
	for _, page := range g.Pages {
		for _, l := range page {
			if l.Product.ID == productID {
				return l, true
			}
		}
	}
	return cart.Line{}, false
}

// Added returns the lines accepted by AddItem, one per product.
func (g *Gateway) Added() []cart.Line {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]cart.Line(nil), g.added...)
}

// RemoveItem records lineID and returns RemoveErr[lineID].
func (g *Gateway) RemoveItem(ctx context.Context, lineID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removed = append(g.removed, lineID)
	return g.RemoveErr[lineID]
}

// Removed returns the line ids passed to RemoveItem.
func (g *Gateway) Removed() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.removed...)
}

// FetchAddress returns Addr or AddressErr.
func (g *Gateway) FetchAddress(ctx context.Context) (cart.Address, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Addr, g.AddressErr
}

// UpdateAddress stores a unless UpdateErr is set.
func (g *Gateway) UpdateAddress(ctx context.Context, a cart.Address) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.UpdateErr != nil {
		return g.UpdateErr
	}
	g.Addr = a
	return nil
}

// PlaceOrder records the order unless OrderErr is set.
func (g *Gateway) PlaceOrder(ctx context.Context, lines []cart.OrderLine, total decimal.Decimal) (cart.Confirmation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.OrderErr != nil {
		return cart.Confirmation{}, g.OrderErr
	}
	g.orders = append(g.orders, Order{Lines: lines, Total: total})
	return cart.Confirmation{
		OrderID:  fmt.Sprintf("order-%d", len(g.orders)),
		Total:    total,
		PlacedAt: time.Now().UTC(),
	}, nil
}

// Orders returns the recorded orders.
func (g *Gateway) Orders() []Order {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Order(nil), g.orders...)
}
