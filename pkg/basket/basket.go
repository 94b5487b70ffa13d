// Package basket defines server-side storage for users' cart lines and
// delivery addresses.
package basket

import (
	"context"
	"errors"

	"storefront/pkg/cart"
)

// Repository persists carts per user.
type Repository interface {
	// List returns up to limit lines starting at offset, oldest first.
	List(ctx context.Context, userID string, offset, limit int) ([]cart.Line, error)
	// Add stores l, or increases the quantity of the user's existing line
	// for the same product, and returns the stored line.
	Add(ctx context.Context, userID string, l cart.Line) (cart.Line, error)
	Remove(ctx context.Context, userID, lineID string) error
	Address(ctx context.Context, userID string) (cart.Address, error)
	SaveAddress(ctx context.Context, userID string, a cart.Address) error
}

// ErrNotFound indicates the requested line or address does not exist.
var ErrNotFound = errors.New("not found")

// Schema creates the cart tables.
const Schema = `CREATE TABLE IF NOT EXISTS cart_lines (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	product_id TEXT NOT NULL,
	name TEXT NOT NULL,
	price NUMERIC(12,2) NOT NULL,
	image TEXT NOT NULL DEFAULT '',
	quantity INT NOT NULL CHECK (quantity > 0),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (user_id, product_id)
);
CREATE TABLE IF NOT EXISTS addresses (
	user_id TEXT PRIMARY KEY,
	street TEXT NOT NULL,
	city TEXT NOT NULL,
	state TEXT NOT NULL,
	country TEXT NOT NULL,
	postal_code TEXT NOT NULL
)`
