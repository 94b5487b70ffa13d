// Package postgres persists carts in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"storefront/pkg/basket"
	"storefront/pkg/cart"
)

// Repository persists cart lines and addresses in PostgreSQL.
type Repository struct {
	db *sql.DB
}

// New creates a PostgreSQL repository.
func New(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// List returns a window of the user's lines, oldest first.
func (r *Repository) List(ctx context.Context, userID string, offset, limit int) ([]cart.Line, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id,product_id,name,price,image,quantity FROM cart_lines WHERE user_id=$1 ORDER BY created_at,id LIMIT $2 OFFSET $3",
		userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := make([]cart.Line, 0)
	for rows.Next() {
		var l cart.Line
		if err := rows.Scan(&l.ID, &l.Product.ID, &l.Product.Name, &l.Product.Price, &l.Product.Image, &l.Quantity); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// Add inserts l, or adds its quantity to the user's line for the product.
func (r *Repository) Add(ctx context.Context, userID string, l cart.Line) (cart.Line, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	l.Pending = false
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO cart_lines (id,user_id,product_id,name,price,image,quantity) VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (user_id,product_id) DO UPDATE SET quantity = cart_lines.quantity + EXCLUDED.quantity
		RETURNING id,quantity`,
		l.ID, userID, l.Product.ID, l.Product.Name, l.Product.Price, l.Product.Image, l.Quantity,
	).Scan(&l.ID, &l.Quantity)
	if err != nil {
		return cart.Line{}, err
	}
	return l, nil
}

// Remove deletes a line by ID.
func (r *Repository) Remove(ctx context.Context, userID, lineID string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM cart_lines WHERE id=$1 AND user_id=$2", lineID, userID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return basket.ErrNotFound
	}
	return nil
}

// Address returns the saved address.
func (r *Repository) Address(ctx context.Context, userID string) (cart.Address, error) {
	var a cart.Address
	err := r.db.QueryRowContext(ctx,
		"SELECT street,city,state,country,postal_code FROM addresses WHERE user_id=$1", userID,
	).Scan(&a.Street, &a.City, &a.State, &a.Country, &a.PostalCode)
	if err == sql.ErrNoRows {
		return cart.Address{}, basket.ErrNotFound
	}
	return a, err
}

// SaveAddress upserts the saved address.
func (r *Repository) SaveAddress(ctx context.Context, userID string, a cart.Address) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO addresses (user_id,street,city,state,country,postal_code) VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (user_id) DO UPDATE SET street=EXCLUDED.street, city=EXCLUDED.city, state=EXCLUDED.state,
		country=EXCLUDED.country, postal_code=EXCLUDED.postal_code`,
		userID, a.Street, a.City, a.State, a.Country, a.PostalCode)
	return err
}
