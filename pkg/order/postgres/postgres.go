package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"storefront/pkg/order"
)

const uniqueViolation = "23505"

// Repository persists orders in PostgreSQL.
type Repository struct {
	db *sql.DB
}

// New creates a PostgreSQL repository.
func New(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new order.
func (r *Repository) Create(ctx context.Context, o order.Order) error {
	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return fmt.Errorf("encode lines: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		"INSERT INTO orders (id,user_id,lines,total,placed_at) VALUES ($1,$2,$3,$4,$5)",
		o.ID, o.UserID, lines, o.Total, o.PlacedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return order.ErrExists
	}
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(s scanner) (order.Order, error) {
	var (
		o     order.Order
		lines []byte
	)
	if err := s.Scan(&o.ID, &o.UserID, &lines, &o.Total, &o.PlacedAt); err != nil {
		return order.Order{}, err
	}
	if err := json.Unmarshal(lines, &o.Lines); err != nil {
		return order.Order{}, fmt.Errorf("decode lines: %w", err)
	}
	return o, nil
}

// Get retrieves an order by ID.
func (r *Repository) Get(ctx context.Context, id string) (order.Order, error) {
	row := r.db.QueryRowContext(ctx, "SELECT id,user_id,lines,total,placed_at FROM orders WHERE id=$1", id)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return order.Order{}, order.ErrNotFound
	}
	return o, err
}

// List fetches the user's orders, oldest first.
func (r *Repository) List(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id,user_id,lines,total,placed_at FROM orders WHERE user_id=$1 ORDER BY placed_at", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	orders := make([]order.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Delete removes an order by ID.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM orders WHERE id=$1", id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return order.ErrNotFound
	}
	return nil
}
