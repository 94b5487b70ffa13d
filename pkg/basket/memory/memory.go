// Package memory implements an in-memory basket repository.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"storefront/pkg/basket"
	"storefront/pkg/cart"
)

type userCart struct {
	lines   []cart.Line
	address *cart.Address
}

// Repository provides an in-memory implementation of basket.Repository.
type Repository struct {
	mu    sync.RWMutex
	users map[string]*userCart
}

// New creates a new in-memory repository.
func New() *Repository {
	return &Repository{users: make(map[string]*userCart)}
}

func (r *Repository) user(id string) *userCart {
	u, ok := r.users[id]
	if !ok {
		u = &userCart{}
		r.users[id] = u
	}
	return u
}

// List returns a window of the user's lines.
func (r *Repository) List(ctx context.Context, userID string, offset, limit int) ([]cart.Line, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]cart.Line, 0)
	u, ok := r.users[userID]
	if !ok || offset >= len(u.lines) {
		return out, nil
	}
	end := offset + limit
	if end > len(u.lines) {
		end = len(u.lines)
	}
	return append(out, u.lines[offset:end]...), nil
}

// Add stores l or merges it into the existing line for its product.
func (r *Repository) Add(ctx context.Context, userID string, l cart.Line) (cart.Line, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.user(userID)
	for i, cur := range u.lines {
		if cur.Product.ID == l.Product.ID {
			u.lines[i].Quantity += l.Quantity
			return u.lines[i], nil
		}
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	l.Pending = false
	u.lines = append(u.lines, l)
	return l, nil
}

// Remove deletes a line by ID.
func (r *Repository) Remove(ctx context.Context, userID, lineID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return basket.ErrNotFound
	}
	for i, l := range u.lines {
		if l.ID == lineID {
			u.lines = append(u.lines[:i], u.lines[i+1:]...)
			return nil
		}
	}
	return basket.ErrNotFound
}

// Address returns the saved address.
func (r *Repository) Address(ctx context.Context, userID string) (cart.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[userID]
	if !ok || u.address == nil {
		return cart.Address{}, basket.ErrNotFound
	}
	return *u.address, nil
}

// SaveAddress replaces the saved address.
func (r *Repository) SaveAddress(ctx context.Context, userID string, a cart.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.user(userID).address = &a
	return nil
}
