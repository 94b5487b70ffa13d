// Package shopper ties the cart client pieces to one logged-in user: a
// local store, its reconciler and the checkout flow live from login until
// logout.
package shopper

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"storefront/pkg/auth"
	"storefront/pkg/cart"
	"storefront/pkg/cart/local"
	"storefront/pkg/cart/reconcile"
	"storefront/pkg/cart/remote"
	"storefront/pkg/checkout"
	"storefront/pkg/logger"
)

// Config holds session configuration.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	PageLimit  int
	Debounce   time.Duration
}

// Active is the cart state of a logged-in user.
type Active struct {
	Store    *local.Store
	Cart     *reconcile.Reconciler
	Checkout *checkout.Flow
}

// Session owns the token and the Active state of the current user.
type Session struct {
	client *remote.Client
	tokens auth.TokenStore
	log    *logger.Logger
	cfg    reconcile.Config

	mu     sync.Mutex
	active *Active
}

// New returns a Session. If tokens already holds a token, for example
// one persisted by a previous run, the session starts logged in.
func New(cfg Config, tokens auth.TokenStore, log *logger.Logger) *Session {
	s := &Session{
		client: remote.New(remote.Config{BaseURL: cfg.BaseURL, HTTPClient: cfg.HTTPClient}, tokens, log),
		tokens: tokens,
		log:    log,
		cfg:    reconcile.Config{Limit: cfg.PageLimit, Debounce: cfg.Debounce},
	}
	if _, ok := tokens.Token(); ok {
		s.active = s.newActive()
	}
	return s
}

func (s *Session) newActive() *Active {
	store := local.New()
	rec := reconcile.New(s.client, store, s.log, s.cfg)
	return &Active{
		Store:    store,
		Cart:     rec,
		Checkout: checkout.New(s.client, store, rec, s.log),
	}
}

// Login authenticates, stores the token and loads the cart and address.
// A load failure is returned but leaves the session logged in.
func (s *Session) Login(ctx context.Context, username, password string) error {
	token, err := s.client.Login(ctx, username, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if err := s.tokens.SetToken(token); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	s.mu.Lock()
	if s.active != nil {
		s.active.Cart.Close()
	}
	a := s.newActive()
	s.active = a
	s.mu.Unlock()

	s.log.Info(ctx, "logged in", "user", username)
	return a.Cart.Focus(ctx)
}

// Current returns the Active state, or cart.ErrUnauthenticated when no
// user is logged in.
func (s *Session) Current() (*Active, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil, cart.ErrUnauthenticated
	}
	return s.active, nil
}

// LoggedIn reports whether a user is logged in.
func (s *Session) LoggedIn() bool {
	_, err := s.Current()
	return err == nil
}

// Logout ends the server session and disposes the local state. Pending
// quantity edits are dropped. The local token is cleared even when the
// server call fails.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	a := s.active
	s.active = nil
	s.mu.Unlock()

	if a != nil {
		a.Cart.Close()
		a.Store.Clear()
	}
	if _, ok := s.tokens.Token(); ok {
		if err := s.client.Logout(ctx); err != nil && !cart.IsAuth(err) {
			s.log.Warn(ctx, "server logout failed", "error", err)
		}
	}
	if err := s.tokens.ClearToken(); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Expire disposes the local state after the server rejected the token,
// without calling the server.
func (s *Session) Expire(ctx context.Context) error {
	s.mu.Lock()
	a := s.active
	s.active = nil
	s.mu.Unlock()

	if a != nil {
		a.Cart.Close()
		a.Store.Clear()
	}
	s.log.Info(ctx, "session expired")
	return s.tokens.ClearToken()
}
