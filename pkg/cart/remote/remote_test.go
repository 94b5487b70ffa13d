package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/pkg/api"
	"storefront/pkg/auth"
	"storefront/pkg/cart"
	"storefront/pkg/logger"
	"storefront/pkg/session"

	basketmem "storefront/pkg/basket/memory"
	ordermem "storefront/pkg/order/memory"
)

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	s := api.New(basketmem.New(), ordermem.New(), session.NewMemory(0), logger.Nop(), nil)
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func loggedIn(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	tokens := auth.NewMemory()
	c := New(Config{BaseURL: srv.URL}, tokens, logger.Nop())
	tok, err := c.Login(context.Background(), "asha", "pw")
	require.NoError(t, err)
	require.NoError(t, tokens.SetToken(tok))
	return c
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := loggedIn(t, newBackend(t))

	lines, err := c.FetchCart(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, lines)

	l1, err := c.AddItem(ctx, "p1", 2, "Tea", decimal.NewFromInt(50))
	require.NoError(t, err)
	require.NotEmpty(t, l1.ID)
	assert.False(t, cart.IsPendingID(l1.ID))
	_, err = c.AddItem(ctx, "p2", 1, "Mug", decimal.NewFromInt(150))
	require.NoError(t, err)

	merged, err := c.AddItem(ctx, "p1", 1, "Tea", decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.Equal(t, l1.ID, merged.ID)
	assert.Equal(t, 3, merged.Quantity)

	page, err := c.FetchCart(ctx, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "p2", page[0].Product.ID)

	require.NoError(t, c.RemoveItem(ctx, l1.ID))
	require.NoError(t, c.RemoveItem(ctx, l1.ID), "already removed counts as success")

	a, err := c.FetchAddress(ctx)
	require.NoError(t, err)
	assert.True(t, a.IsZero())

	addr := cart.Address{Street: "1 Main", City: "Pune", State: "MH", Country: "IN", PostalCode: "411001"}
	require.NoError(t, c.UpdateAddress(ctx, addr))
	a, err = c.FetchAddress(ctx)
	require.NoError(t, err)
	assert.Equal(t, addr, a)

	line := cart.NewOrderLine(page[0])
	conf, err := c.PlaceOrder(ctx, []cart.OrderLine{line}, line.Subtotal)
	require.NoError(t, err)
	assert.NotEmpty(t, conf.OrderID)
	assert.True(t, conf.Total.Equal(decimal.NewFromInt(150)))

	_, err = c.PlaceOrder(ctx, []cart.OrderLine{line}, decimal.NewFromInt(1))
	assert.True(t, cart.IsValidation(err))

	require.NoError(t, c.Logout(ctx))
	_, err = c.FetchCart(ctx, 1, 10)
	assert.ErrorIs(t, err, cart.ErrUnauthenticated)
}

func TestNoTokenSkipsRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	t.Cleanup(srv.Close)

	c := New(Config{BaseURL: srv.URL}, auth.NewMemory(), logger.Nop())
	_, err := c.FetchCart(context.Background(), 1, 10)
	assert.ErrorIs(t, err, cart.ErrUnauthenticated)
	assert.True(t, cart.IsAuth(err))
	assert.Zero(t, hits.Load())
}

func TestUpdateAddressValidatesLocally(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	t.Cleanup(srv.Close)

	tokens := auth.NewMemory()
	require.NoError(t, tokens.SetToken("t"))
	c := New(Config{BaseURL: srv.URL}, tokens, logger.Nop())

	err := c.UpdateAddress(context.Background(), cart.Address{Street: "1 Main"})
	var ve *cart.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "city", ve.Field)
	assert.Zero(t, hits.Load())
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{"unauthorized", http.StatusUnauthorized, "", func(t *testing.T, err error) {
			assert.True(t, cart.IsAuth(err))
		}},
		{"forbidden", http.StatusForbidden, "", func(t *testing.T, err error) {
			assert.True(t, cart.IsAuth(err))
		}},
		{"unprocessable", http.StatusUnprocessableEntity, `{"field":"quantity","error":"must be at least 1"}`, func(t *testing.T, err error) {
			var ve *cart.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, "quantity", ve.Field)
			assert.Equal(t, "must be at least 1", ve.Reason)
		}},
		{"bad request plain", http.StatusBadRequest, "bad json", func(t *testing.T, err error) {
			var ve *cart.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, "bad json", ve.Reason)
		}},
		{"server error", http.StatusInternalServerError, "boom", func(t *testing.T, err error) {
			var ne *cart.NetworkError
			require.True(t, errors.As(err, &ne))
			assert.Equal(t, http.StatusInternalServerError, ne.Status)
			assert.True(t, cart.IsNetwork(err))
		}},
		{"malformed body", http.StatusOK, "{not json", func(t *testing.T, err error) {
			assert.True(t, cart.IsNetwork(err))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			t.Cleanup(srv.Close)

			tokens := auth.NewMemory()
			require.NoError(t, tokens.SetToken("tok"))
			c := New(Config{BaseURL: srv.URL}, tokens, logger.Nop())
			_, err := c.FetchCart(context.Background(), 1, 10)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestUnreachableIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	tokens := auth.NewMemory()
	require.NoError(t, tokens.SetToken("tok"))
	c := New(Config{BaseURL: url}, tokens, logger.Nop())
	_, err := c.FetchCart(context.Background(), 1, 10)
	assert.True(t, cart.IsNetwork(err))
}
