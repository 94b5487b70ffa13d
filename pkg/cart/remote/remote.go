// Package remote is the HTTP client for the cart REST API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"storefront/pkg/auth"
	"storefront/pkg/cart"
	"storefront/pkg/logger"
	"storefront/pkg/otel"
)

// DefaultTimeout bounds every request.
const DefaultTimeout = 5 * time.Second

// Config holds client configuration.
type Config struct {
	BaseURL string
	// HTTPClient overrides the transport, mainly for tests. Its Timeout is
	// forced to DefaultTimeout.
	HTTPClient *http.Client
}

// Client talks to the cart API on behalf of one user.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     auth.TokenSource
	log        *logger.Logger
}

var _ cart.Gateway = (*Client)(nil)

// New creates a cart API client that authenticates with tokens.
func New(cfg Config, tokens auth.TokenSource, log *logger.Logger) *Client {
	hc := &http.Client{}
	if cfg.HTTPClient != nil {
		copied := *cfg.HTTPClient
		hc = &copied
	}
	hc.Timeout = DefaultTimeout
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: hc,
		tokens:     tokens,
		log:        log,
	}
}

type call struct {
	op     string
	method string
	path   string
	in     any
	out    any
	ok     []int
	noAuth bool
}

// do performs c and returns the response status. Statuses listed in c.ok
// are successes; c.out is decoded only for 2xx bodies.
func (c *Client) do(ctx context.Context, cl call) (int, error) {
	ctx, span := otel.AddSpan(ctx, "remote."+strings.ReplaceAll(cl.op, " ", "_"),
		attribute.String("http.method", cl.method),
		attribute.String("http.path", cl.path),
	)
	defer span.End()

	status, err := c.send(ctx, span, cl)
	if err != nil {
		span.RecordError(err)
		c.log.Debug(ctx, "cart api call failed", "op", cl.op, "status", status, "error", err)
	}
	return status, err
}

func (c *Client) send(ctx context.Context, span trace.Span, cl call) (int, error) {
	var token string
	if !cl.noAuth {
		t, ok := c.tokens.Token()
		if !ok {
			return 0, fmt.Errorf("%s: %w", cl.op, cart.ErrUnauthenticated)
		}
		token = t
	}

	var body io.Reader
	if cl.in != nil {
		b, err := json.Marshal(cl.in)
		if err != nil {
			return 0, fmt.Errorf("%s: marshal request: %w", cl.op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, c.baseURL+cl.path, body)
	if err != nil {
		return 0, fmt.Errorf("%s: create request: %w", cl.op, err)
	}
	if cl.in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	otel.InjectHeaders(ctx, req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &cart.NetworkError{Op: cl.op, Err: err}
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, &cart.NetworkError{Op: cl.op, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return resp.StatusCode, fmt.Errorf("%s: %w", cl.op, cart.ErrUnauthenticated)
	case contains(cl.ok, resp.StatusCode):
		if cl.out != nil && resp.StatusCode < 300 && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, cl.out); err != nil {
				return resp.StatusCode, &cart.NetworkError{Op: cl.op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
			}
		}
		return resp.StatusCode, nil
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		ve := &cart.ValidationError{}
		if err := json.Unmarshal(respBody, ve); err != nil || ve.Reason == "" {
			ve.Reason = strings.TrimSpace(string(respBody))
		}
		return resp.StatusCode, ve
	default:
		ne := &cart.NetworkError{Op: cl.op, Status: resp.StatusCode}
		if msg := strings.TrimSpace(string(respBody)); msg != "" {
			ne.Err = errors.New(msg)
		}
		return resp.StatusCode, ne
	}
}

func contains(codes []int, code int) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// Login exchanges credentials for a bearer token. It does not store it.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var out cart.LoginResponse
	_, err := c.do(ctx, call{
		op:     "login",
		method: http.MethodPost,
		path:   "/login",
		in:     cart.LoginRequest{Username: username, Password: password},
		out:    &out,
		ok:     []int{http.StatusOK},
		noAuth: true,
	})
	if err != nil {
		return "", err
	}
	return out.Token, nil
}

// Logout ends the server session for the current token.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(ctx, call{op: "logout", method: http.MethodPost, path: "/logout", ok: []int{http.StatusNoContent, http.StatusOK}})
	return err
}

// FetchCart returns one 1-based page of the server cart.
func (c *Client) FetchCart(ctx context.Context, page, limit int) ([]cart.Line, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	var out cart.PageResponse
	if _, err := c.do(ctx, call{
		op:     "fetch cart",
		method: http.MethodGet,
		path:   "/cart?" + q.Encode(),
		out:    &out,
		ok:     []int{http.StatusOK},
	}); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// AddItem adds quantity of a product and returns the server line.
func (c *Client) AddItem(ctx context.Context, productID string, quantity int, name string, price decimal.Decimal) (cart.Line, error) {
	var out cart.Line
	_, err := c.do(ctx, call{
		op:     "add item",
		method: http.MethodPost,
		path:   "/cart",
		in:     cart.AddRequest{ProductID: productID, Quantity: quantity, Name: name, Price: price},
		out:    &out,
		ok:     []int{http.StatusCreated, http.StatusOK},
	})
	return out, err
}

// RemoveItem deletes a line. A line the server no longer has counts as
// removed.
func (c *Client) RemoveItem(ctx context.Context, lineID string) error {
	_, err := c.do(ctx, call{
		op:     "remove item",
		method: http.MethodDelete,
		path:   "/cart/" + url.PathEscape(lineID),
		ok:     []int{http.StatusNoContent, http.StatusOK, http.StatusNotFound},
	})
	return err
}

// FetchAddress returns the saved address, or the zero Address if none.
func (c *Client) FetchAddress(ctx context.Context) (cart.Address, error) {
	var out cart.Address
	status, err := c.do(ctx, call{
		op:     "fetch address",
		method: http.MethodGet,
		path:   "/address",
		out:    &out,
		ok:     []int{http.StatusOK, http.StatusNotFound},
	})
	if err != nil || status == http.StatusNotFound {
		return cart.Address{}, err
	}
	return out, nil
}

// UpdateAddress saves a. Incomplete addresses are rejected locally.
func (c *Client) UpdateAddress(ctx context.Context, a cart.Address) error {
	if err := a.Validate(); err != nil {
		return err
	}
	_, err := c.do(ctx, call{
		op:     "update address",
		method: http.MethodPut,
		path:   "/address",
		in:     a,
		ok:     []int{http.StatusNoContent, http.StatusOK},
	})
	return err
}

// PlaceOrder submits lines with their total.
func (c *Client) PlaceOrder(ctx context.Context, lines []cart.OrderLine, total decimal.Decimal) (cart.Confirmation, error) {
	var out cart.Confirmation
	_, err := c.do(ctx, call{
		op:     "place order",
		method: http.MethodPost,
		path:   "/orders",
		in:     cart.OrderRequest{Lines: lines, Total: total},
		out:    &out,
		ok:     []int{http.StatusCreated, http.StatusOK},
	})
	return out, err
}
