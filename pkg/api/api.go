// Package api serves the cart REST API used by the storefront client.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.opentelemetry.io/otel/trace"

	"storefront/pkg/basket"
	"storefront/pkg/cart"
	"storefront/pkg/logger"
	"storefront/pkg/order"
	"storefront/pkg/otel"
	"storefront/pkg/session"
)

// Pagination bounds for GET /cart.
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

type ctxKey int

const (
	userKey ctxKey = iota
	tokenKey
)

// Server holds the API dependencies.
type Server struct {
	carts    basket.Repository
	orders   order.Repository
	sessions session.Store
	log      *logger.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// New returns a Server. tracer may be nil.
func New(carts basket.Repository, orders order.Repository, sessions session.Store, log *logger.Logger, tracer trace.Tracer) *Server {
	return &Server{carts: carts, orders: orders, sessions: sessions, log: log, tracer: tracer, now: time.Now}
}

// Routes returns the HTTP handler for the API.
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.traceMiddleware)
	r.HandleFunc("/login", s.loginHandler).Methods(http.MethodPost)

	authed := r.NewRoute().Subrouter()
	authed.Use(s.authMiddleware)
	authed.HandleFunc("/logout", s.logoutHandler).Methods(http.MethodPost)
	authed.HandleFunc("/cart", s.listCartHandler).Methods(http.MethodGet)
	authed.HandleFunc("/cart", s.addItemHandler).Methods(http.MethodPost)
	authed.HandleFunc("/cart/{id}", s.removeItemHandler).Methods(http.MethodDelete)
	authed.HandleFunc("/address", s.getAddressHandler).Methods(http.MethodGet)
	authed.HandleFunc("/address", s.putAddressHandler).Methods(http.MethodPut)
	authed.HandleFunc("/orders", s.createOrderHandler).Methods(http.MethodPost)
	authed.HandleFunc("/orders", s.listOrdersHandler).Methods(http.MethodGet)
	authed.HandleFunc("/orders/{id}", s.getOrderHandler).Methods(http.MethodGet)
	authed.HandleFunc("/orders/{id}", s.deleteOrderHandler).Methods(http.MethodDelete)

	r.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)
	return r
}

func (s *Server) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.ExtractHeaders(r.Context(), r.Header)
		if s.tracer != nil {
			ctx = otel.InjectTracing(ctx, s.tracer)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authMiddleware ensures a valid bearer session exists.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearer(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, err := s.sessions.Lookup(r.Context(), token)
		if err != nil {
			if !errors.Is(err, session.ErrNotFound) {
				s.log.Error(r.Context(), "session lookup", "error", err)
			}
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), userKey, user)
		ctx = context.WithValue(ctx, tokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}

func userFrom(ctx context.Context) string {
	u, _ := ctx.Value(userKey).(string)
	return u
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeValidation(w http.ResponseWriter, ve *cart.ValidationError) {
	writeJSON(w, http.StatusUnprocessableEntity, ve)
}

// loginHandler handles user login and session creation.
// @Summary Login
// @Description Authenticates user and returns a bearer token
// @Accept json
// @Produce json
// @Param creds body cart.LoginRequest true "Credentials"
// @Success 200 {object} cart.LoginResponse
// @Router /login [post]
func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "loginHandler")
	defer span.End()

	var req cart.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		writeError(w, http.StatusBadRequest, "invalid credentials")
		return
	}
	token, err := s.sessions.Create(ctx, req.Username)
	if err != nil {
		s.log.Error(ctx, "create session", "error", err)
		writeError(w, http.StatusInternalServerError, "session error")
		return
	}
	s.log.Info(ctx, "login", "user", req.Username)
	writeJSON(w, http.StatusOK, cart.LoginResponse{Token: token})
}

// logoutHandler ends the current session.
// @Summary Logout
// @Success 204
// @Security BearerAuth
// @Router /logout [post]
func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "logoutHandler")
	defer span.End()

	token, _ := ctx.Value(tokenKey).(string)
	if err := s.sessions.Delete(ctx, token); err != nil {
		s.log.Error(ctx, "delete session", "error", err)
		writeError(w, http.StatusInternalServerError, "session error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pageParams(r *http.Request) (page, limit int, ve *cart.ValidationError) {
	page, limit = 1, DefaultLimit
	q := r.URL.Query()
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return 0, 0, &cart.ValidationError{Field: "page", Reason: "must be a positive integer"}
		}
		page = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return 0, 0, &cart.ValidationError{Field: "limit", Reason: "must be a positive integer"}
		}
		limit = n
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit, nil
}

// listCartHandler lists one page of the user's cart.
// @Summary List cart
// @Produce json
// @Param page query int false "1-based page"
// @Param limit query int false "Page size"
// @Success 200 {object} cart.PageResponse
// @Security BearerAuth
// @Router /cart [get]
func (s *Server) listCartHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "listCartHandler")
	defer span.End()

	page, limit, ve := pageParams(r)
	if ve != nil {
		writeValidation(w, ve)
		return
	}
	lines, err := s.carts.List(ctx, userFrom(ctx), (page-1)*limit, limit)
	if err != nil {
		s.log.Error(ctx, "list cart", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cart.PageResponse{Items: lines})
}

// addItemHandler adds a product to the user's cart.
// @Summary Add item
// @Accept json
// @Produce json
// @Param item body cart.AddRequest true "Item"
// @Success 201 {object} cart.Line
// @Failure 422 {object} cart.ValidationError
// @Security BearerAuth
// @Router /cart [post]
func (s *Server) addItemHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "addItemHandler")
	defer span.End()

	var req cart.AddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	switch {
	case req.ProductID == "":
		writeValidation(w, &cart.ValidationError{Field: "product_id", Reason: "required"})
		return
	case req.Quantity < 1:
		writeValidation(w, &cart.ValidationError{Field: "quantity", Reason: "must be at least 1"})
		return
	case req.Price.IsNegative():
		writeValidation(w, &cart.ValidationError{Field: "price", Reason: "must not be negative"})
		return
	}
	line, err := s.carts.Add(ctx, userFrom(ctx), cart.Line{
		Product:  cart.Product{ID: req.ProductID, Name: req.Name, Price: req.Price, Image: req.Image},
		Quantity: req.Quantity,
	})
	if err != nil {
		s.log.Error(ctx, "add item", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, line)
}

// removeItemHandler removes a line from the user's cart.
// @Summary Remove item
// @Param id path string true "Line ID"
// @Success 204
// @Failure 404
// @Security BearerAuth
// @Router /cart/{id} [delete]
func (s *Server) removeItemHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "removeItemHandler")
	defer span.End()

	id := mux.Vars(r)["id"]
	if err := s.carts.Remove(ctx, userFrom(ctx), id); err != nil {
		if errors.Is(err, basket.ErrNotFound) {
			writeError(w, http.StatusNotFound, "line not found")
			return
		}
		s.log.Error(ctx, "remove item", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// getAddressHandler returns the saved delivery address.
// @Summary Get address
// @Produce json
// @Success 200 {object} cart.Address
// @Failure 404
// @Security BearerAuth
// @Router /address [get]
func (s *Server) getAddressHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "getAddressHandler")
	defer span.End()

	a, err := s.carts.Address(ctx, userFrom(ctx))
	if err != nil {
		if errors.Is(err, basket.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no address")
			return
		}
		s.log.Error(ctx, "get address", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// putAddressHandler saves the delivery address.
// @Summary Update address
// @Accept json
// @Param address body cart.Address true "Address"
// @Success 204
// @Failure 422 {object} cart.ValidationError
// @Security BearerAuth
// @Router /address [put]
func (s *Server) putAddressHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "putAddressHandler")
	defer span.End()

	var a cart.Address
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.Validate(); err != nil {
		var ve *cart.ValidationError
		errors.As(err, &ve)
		writeValidation(w, ve)
		return
	}
	if err := s.carts.SaveAddress(ctx, userFrom(ctx), a); err != nil {
		s.log.Error(ctx, "save address", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// createOrderHandler places an order.
// @Summary Create order
// @Accept json
// @Produce json
// @Param order body cart.OrderRequest true "Order"
// @Success 201 {object} cart.Confirmation
// @Failure 422 {object} cart.ValidationError
// @Security BearerAuth
// @Router /orders [post]
func (s *Server) createOrderHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "createOrderHandler")
	defer span.End()

	var req cart.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Lines) == 0 {
		writeValidation(w, &cart.ValidationError{Field: "lines", Reason: "no items"})
		return
	}
	sum := decimal.Zero
	for _, l := range req.Lines {
		if l.Quantity < 1 {
			writeValidation(w, &cart.ValidationError{Field: "quantity", Reason: "must be at least 1"})
			return
		}
		sum = sum.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	if !sum.Equal(req.Total) {
		writeValidation(w, &cart.ValidationError{Field: "total", Reason: "does not match lines"})
		return
	}

	o := order.Order{
		ID:       uuid.NewString(),
		UserID:   userFrom(ctx),
		Lines:    req.Lines,
		Total:    sum,
		PlacedAt: s.now().UTC(),
	}
	if err := s.orders.Create(ctx, o); err != nil {
		s.log.Error(ctx, "create order", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log.Info(ctx, "order created", "order_id", o.ID, "user", o.UserID, "lines", len(o.Lines))
	writeJSON(w, http.StatusCreated, o.Confirmation())
}

// listOrdersHandler lists the user's orders.
// @Summary List orders
// @Produce json
// @Success 200 {array} order.Order
// @Security BearerAuth
// @Router /orders [get]
func (s *Server) listOrdersHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "listOrdersHandler")
	defer span.End()

	orders, err := s.orders.List(ctx, userFrom(ctx))
	if err != nil {
		s.log.Error(ctx, "list orders", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// getOrderHandler retrieves an order by ID.
// @Summary Get order
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} order.Order
// @Security BearerAuth
// @Router /orders/{id} [get]
func (s *Server) getOrderHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "getOrderHandler")
	defer span.End()

	o, ok := s.ownOrder(w, r.WithContext(ctx))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// deleteOrderHandler cancels an order.
// @Summary Delete order
// @Param id path string true "Order ID"
// @Success 204
// @Security BearerAuth
// @Router /orders/{id} [delete]
func (s *Server) deleteOrderHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "deleteOrderHandler")
	defer span.End()

	o, ok := s.ownOrder(w, r.WithContext(ctx))
	if !ok {
		return
	}
	if err := s.orders.Delete(ctx, o.ID); err != nil && !errors.Is(err, order.ErrNotFound) {
		s.log.Error(ctx, "delete order", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ownOrder loads the order named in the path, answering 404 when it is
// missing or belongs to someone else.
func (s *Server) ownOrder(w http.ResponseWriter, r *http.Request) (order.Order, bool) {
	ctx := r.Context()
	o, err := s.orders.Get(ctx, mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			http.NotFound(w, r)
			return order.Order{}, false
		}
		s.log.Error(ctx, "get order", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return order.Order{}, false
	}
	if o.UserID != userFrom(ctx) {
		http.NotFound(w, r)
		return order.Order{}, false
	}
	return o, true
}
