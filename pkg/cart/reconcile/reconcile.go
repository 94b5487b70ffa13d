// Package reconcile keeps the local cart store in step with the remote
// cart: paginated fetches, optimistic add and remove, and debounced
// quantity edits.
package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"storefront/pkg/cart"
	"storefront/pkg/cart/local"
	"storefront/pkg/logger"
	"storefront/pkg/otel"
)

// Defaults used when Config leaves a field zero.
const (
	DefaultLimit    = 10
	DefaultDebounce = 300 * time.Millisecond
)

// Config tunes a Reconciler.
type Config struct {
	// Limit is the page size requested from the server.
	Limit int
	// Debounce is the window in which quantity edits to one line coalesce.
	Debounce time.Duration
}

// Reconciler merges server state into a local.Store.
type Reconciler struct {
	gw       cart.Gateway
	store    *local.Store
	log      *logger.Logger
	limit    int
	debounce time.Duration

	mu       sync.Mutex
	fetching bool
	gen      uint64
	page     int
	hasMore  bool
	empty    bool
	err      error
	fetchErr bool
	address  cart.Address

	qmu     sync.Mutex
	timers  map[string]debounceTimer
	seq     uint64
	pending map[string]int
	closed  bool
}

type debounceTimer struct {
	t   *time.Timer
	seq uint64
}

// New returns a Reconciler driving store through gw.
func New(gw cart.Gateway, store *local.Store, log *logger.Logger, cfg Config) *Reconciler {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	return &Reconciler{
		gw:       gw,
		store:    store,
		log:      log,
		limit:    cfg.Limit,
		debounce: cfg.Debounce,
		timers:   make(map[string]debounceTimer),
		pending:  make(map[string]int),
	}
}

// Store returns the store being reconciled.
func (r *Reconciler) Store() *local.Store { return r.store }

// Refresh fetches the first page and replaces the snapshot with it.
func (r *Reconciler) Refresh(ctx context.Context) error {
	return r.fetch(ctx, true)
}

// LoadMore fetches the next page and appends it. It does nothing when the
// last page was short.
func (r *Reconciler) LoadMore(ctx context.Context) error {
	return r.fetch(ctx, false)
}

func (r *Reconciler) fetch(ctx context.Context, replace bool) error {
	r.mu.Lock()
	if r.fetching {
		r.mu.Unlock()
		r.log.Debug(ctx, "cart fetch already in flight", "replace", replace)
		return nil
	}
	if !replace && !r.hasMore {
		r.mu.Unlock()
		return nil
	}
	page := 1
	if !replace {
		page = r.page + 1
	}
	r.fetching = true
	gen := r.gen
	r.mu.Unlock()

	ctx, span := otel.AddSpan(ctx, "reconcile.fetch",
		attribute.Int("page", page),
		attribute.Int("limit", r.limit),
	)
	defer span.End()

	lines, err := r.gw.FetchCart(ctx, page, r.limit)

	r.mu.Lock()
	if gen != r.gen {
		// the guard was reset while this fetch was in flight; a newer fetch owns it
		r.mu.Unlock()
		r.log.Debug(ctx, "discarding stale cart page", "page", page)
		return err
	}
	if err != nil {
		r.fetching = false
		r.err = err
		r.fetchErr = true
		r.mu.Unlock()
		span.RecordError(err)
		r.log.Warn(ctx, "fetch cart failed", "page", page, "error", err)
		return err
	}
	r.mu.Unlock()

	r.store.SetSnapshot(lines, replace)

	r.mu.Lock()
	if gen != r.gen {
		// reset during the merge; the guard and paging belong to the newer fetch
		r.mu.Unlock()
		return nil
	}
	r.fetching = false
	r.page = page
	r.hasMore = len(lines) == r.limit
	if replace {
		r.empty = len(lines) == 0
	}
	if r.fetchErr {
		r.err = nil
		r.fetchErr = false
	}
	r.mu.Unlock()

	r.log.Debug(ctx, "cart page merged", "page", page, "lines", len(lines), "replace", replace)
	return nil
}

// ResetGuard clears the in-flight fetch flag. A fetch still running when
// the guard is reset has its result discarded.
func (r *Reconciler) ResetGuard() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetching = false
	r.gen++
}

// Focus resets the fetch guard and loads the cart and the saved address
// concurrently. It returns the first error of the two.
func (r *Reconciler) Focus(ctx context.Context) error {
	r.ResetGuard()
	var g errgroup.Group
	g.Go(func() error { return r.Refresh(ctx) })
	g.Go(func() error { return r.LoadAddress(ctx) })
	return g.Wait()
}

// HasMore reports whether the last fetched page was full.
func (r *Reconciler) HasMore() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasMore
}

// Empty reports whether the last reset fetch succeeded with no lines.
func (r *Reconciler) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.empty
}

// Fetching reports whether a fetch is in flight.
func (r *Reconciler) Fetching() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetching
}

// Err returns the last recorded failure, or nil. A successful fetch
// clears a fetch failure but leaves add, remove and address failures
// until ClearErr.
func (r *Reconciler) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// ClearErr dismisses the recorded failure.
func (r *Reconciler) ClearErr() {
	r.setErr(nil)
}

func (r *Reconciler) setErr(err error) {
	r.mu.Lock()
	r.err = err
	r.fetchErr = false
	r.mu.Unlock()
}

// AddItem adds qty of p to the store optimistically, then asks the server
// to persist it. A product not yet in the cart gets a pending line with a
// local id that takes the server id on success. A product already in the
// cart keeps its line id and has its quantity raised, as the server merges
// quantities per product. On failure the optimistic state stays and the
// error is recorded.
func (r *Reconciler) AddItem(ctx context.Context, p cart.Product, qty int) (cart.Line, error) {
	if qty < 1 {
		qty = 1
	}
	opt, ok := r.store.LineByProduct(p.ID)
	if ok {
		r.flushKey(opt.ID)
		opt, ok = r.store.LineByProduct(p.ID)
	}
	if ok {
		opt.Quantity += qty
	} else {
		opt = cart.Line{
			ID:       cart.PendingPrefix + uuid.NewString(),
			Product:  p,
			Quantity: qty,
		}
	}
	opt.Pending = true
	r.store.Add(opt)

	ctx, span := otel.AddSpan(ctx, "reconcile.add", attribute.String("product_id", p.ID))
	defer span.End()

	srv, err := r.gw.AddItem(ctx, p.ID, qty, p.Name, p.Price)
	if err != nil {
		r.setErr(err)
		span.RecordError(err)
		r.log.Warn(ctx, "add item failed", "product_id", p.ID, "error", err)
		return opt, err
	}

	cur, held := r.store.LineByProduct(p.ID)
	if held {
		r.flushKey(cur.ID)
		cur, held = r.store.LineByProduct(p.ID)
	}
	if !held {
		r.log.Info(ctx, "line removed before confirmation", "line_id", srv.ID)
		return srv, nil
	}
	if cur.Quantity != opt.Quantity {
		// edited while the add was in flight
		srv.Quantity = cur.Quantity
	}
	if srv.Product.ID == "" {
		srv.Product = p
	}
	r.store.Confirm(cur.ID, srv)
	return srv, nil
}

// RemoveItem drops the line locally and on the server. A server failure is
// recorded; the local removal stands.
func (r *Reconciler) RemoveItem(ctx context.Context, lineID string) error {
	r.cancelKey(lineID)
	r.store.Remove(lineID)
	if cart.IsPendingID(lineID) {
		return nil
	}

	ctx, span := otel.AddSpan(ctx, "reconcile.remove", attribute.String("line_id", lineID))
	defer span.End()

	if err := r.gw.RemoveItem(ctx, lineID); err != nil {
		r.setErr(err)
		span.RecordError(err)
		r.log.Warn(ctx, "remove item failed", "line_id", lineID, "error", err)
		return err
	}
	return nil
}

// Increment schedules a quantity increase for lineID.
func (r *Reconciler) Increment(lineID string) bool {
	return r.adjust(lineID, func(q int) int { return q + 1 })
}

// Decrement schedules a quantity decrease for lineID, never below 1.
func (r *Reconciler) Decrement(lineID string) bool {
	return r.adjust(lineID, func(q int) int { return q - 1 })
}

// SetQuantity schedules an absolute quantity for lineID, never below 1.
func (r *Reconciler) SetQuantity(lineID string, qty int) bool {
	return r.adjust(lineID, func(int) int { return qty })
}

// PendingQuantity returns the quantity scheduled for lineID but not yet
// applied to the store.
func (r *Reconciler) PendingQuantity(lineID string) (int, bool) {
	r.qmu.Lock()
	defer r.qmu.Unlock()
	q, ok := r.pending[lineID]
	return q, ok
}

func (r *Reconciler) adjust(lineID string, next func(int) int) bool {
	r.qmu.Lock()
	defer r.qmu.Unlock()
	if r.closed {
		return false
	}
	cur, ok := r.pending[lineID]
	if !ok {
		l, found := r.store.Line(lineID)
		if !found {
			return false
		}
		cur = l.Quantity
	}
	q := next(cur)
	if q < 1 {
		q = 1
	}
	r.pending[lineID] = q
	if dt, ok := r.timers[lineID]; ok {
		dt.t.Stop()
	}
	r.seq++
	seq := r.seq
	r.timers[lineID] = debounceTimer{
		t:   time.AfterFunc(r.debounce, func() { r.fire(lineID, seq) }),
		seq: seq,
	}
	return true
}

// fire runs when the timer scheduled as seq expires. A timer that was
// replaced after it had already fired finds a newer seq and does nothing.
func (r *Reconciler) fire(lineID string, seq uint64) {
	r.qmu.Lock()
	if dt, ok := r.timers[lineID]; !ok || dt.seq != seq {
		r.qmu.Unlock()
		return
	}
	q, ok := r.take(lineID)
	r.qmu.Unlock()
	if ok {
		r.store.SetQuantity(lineID, q)
	}
}

// flushKey applies the pending quantity for lineID, if any.
func (r *Reconciler) flushKey(lineID string) {
	r.qmu.Lock()
	q, ok := r.take(lineID)
	r.qmu.Unlock()
	if ok {
		r.store.SetQuantity(lineID, q)
	}
}

// take removes the pending quantity and timer for lineID. qmu must be held.
func (r *Reconciler) take(lineID string) (int, bool) {
	q, ok := r.pending[lineID]
	delete(r.pending, lineID)
	if dt, found := r.timers[lineID]; found {
		dt.t.Stop()
		delete(r.timers, lineID)
	}
	return q, ok
}

func (r *Reconciler) cancelKey(lineID string) {
	r.qmu.Lock()
	defer r.qmu.Unlock()
	r.take(lineID)
}

// Flush applies every pending quantity edit immediately.
func (r *Reconciler) Flush() {
	r.qmu.Lock()
	keys := make([]string, 0, len(r.pending))
	for k := range r.pending {
		keys = append(keys, k)
	}
	r.qmu.Unlock()
	for _, k := range keys {
		r.flushKey(k)
	}
}

// Close stops pending timers and drops unapplied edits.
func (r *Reconciler) Close() {
	r.qmu.Lock()
	defer r.qmu.Unlock()
	r.closed = true
	for k, dt := range r.timers {
		dt.t.Stop()
		delete(r.timers, k)
	}
	r.pending = make(map[string]int)
}

// LoadAddress fetches the saved delivery address.
func (r *Reconciler) LoadAddress(ctx context.Context) error {
	a, err := r.gw.FetchAddress(ctx)
	if err != nil {
		r.setErr(err)
		r.log.Warn(ctx, "fetch address failed", "error", err)
		return err
	}
	r.mu.Lock()
	r.address = a
	r.mu.Unlock()
	return nil
}

// Address returns the last loaded or saved address.
func (r *Reconciler) Address() cart.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.address
}

// SaveAddress validates a and sends it to the server. Incomplete addresses
// fail with *cart.ValidationError before any request.
func (r *Reconciler) SaveAddress(ctx context.Context, a cart.Address) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if err := r.gw.UpdateAddress(ctx, a); err != nil {
		if !cart.IsValidation(err) {
			r.setErr(err)
		}
		r.log.Warn(ctx, "update address failed", "error", err)
		return err
	}
	r.mu.Lock()
	r.address = a
	r.mu.Unlock()
	return nil
}
