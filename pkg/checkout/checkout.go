// Package checkout places an order for the selected cart lines and clears
// them from the local and remote cart once the server accepts it.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"storefront/pkg/cart"
	"storefront/pkg/cart/local"
	"storefront/pkg/logger"
	"storefront/pkg/otel"
)

// State is the phase of an order attempt.
type State int

// Order attempt states.
const (
	Idle State = iota
	Validating
	Submitting
	Confirmed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Validating:
		return "validating"
	case Submitting:
		return "submitting"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrEmptySelection is returned when nothing is selected for checkout.
	ErrEmptySelection error = &cart.ValidationError{Field: "selection", Reason: "no items selected"}
	// ErrInProgress is returned when an order attempt is already running.
	ErrInProgress = errors.New("order already in progress")
)

// Receipt describes a confirmed order.
type Receipt struct {
	cart.Confirmation
	Lines []cart.OrderLine
	// FailedRemovals lists submitted lines the server cart still holds
	// because their removal call failed.
	FailedRemovals []string
}

// Flusher applies pending quantity edits before lines are resolved.
type Flusher interface {
	Flush()
}

// Flow runs order attempts against one store.
type Flow struct {
	gw      cart.Gateway
	store   *local.Store
	flusher Flusher
	log     *logger.Logger

	mu      sync.Mutex
	state   State
	lastErr error
	onState func(State)
}

// New returns a Flow. flusher may be nil.
func New(gw cart.Gateway, store *local.Store, flusher Flusher, log *logger.Logger) *Flow {
	return &Flow{gw: gw, store: store, flusher: flusher, log: log}
}

// OnTransition registers fn to observe every state change.
func (f *Flow) OnTransition(fn func(State)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onState = fn
}

// State returns the current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Err returns the error of the last failed attempt.
func (f *Flow) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

func (f *Flow) transition(s State) {
	f.mu.Lock()
	f.state = s
	fn := f.onState
	f.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (f *Flow) fail(err error) {
	f.mu.Lock()
	f.lastErr = err
	f.mu.Unlock()
	f.transition(Failed)
	f.transition(Idle)
}

// Place orders the selected lines. An empty selection fails before any
// request. If the server rejects the order the selection is kept for a
// retry. Once the server accepts it, every submitted line is removed from
// the server cart concurrently; removal failures are logged and listed on
// the receipt but never undo the order.
func (f *Flow) Place(ctx context.Context) (Receipt, error) {
	f.mu.Lock()
	if f.state == Validating || f.state == Submitting {
		f.mu.Unlock()
		return Receipt{}, ErrInProgress
	}
	f.lastErr = nil
	f.state = Validating
	fn := f.onState
	f.mu.Unlock()
	if fn != nil {
		fn(Validating)
	}

	if f.flusher != nil {
		f.flusher.Flush()
	}
	selected := f.store.SelectedLines()
	if len(selected) == 0 {
		f.mu.Lock()
		f.lastErr = ErrEmptySelection
		f.mu.Unlock()
		f.transition(Idle)
		return Receipt{}, ErrEmptySelection
	}

	lines := make([]cart.OrderLine, 0, len(selected))
	total := decimal.Zero
	for _, l := range selected {
		ol := cart.NewOrderLine(l)
		lines = append(lines, ol)
		total = total.Add(ol.Subtotal)
	}

	f.transition(Submitting)
	ctx, span := otel.AddSpan(ctx, "checkout.place",
		attribute.Int("lines", len(lines)),
		attribute.String("total", total.String()),
	)
	defer span.End()

	conf, err := f.gw.PlaceOrder(ctx, lines, total)
	if err != nil {
		span.RecordError(err)
		f.log.Warn(ctx, "place order failed", "lines", len(lines), "error", err)
		f.fail(err)
		return Receipt{}, fmt.Errorf("place order: %w", err)
	}

	failed := f.cleanup(ctx, lines)

	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.LineID
	}
	f.store.RemoveLines(ids...)

	f.transition(Confirmed)
	f.log.Info(ctx, "order placed", "order_id", conf.OrderID, "lines", len(lines), "total", conf.Total.String(), "failed_removals", len(failed))
	return Receipt{Confirmation: conf, Lines: lines, FailedRemovals: failed}, nil
}

// cleanup removes the submitted lines from the server cart and returns the
// ids whose removal failed.
func (f *Flow) cleanup(ctx context.Context, lines []cart.OrderLine) []string {
	var (
		g      errgroup.Group
		mu     sync.Mutex
		failed []string
	)
	for _, l := range lines {
		id := l.LineID
		if cart.IsPendingID(id) {
			continue
		}
		g.Go(func() error {
			if err := f.gw.RemoveItem(ctx, id); err != nil {
				f.log.Warn(ctx, "remove ordered line failed", "line_id", id, "error", err)
				mu.Lock()
				failed = append(failed, id)
				mu.Unlock()
				return err
			}
			return nil
		})
	}
	_ = g.Wait()
	return failed
}
