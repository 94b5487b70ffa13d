package checkout

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/pkg/cart"
	"storefront/pkg/cart/carttest"
	"storefront/pkg/cart/local"
	"storefront/pkg/logger"
)

type flushCounter int

func (f *flushCounter) Flush() { *f++ }

func seeded(lines ...cart.Line) *local.Store {
	s := local.New()
	s.SetSnapshot(lines, true)
	return s
}

func TestPlaceRejectsEmptySelection(t *testing.T) {
	gw := &carttest.Gateway{}
	store := seeded(carttest.Line("l1", "p1", 10, 1))
	f := New(gw, store, nil, logger.Nop())

	var seen []State
	f.OnTransition(func(s State) { seen = append(seen, s) })

	_, err := f.Place(context.Background())
	require.ErrorIs(t, err, ErrEmptySelection)
	assert.True(t, cart.IsValidation(err))
	assert.Equal(t, Idle, f.State())
	assert.Equal(t, []State{Validating, Idle}, seen)
	assert.Empty(t, gw.Orders())
	assert.Empty(t, gw.Removed())
}

func TestPlaceConfirmed(t *testing.T) {
	gw := &carttest.Gateway{RemoveErr: map[string]error{"l2": errors.New("timeout")}}
	store := seeded(
		carttest.Line("l1", "A", 100, 2),
		carttest.Line("l2", "B", 50, 1),
		carttest.Line("l3", "C", 10, 9),
	)
	store.ToggleSelection("A")
	store.ToggleSelection("B")
	var flushed flushCounter
	f := New(gw, store, &flushed, logger.Nop())

	rec, err := f.Place(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Confirmed, f.State())
	assert.Equal(t, flushCounter(1), flushed)

	require.Len(t, gw.Orders(), 1)
	order := gw.Orders()[0]
	assert.True(t, order.Total.Equal(decimal.NewFromInt(250)))
	require.Len(t, order.Lines, 2)
	assert.True(t, order.Lines[0].Subtotal.Equal(decimal.NewFromInt(200)))

	removed := gw.Removed()
	sort.Strings(removed)
	assert.Equal(t, []string{"l1", "l2"}, removed)
	assert.Equal(t, []string{"l2"}, rec.FailedRemovals)
	assert.True(t, rec.Total.Equal(decimal.NewFromInt(250)))

	// submitted lines leave the store even when their removal failed
	_, ok1 := store.Line("l1")
	_, ok2 := store.Line("l2")
	assert.False(t, ok1)
	assert.False(t, ok2)
	assert.Empty(t, store.Selected())
	assert.Equal(t, 1, store.Len())
}

func TestPlaceFailureKeepsSelection(t *testing.T) {
	gw := &carttest.Gateway{OrderErr: &cart.NetworkError{Op: "place order", Status: 503}}
	store := seeded(carttest.Line("l1", "A", 100, 1))
	store.ToggleSelection("A")
	f := New(gw, store, nil, logger.Nop())

	var seen []State
	f.OnTransition(func(s State) { seen = append(seen, s) })

	_, err := f.Place(context.Background())
	require.Error(t, err)
	assert.True(t, cart.IsNetwork(err))
	assert.True(t, cart.IsNetwork(f.Err()))
	assert.Equal(t, Idle, f.State())
	assert.Equal(t, []State{Validating, Submitting, Failed, Idle}, seen)
	assert.Equal(t, []string{"A"}, store.Selected())
	assert.Equal(t, 1, store.Len())
	assert.Empty(t, gw.Removed())

	// retry without reselecting
	gw.OrderErr = nil
	_, err = f.Place(context.Background())
	require.NoError(t, err)
	assert.Zero(t, store.Len())
}

func TestPlaceSkipsRemovalOfPendingLines(t *testing.T) {
	gw := &carttest.Gateway{}
	pending := carttest.Line(cart.PendingPrefix+"x", "A", 10, 1)
	pending.Pending = true
	store := seeded(pending)
	store.ToggleSelection("A")

	_, err := New(gw, store, nil, logger.Nop()).Place(context.Background())
	require.NoError(t, err)
	assert.Empty(t, gw.Removed())
	assert.Zero(t, store.Len())
}

func TestOrderTotalMatchesSubmittedLines(t *testing.T) {
	for i := 0; i < 50; i++ {
		gw := &carttest.Gateway{}
		store := seeded(carttest.Line("l1", "A", 100, 1), carttest.Line("l2", "B", 150, 1))
		store.ToggleSelection("A")

		stop := make(chan struct{})
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				select {
				case <-stop:
					return
				default:
					store.ToggleSelection("B")
				}
			}
		}()

		_, err := New(gw, store, nil, logger.Nop()).Place(context.Background())
		close(stop)
		<-done
		require.NoError(t, err)

		orders := gw.Orders()
		require.Len(t, orders, 1)
		sum := decimal.Zero
		for _, l := range orders[0].Lines {
			sum = sum.Add(l.Subtotal)
		}
		if !sum.Equal(orders[0].Total) {
			t.Fatalf("iteration %d: total %s, lines sum to %s", i, orders[0].Total, sum)
		}
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "submitting", Submitting.String())
	assert.Equal(t, "unknown", State(42).String())
}
