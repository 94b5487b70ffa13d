package local

import (
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"storefront/pkg/cart"
)

func line(id, pid string, price int64, qty int) cart.Line {
	return cart.Line{ID: id, Product: cart.Product{ID: pid, Name: "item " + pid, Price: decimal.NewFromInt(price)}, Quantity: qty}
}

func TestStore(t *testing.T) {
	s := New()
	s.Add(line("l1", "p1", 100, 2))
	s.Add(line("l2", "p2", 50, 1))

	if s.Len() != 2 || s.Units() != 3 {
		t.Fatalf("expected 2 lines / 3 units, got %d / %d", s.Len(), s.Units())
	}
	if !s.Remove("l2") {
		t.Fatal("expected l2 to be removed")
	}
	if s.Remove("l2") {
		t.Fatal("second remove should report absence")
	}
	if _, ok := s.Line("l2"); ok {
		t.Fatal("l2 still present")
	}
	s.Clear()
	if s.Len() != 0 || len(s.Selected()) != 0 {
		t.Fatal("clear left state behind")
	}
}

func TestSetSnapshotDedupLastWriteWins(t *testing.T) {
	s := New()
	s.SetSnapshot([]cart.Line{
		line("l1", "p1", 10, 1),
		line("l2", "p2", 20, 1),
		line("l3", "p1", 10, 5),
	}, true)

	lines := s.Lines()
	if len(lines) != 2 {
		t.Fatalf("expected 2 unique products, got %d", len(lines))
	}
	got, ok := s.LineByProduct("p1")
	if !ok || got.ID != "l3" || got.Quantity != 5 {
		t.Fatalf("expected last write for p1, got %+v", got)
	}

	s.SetSnapshot([]cart.Line{line("l4", "p2", 20, 3), line("l5", "p3", 30, 1)}, false)
	if s.Len() != 3 {
		t.Fatalf("append: expected 3 lines, got %d", s.Len())
	}
	if l, _ := s.LineByProduct("p2"); l.ID != "l4" {
		t.Fatalf("append should overwrite p2, got %s", l.ID)
	}
	seen := map[string]bool{}
	for _, l := range s.Lines() {
		if seen[l.Product.ID] {
			t.Fatalf("duplicate product %s", l.Product.ID)
		}
		seen[l.Product.ID] = true
	}
}

func TestSetSnapshotReplacePrunesSelection(t *testing.T) {
	s := New()
	s.SetSnapshot([]cart.Line{line("l1", "p1", 10, 1), line("l2", "p2", 20, 1)}, true)
	s.ToggleSelection("p1")
	s.ToggleSelection("p2")

	s.SetSnapshot([]cart.Line{line("l2", "p2", 20, 1)}, true)
	if s.IsSelected("p1") || !s.IsSelected("p2") {
		t.Fatalf("unexpected selection %v", s.Selected())
	}
}

func TestQuantityClampsAtOne(t *testing.T) {
	s := New()
	s.Add(line("l1", "p1", 10, 0))
	if l, _ := s.Line("l1"); l.Quantity != 1 {
		t.Fatalf("add should clamp to 1, got %d", l.Quantity)
	}
	s.SetQuantity("l1", 3)
	s.SetQuantity("l1", -4)
	if l, _ := s.Line("l1"); l.Quantity != 1 {
		t.Fatalf("expected clamp at 1, got %d", l.Quantity)
	}
	if s.SetQuantity("missing", 2) {
		t.Fatal("unknown line should not change")
	}
}

func TestTotalCountsOnlySelected(t *testing.T) {
	s := New()
	s.SetSnapshot([]cart.Line{
		line("a", "A", 100, 2),
		line("b", "B", 50, 1),
		line("c", "C", 999, 7),
	}, true)
	if !s.ToggleSelection("A") || !s.ToggleSelection("B") {
		t.Fatal("toggle should select")
	}
	if !s.Total().Equal(decimal.NewFromInt(250)) {
		t.Fatalf("expected 250, got %s", s.Total())
	}
	if s.ToggleSelection("B") {
		t.Fatal("second toggle should deselect")
	}
	if !s.Total().Equal(decimal.NewFromInt(200)) {
		t.Fatalf("expected 200, got %s", s.Total())
	}
	if got := s.SelectedLines(); len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("unexpected selected lines %+v", got)
	}
}

func TestConfirmReplacesPendingLine(t *testing.T) {
	s := New()
	pending := line(cart.PendingPrefix+"x", "p1", 10, 1)
	pending.Pending = true
	s.Add(pending)
	s.ToggleSelection("p1")
	s.SetQuantity(pending.ID, 4)

	if !s.Confirm(pending.ID, line("srv-1", "p1", 10, 4)) {
		t.Fatal("confirm failed")
	}
	got, ok := s.Line("srv-1")
	if !ok || got.Pending || got.Quantity != 4 {
		t.Fatalf("unexpected confirmed line %+v", got)
	}
	if !s.IsSelected("p1") {
		t.Fatal("selection lost on confirm")
	}
	if s.Confirm("gone", line("srv-2", "p9", 1, 1)) {
		t.Fatal("confirm of unknown line should fail")
	}
	if _, ok := s.LineByProduct("p9"); ok {
		t.Fatal("confirm must not add lines")
	}
}

func TestRemoveLinesDeselects(t *testing.T) {
	s := New()
	s.SetSnapshot([]cart.Line{line("l1", "p1", 10, 1), line("l2", "p2", 10, 1), line("l3", "p3", 10, 1)}, true)
	s.ToggleSelection("p1")
	s.ToggleSelection("p2")

	if n := s.RemoveLines("l1", "l2", "nope"); n != 2 {
		t.Fatalf("expected 2 removed, got %d", n)
	}
	if len(s.Selected()) != 0 {
		t.Fatalf("selection not cleared: %v", s.Selected())
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 line left, got %d", s.Len())
	}
}

func TestWatch(t *testing.T) {
	s := New()
	var calls int32
	cancel := s.Watch(func() { atomic.AddInt32(&calls, 1) })

	s.Add(line("l1", "p1", 10, 1))
	s.SetQuantity("l1", 1) // unchanged, no update
	s.SetQuantity("l1", 2)
	cancel()
	s.Clear()

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 notifications, got %d", got)
	}
}
