// Package local implements the in-memory cart snapshot and selection set
// held by the client for the length of a session.
package local

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"storefront/pkg/cart"
)

// Store holds the current cart snapshot, keyed by product id, and the set
// of product ids selected for checkout. It never talks to the network.
type Store struct {
	mu       sync.RWMutex
	order    []string
	lines    map[string]cart.Line
	selected map[string]struct{}

	wmu      sync.Mutex
	watchers map[int]func()
	nextID   int
}

// New returns an empty store.
func New() *Store {
	return &Store{
		lines:    make(map[string]cart.Line),
		selected: make(map[string]struct{}),
		watchers: make(map[int]func()),
	}
}

// Watch registers fn to run after every state update. The returned
// function unregisters it.
func (s *Store) Watch(fn func()) (cancel func()) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	return func() {
		s.wmu.Lock()
		defer s.wmu.Unlock()
		delete(s.watchers, id)
	}
}

func (s *Store) notify() {
	s.wmu.Lock()
	fns := make([]func(), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.wmu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// put inserts or replaces the line for its product. Callers hold mu.
func (s *Store) put(l cart.Line) {
	if l.Quantity < 1 {
		l.Quantity = 1
	}
	pid := l.Product.ID
	if _, ok := s.lines[pid]; !ok {
		s.order = append(s.order, pid)
	}
	s.lines[pid] = l
}

// drop removes the line for pid and deselects it. Callers hold mu.
func (s *Store) drop(pid string) {
	delete(s.lines, pid)
	delete(s.selected, pid)
	for i, id := range s.order {
		if id == pid {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// productOf finds the product id of the line with lineID. Callers hold mu.
func (s *Store) productOf(lineID string) (string, bool) {
	for _, pid := range s.order {
		if s.lines[pid].ID == lineID {
			return pid, true
		}
	}
	return "", false
}

// Add inserts l optimistically. A line already held for the same product
// is replaced in place.
func (s *Store) Add(l cart.Line) {
	s.mu.Lock()
	s.put(l)
	s.mu.Unlock()
	s.notify()
}

// Remove deletes the line with lineID and reports whether it was present.
func (s *Store) Remove(lineID string) bool {
	s.mu.Lock()
	pid, ok := s.productOf(lineID)
	if ok {
		s.drop(pid)
	}
	s.mu.Unlock()
	if ok {
		s.notify()
	}
	return ok
}

// RemoveLines deletes every listed line and returns how many were present.
func (s *Store) RemoveLines(lineIDs ...string) int {
	s.mu.Lock()
	n := 0
	for _, id := range lineIDs {
		if pid, ok := s.productOf(id); ok {
			s.drop(pid)
			n++
		}
	}
	s.mu.Unlock()
	if n > 0 {
		s.notify()
	}
	return n
}

// SetSnapshot merges lines into the store. With replace the previous
// snapshot is discarded and selections of products no longer present are
// dropped; otherwise lines are appended. Lines sharing a product id
// collapse to the last one seen.
func (s *Store) SetSnapshot(lines []cart.Line, replace bool) {
	s.mu.Lock()
	if replace {
		s.order = s.order[:0]
		s.lines = make(map[string]cart.Line, len(lines))
	}
	for _, l := range lines {
		s.put(l)
	}
	if replace {
		for pid := range s.selected {
			if _, ok := s.lines[pid]; !ok {
				delete(s.selected, pid)
			}
		}
	}
	s.mu.Unlock()
	s.notify()
}

// Clear empties the snapshot and the selection.
func (s *Store) Clear() {
	s.mu.Lock()
	s.order = nil
	s.lines = make(map[string]cart.Line)
	s.selected = make(map[string]struct{})
	s.mu.Unlock()
	s.notify()
}

// ToggleSelection flips productID in the selection set and reports whether
// it is selected afterwards.
func (s *Store) ToggleSelection(productID string) bool {
	s.mu.Lock()
	_, on := s.selected[productID]
	if on {
		delete(s.selected, productID)
	} else {
		s.selected[productID] = struct{}{}
	}
	s.mu.Unlock()
	s.notify()
	return !on
}

// SetQuantity sets the quantity of lineID, clamped to at least 1. It
// reports whether the stored quantity changed.
func (s *Store) SetQuantity(lineID string, qty int) bool {
	if qty < 1 {
		qty = 1
	}
	s.mu.Lock()
	pid, ok := s.productOf(lineID)
	changed := false
	if ok && s.lines[pid].Quantity != qty {
		l := s.lines[pid]
		l.Quantity = qty
		s.lines[pid] = l
		changed = true
	}
	s.mu.Unlock()
	if changed {
		s.notify()
	}
	return changed
}

// Confirm swaps the pending line tempID for the server's line. It returns
// false when tempID is no longer held, in which case nothing is added.
func (s *Store) Confirm(tempID string, l cart.Line) bool {
	s.mu.Lock()
	pid, ok := s.productOf(tempID)
	if ok {
		cur := s.lines[pid]
		l.Pending = false
		if l.Product.ID == "" {
			l.Product = cur.Product
		}
		if l.Product.ID != pid {
			sel := s.isSelected(pid)
			s.drop(pid)
			if sel {
				s.selected[l.Product.ID] = struct{}{}
			}
		}
		s.put(l)
	}
	s.mu.Unlock()
	if ok {
		s.notify()
	}
	return ok
}

// Lines returns the snapshot in insertion order.
func (s *Store) Lines() []cart.Line {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]cart.Line, 0, len(s.order))
	for _, pid := range s.order {
		out = append(out, s.lines[pid])
	}
	return out
}

// Line returns the line with lineID.
func (s *Store) Line(lineID string) (cart.Line, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pid, ok := s.productOf(lineID)
	if !ok {
		return cart.Line{}, false
	}
	return s.lines[pid], true
}

// LineByProduct returns the line held for productID.
func (s *Store) LineByProduct(productID string) (cart.Line, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lines[productID]
	return l, ok
}

func (s *Store) isSelected(productID string) bool {
	_, ok := s.selected[productID]
	return ok
}

// IsSelected reports whether productID is selected for checkout.
func (s *Store) IsSelected(productID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isSelected(productID)
}

// Selected returns the selected product ids, sorted.
func (s *Store) Selected() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.selected))
	for pid := range s.selected {
		out = append(out, pid)
	}
	sort.Strings(out)
	return out
}

// SelectedLines returns the selected lines in snapshot order.
func (s *Store) SelectedLines() []cart.Line {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []cart.Line
	for _, pid := range s.order {
		if s.isSelected(pid) {
			out = append(out, s.lines[pid])
		}
	}
	return out
}

// Len returns the number of lines.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Units returns the sum of quantities across all lines.
func (s *Store) Units() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, l := range s.lines {
		n += l.Quantity
	}
	return n
}

// Total returns the price of the selected lines.
func (s *Store) Total() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := decimal.Zero
	for pid := range s.selected {
		if l, ok := s.lines[pid]; ok {
			total = total.Add(l.Subtotal())
		}
	}
	return total
}
