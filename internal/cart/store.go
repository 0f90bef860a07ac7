// Package cart holds the shopper's line items and keeps the subtotal current.
package cart

import (
	"sync"

	"kart-checkout/internal/model"

	"github.com/shopspring/decimal"
)

// Listener is notified with a fresh snapshot after every mutation.
type Listener func(model.CartSnapshot)

// Store is the cart of a single checkout session. It is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	items     []model.LineItem
	subtotal  decimal.Decimal
	listeners []Listener
}

// New creates a store seeded with items. Items with a non-positive quantity
// are skipped and duplicate products are merged.
func New(items ...model.LineItem) *Store {
	s := &Store{}
	for _, item := range items {
		if item.Quantity < 1 {
			continue
		}
		s.merge(item)
	}
	s.recompute()
	return s
}

// OnChange registers a listener. Listeners run after the store lock is released.
func (s *Store) OnChange(fn Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Add puts item into the cart. Adding a product that is already present
// increases its quantity and refreshes its display data.
func (s *Store) Add(item model.LineItem) error {
	if item.Quantity < 1 {
		return model.ErrInvalidQuantity
	}
	s.mutate(func() error {
		s.merge(item)
		return nil
	})
	return nil
}

// UpdateQuantity sets the quantity of a product. A quantity of zero or less
// removes the line.
func (s *Store) UpdateQuantity(productID string, quantity int) error {
	return s.mutate(func() error {
		i := s.index(productID)
		if i < 0 {
			return model.ErrItemNotFound
		}
		if quantity <= 0 {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return nil
		}
		s.items[i].Quantity = quantity
		return nil
	})
}

// Remove deletes a product from the cart.
func (s *Store) Remove(productID string) error {
	return s.UpdateQuantity(productID, 0)
}

// Clear empties the cart.
func (s *Store) Clear() {
	s.mutate(func() error {
		s.items = nil
		return nil
	})
}

// Items returns a copy of the line items in insertion order.
func (s *Store) Items() []model.LineItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.LineItem(nil), s.items...)
}

// Subtotal returns the sum of unit price times quantity.
func (s *Store) Subtotal() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subtotal
}

// Snapshot returns the items and subtotal as one consistent value.
func (s *Store) Snapshot() model.CartSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() model.CartSnapshot {
	return model.CartSnapshot{
		Items:    append([]model.LineItem{}, s.items...),
		Subtotal: s.subtotal,
	}
}

func (s *Store) mutate(fn func() error) error {
	s.mu.Lock()
	if err := fn(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.recompute()
	snap := s.snapshotLocked()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
	return nil
}

func (s *Store) merge(item model.LineItem) {
	if i := s.index(item.ProductID); i >= 0 {
		item.Quantity += s.items[i].Quantity
		s.items[i] = item
		return
	}
	s.items = append(s.items, item)
}

func (s *Store) index(productID string) int {
	for i, item := range s.items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

func (s *Store) recompute() {
	sum := decimal.Zero
	for _, item := range s.items {
		sum = sum.Add(item.Total())
	}
	s.subtotal = sum
}
