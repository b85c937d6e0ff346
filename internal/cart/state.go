package cart

import (
	"time"

	"github.com/shopspring/decimal"
)

// SyncStatus reports the outcome of the most recent remote confirmation.
type SyncStatus string

const (
	SyncIdle    SyncStatus = "idle"
	SyncSuccess SyncStatus = "success"
	SyncError   SyncStatus = "error"
)

// State is the cart as seen by UI consumers.
//
// TotalItems and Subtotal are derived from Items by Totals and are only ever
// written by the reducer alongside an Items change.
type State struct {
	Items        []Item
	TotalItems   int
	Subtotal     decimal.Decimal
	Loading      bool
	Error        string
	SyncStatus   SyncStatus
	LastSyncTime time.Time
}

// Empty returns the initial cart state.
func Empty() State {
	return State{
		Items:      []Item{},
		Subtotal:   decimal.Zero,
		SyncStatus: SyncIdle,
	}
}

// Find returns the item with the given id.
func (s State) Find(id string) (Item, bool) {
	if i := s.index(id); i >= 0 {
		return s.Items[i], true
	}
	return Item{}, false
}

// QuantityOf returns the quantity of id in the cart, or 0.
func (s State) QuantityOf(id string) int {
	if it, ok := s.Find(id); ok {
		return it.Quantity
	}
	return 0
}

// Contains reports whether id is in the cart.
func (s State) Contains(id string) bool {
	return s.index(id) >= 0
}

// Clone returns a copy whose Items slice can be retained by the caller.
// Origin payloads are shared; they are never mutated.
func (s State) Clone() State {
	out := s
	out.Items = make([]Item, len(s.Items))
	copy(out.Items, s.Items)
	return out
}

func (s State) index(id string) int {
	for i := range s.Items {
		if s.Items[i].ID == id {
			return i
		}
	}
	return -1
}

// withItems commits a new item list together with its totals.
func (s State) withItems(items []Item) State {
	s.Items = items
	s.TotalItems, s.Subtotal = Totals(items)
	return s
}
