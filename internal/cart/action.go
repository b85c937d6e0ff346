package cart

import "time"

// ActionKind is one of the closed set of reducer actions.
type ActionKind string

const (
	ActionLoadCart       ActionKind = "LOAD_CART"
	ActionAddItem        ActionKind = "ADD_ITEM"
	ActionUpdateQuantity ActionKind = "UPDATE_QUANTITY"
	ActionRemoveItem     ActionKind = "REMOVE_ITEM"
	ActionClearCart      ActionKind = "CLEAR_CART"
	ActionSetLoading     ActionKind = "SET_LOADING"
	ActionSetError       ActionKind = "SET_ERROR"
	ActionSyncSuccess    ActionKind = "SYNC_SUCCESS"
	ActionSyncFailure    ActionKind = "SYNC_FAILURE"
)

// Kinds lists every action kind in declaration order.
var Kinds = []ActionKind{
	ActionLoadCart,
	ActionAddItem,
	ActionUpdateQuantity,
	ActionRemoveItem,
	ActionClearCart,
	ActionSetLoading,
	ActionSetError,
	ActionSyncSuccess,
	ActionSyncFailure,
}

// Action is a reducer input. Only the fields relevant to Kind are read.
type Action struct {
	Kind ActionKind

	// Records is the LOAD_CART payload, normalized by the reducer.
	Records []Record

	// Item is the ADD_ITEM payload.
	Item Item

	// ID and Quantity address UPDATE_QUANTITY and REMOVE_ITEM.
	ID       string
	Quantity int

	Loading bool
	Error   string

	// At is the sync time recorded by SYNC_SUCCESS and SYNC_FAILURE.
	At time.Time
}

// ChangesItems reports whether the action can modify Items.
func (a Action) ChangesItems() bool {
	switch a.Kind {
	case ActionLoadCart, ActionAddItem, ActionUpdateQuantity, ActionRemoveItem, ActionClearCart:
		return true
	}
	return false
}

// LoadCart replaces the cart with items.
func LoadCart(items ...Item) Action {
	recs := make([]Record, len(items))
	for i, it := range items {
		recs[i] = it.Record()
	}
	return Action{Kind: ActionLoadCart, Records: recs}
}

// LoadRecords replaces the cart with raw records, normalizing each.
func LoadRecords(recs ...Record) Action {
	return Action{Kind: ActionLoadCart, Records: recs}
}

// AddItem adds it, merging quantities with an existing item of the same ID.
func AddItem(it Item) Action {
	return Action{Kind: ActionAddItem, Item: it}
}

// UpdateQuantity sets the quantity of item id, clamped to at least 1.
func UpdateQuantity(id string, qty int) Action {
	return Action{Kind: ActionUpdateQuantity, ID: id, Quantity: qty}
}

// RemoveItem deletes item id.
func RemoveItem(id string) Action {
	return Action{Kind: ActionRemoveItem, ID: id}
}

// ClearCart empties the cart.
func ClearCart() Action {
	return Action{Kind: ActionClearCart}
}

// SetLoading toggles the loading flag.
func SetLoading(loading bool) Action {
	return Action{Kind: ActionSetLoading, Loading: loading}
}

// SetError records msg without touching the sync status.
func SetError(msg string) Action {
	return Action{Kind: ActionSetError, Error: msg}
}

// SyncSucceeded marks a remote confirmation at the given time and clears
// the error.
func SyncSucceeded(at time.Time) Action {
	return Action{Kind: ActionSyncSuccess, At: at}
}

// SyncFailed marks a rejected remote call with msg.
func SyncFailed(msg string, at time.Time) Action {
	return Action{Kind: ActionSyncFailure, Error: msg, At: at}
}
