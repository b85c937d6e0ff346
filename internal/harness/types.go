package harness

import (
	"github.com/roach88/cartsync/internal/cart"
	"github.com/roach88/cartsync/internal/cartapi"
	"github.com/roach88/cartsync/internal/engine"
	"github.com/roach88/cartsync/internal/remote"
)

// Trace event types.
const (
	EventDispatch = "dispatch"
	EventNotice   = "notice"
)

// TraceEvent is one reducer dispatch or notice, in loop order.
type TraceEvent struct {
	Seq  int64  `json:"seq"`
	Type string `json:"type"`
	OpID string `json:"op_id,omitempty"`

	// Dispatch fields.
	Action     cart.ActionKind `json:"action,omitempty"`
	ItemID     string          `json:"item_id,omitempty"`
	Quantity   *int            `json:"quantity,omitempty"`
	Loading    *bool           `json:"loading,omitempty"`
	Records    *int            `json:"items,omitempty"`
	TotalItems int             `json:"total_items"`
	Error      string          `json:"error,omitempty"`

	// Notice fields.
	Kind    engine.NoticeKind `json:"kind,omitempty"`
	Op      engine.Operation  `json:"op,omitempty"`
	Message string            `json:"message,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent  `json:"trace"`
	Calls []remote.Call `json:"calls"`
	State cart.State    `json:"-"`
	Phase engine.Phase  `json:"phase"`

	// SnapshotPresent reports whether a snapshot was persisted at the end;
	// Snapshot is its decoded content.
	SnapshotPresent bool       `json:"snapshot_present"`
	Snapshot        cart.State `json:"-"`

	// Remote holds the final remote cart of every user the scenario
	// touched.
	Remote map[string][]cartapi.Line `json:"remote,omitempty"`

	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Calls:  []remote.Call{},
		Remote: make(map[string][]cartapi.Line),
		Errors: []string{},
	}
}

// AddError records a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func dispatchEvent(seq int64, d engine.Dispatch) TraceEvent {
	ev := TraceEvent{
		Seq:        seq,
		Type:       EventDispatch,
		OpID:       d.OpID,
		Action:     d.Action.Kind,
		TotalItems: d.State.TotalItems,
	}
	a := d.Action
	switch a.Kind {
	case cart.ActionLoadCart:
		n := len(a.Records)
		ev.Records = &n
	case cart.ActionAddItem:
		q := a.Item.Quantity
		ev.ItemID, ev.Quantity = a.Item.ID, &q
	case cart.ActionUpdateQuantity:
		q := a.Quantity
		ev.ItemID, ev.Quantity = a.ID, &q
	case cart.ActionRemoveItem:
		ev.ItemID = a.ID
	case cart.ActionSetLoading:
		l := a.Loading
		ev.Loading = &l
	case cart.ActionSetError, cart.ActionSyncFailure:
		ev.Error = a.Error
	}
	return ev
}

func noticeEvent(seq int64, n engine.Notice) TraceEvent {
	return TraceEvent{
		Seq:     seq,
		Type:    EventNotice,
		OpID:    n.OpID,
		ItemID:  n.ItemID,
		Kind:    n.Kind,
		Op:      n.Op,
		Message: n.Message,
	}
}
