package harness

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cartsync/internal/cart"
	"github.com/roach88/cartsync/internal/cartapi"
	"github.com/roach88/cartsync/internal/engine"
	"github.com/roach88/cartsync/internal/remote"
	"github.com/roach88/cartsync/internal/testutil"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Seq: 1, Type: EventDispatch, Action: cart.ActionAddItem, ItemID: "p1"},
		{Seq: 2, Type: EventNotice, Kind: engine.NoticeSuccess, Op: engine.OpAddToCart, Message: "Added Widget to cart"},
		{Seq: 3, Type: EventDispatch, Action: cart.ActionUpdateQuantity, ItemID: "p1"},
		{Seq: 4, Type: EventDispatch, Action: cart.ActionUpdateQuantity, ItemID: "p2"},
		{Seq: 5, Type: EventDispatch, Action: cart.ActionSyncFailure},
		{Seq: 6, Type: EventNotice, Kind: engine.NoticeFailure, Op: engine.OpUpdateQuantity, Message: "Could not update Gadget: boom"},
	}
}

func TestEvaluateAssertions(t *testing.T) {
	result := NewResult()
	result.Trace = sampleTrace()

	tests := []struct {
		name      string
		assertion Assertion
		pass      bool
	}{
		{"contains", Assertion{Type: AssertTraceContains, Action: "ADD_ITEM"}, true},
		{"contains item", Assertion{Type: AssertTraceContains, Action: "UPDATE_QUANTITY", Item: "p2"}, true},
		{"contains missing", Assertion{Type: AssertTraceContains, Action: "CLEAR_CART"}, false},
		{"order", Assertion{Type: AssertTraceOrder, Actions: []string{"ADD_ITEM", "UPDATE_QUANTITY", "SYNC_FAILURE"}}, true},
		{"order with gaps", Assertion{Type: AssertTraceOrder, Actions: []string{"ADD_ITEM", "SYNC_FAILURE"}}, true},
		{"order reversed", Assertion{Type: AssertTraceOrder, Actions: []string{"SYNC_FAILURE", "ADD_ITEM"}}, false},
		{"count", Assertion{Type: AssertTraceCount, Action: "UPDATE_QUANTITY", Count: 2}, true},
		{"count item", Assertion{Type: AssertTraceCount, Action: "UPDATE_QUANTITY", Item: "p1", Count: 1}, true},
		{"count zero", Assertion{Type: AssertTraceCount, Action: "REMOVE_ITEM", Count: 0}, true},
		{"count wrong", Assertion{Type: AssertTraceCount, Action: "UPDATE_QUANTITY", Count: 3}, false},
		{"notice kind", Assertion{Type: AssertNotice, Kind: "failure"}, true},
		{"notice op and text", Assertion{Type: AssertNotice, Op: "updateQuantity", Contains: "Gadget"}, true},
		{"notice mismatch", Assertion{Type: AssertNotice, Kind: "success", Op: "updateQuantity"}, false},
		{"unknown", Assertion{Type: "eventually"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(result, []Assertion{tt.assertion})
			if tt.pass {
				assert.Empty(t, errs)
			} else {
				assert.Len(t, errs, 1)
			}
		})
	}
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := assertTraceCount(sampleTrace(), Assertion{Type: AssertTraceCount, Action: "ADD_ITEM", Count: 2})
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: trace_count")
	assert.Contains(t, msg, "Actual: 1 times")
	assert.Contains(t, msg, "[1] ADD_ITEM p1")
	assert.Contains(t, msg, "[6] failure updateQuantity: Could not update Gadget: boom")
}

func TestCheckExpect(t *testing.T) {
	state := cart.Reduce(cart.Empty(), cart.LoadRecords(
		cart.Record{"id": "p1", "unitPrice": "1.50", "quantity": 2},
	))
	state = cart.Reduce(state, cart.SyncFailed("REMOTE_FAILED: boom", testutil.Epoch))

	result := NewResult()
	result.State = state
	result.Phase = engine.PhaseSynced
	result.SnapshotPresent = true
	result.Snapshot = state
	result.Remote["u1"] = []cartapi.Line{{ProductID: "p1", Quantity: 2}}
	result.Calls = []remote.Call{{Op: remote.OpFetchCart}, {Op: remote.OpUpdateItem}, {Op: remote.OpUpdateItem}}

	two, yes := 2, true
	ok := Expect{
		Items:         &[]ItemExpect{{ID: "p1", Quantity: 2}},
		TotalItems:    &two,
		Subtotal:      "3.00",
		SyncStatus:    "error",
		Error:         &yes,
		ErrorContains: "boom",
		Phase:         "authenticated-synced",
		Snapshot:      &SnapshotExpect{Present: true, TotalItems: &two},
		Remote:        map[string][]LineExpect{"u1": {{Product: "p1", Quantity: 2}}},
		Calls:         map[string]int{"fetchCart": 1, "updateItem": 2, "clearCart": 0},
	}
	assert.Empty(t, CheckExpect(result, ok))

	no := false
	bad := Expect{
		Subtotal: decimal.NewFromInt(4).String(),
		Error:    &no,
		Remote:   map[string][]LineExpect{"u1": {}},
		Calls:    map[string]int{"updateItem": 1},
	}
	errs := CheckExpect(result, bad)
	require.Len(t, errs, 4)
	assert.Contains(t, errs[0], "subtotal: expected 4, got 3")
	assert.Contains(t, errs[1], "error: expected present=false")
	assert.Contains(t, errs[2], "remote[u1]")
	assert.Contains(t, errs[3], "calls[updateItem]: expected 1, got 2")
}
