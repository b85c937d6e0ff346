package harness

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/roach88/cartsync/internal/cart"
)

// AssertionError is returned when an assertion fails. It carries the trace
// to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		if ev.Type == EventDispatch {
			fmt.Fprintf(&buf, "  [%d] %s %s\n", ev.Seq, ev.Action, ev.ItemID)
		} else {
			fmt.Fprintf(&buf, "  [%d] %s %s: %s\n", ev.Seq, ev.Kind, ev.Op, ev.Message)
		}
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertNotice:
			err = assertNotice(result.Trace, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return errs
}

func matchesAction(ev TraceEvent, action, item string) bool {
	if ev.Type != EventDispatch || string(ev.Action) != action {
		return false
	}
	return item == "" || ev.ItemID == item
}

func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if matchesAction(ev, a.Action, a.Item) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("action %s %s", a.Action, a.Item),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the actions occur in order. Other actions
// may occur in between.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, ev := range trace {
		if next < len(a.Actions) && matchesAction(ev, a.Actions[next], "") {
			next++
		}
	}
	if next == len(a.Actions) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: fmt.Sprintf("actions in order: %v", a.Actions),
		Actual:   fmt.Sprintf("matched %d, missing %s", next, a.Actions[next]),
		Trace:    trace,
	}
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if matchesAction(ev, a.Action, a.Item) {
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%s %s exactly %d times", a.Action, a.Item, a.Count),
		Actual:   fmt.Sprintf("%d times", count),
		Trace:    trace,
	}
}

func assertNotice(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if ev.Type != EventNotice {
			continue
		}
		if a.Kind != "" && string(ev.Kind) != a.Kind {
			continue
		}
		if a.Op != "" && string(ev.Op) != a.Op {
			continue
		}
		if a.Contains != "" && !strings.Contains(ev.Message, a.Contains) {
			continue
		}
		return nil
	}
	return &AssertionError{
		Type:     AssertNotice,
		Expected: fmt.Sprintf("notice kind=%q op=%q containing %q", a.Kind, a.Op, a.Contains),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// CheckExpect compares the final state against the expectations and
// returns one message per mismatch.
func CheckExpect(result *Result, want Expect) []string {
	var errs []string
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}
	got := result.State

	if want.Items != nil {
		if diff := compareItems(*want.Items, got.Items); diff != "" {
			fail("items: %s", diff)
		}
	}
	if want.TotalItems != nil && *want.TotalItems != got.TotalItems {
		fail("total_items: expected %d, got %d", *want.TotalItems, got.TotalItems)
	}
	if want.Subtotal != "" {
		d, err := decimal.NewFromString(want.Subtotal)
		if err != nil {
			fail("subtotal: invalid expectation %q", want.Subtotal)
		} else if !d.Equal(got.Subtotal) {
			fail("subtotal: expected %s, got %s", d, got.Subtotal)
		}
	}
	if want.SyncStatus != "" && cart.SyncStatus(want.SyncStatus) != got.SyncStatus {
		fail("sync_status: expected %s, got %s", want.SyncStatus, got.SyncStatus)
	}
	if want.Error != nil && *want.Error != (got.Error != "") {
		fail("error: expected present=%v, got %q", *want.Error, got.Error)
	}
	if want.ErrorContains != "" && !strings.Contains(got.Error, want.ErrorContains) {
		fail("error: expected to contain %q, got %q", want.ErrorContains, got.Error)
	}
	if want.Loading != nil && *want.Loading != got.Loading {
		fail("loading: expected %v, got %v", *want.Loading, got.Loading)
	}
	if want.Phase != "" && want.Phase != string(result.Phase) {
		fail("phase: expected %s, got %s", want.Phase, result.Phase)
	}
	if want.Snapshot != nil {
		if want.Snapshot.Present != result.SnapshotPresent {
			fail("snapshot: expected present=%v, got %v", want.Snapshot.Present, result.SnapshotPresent)
		}
		if n := want.Snapshot.TotalItems; n != nil && *n != result.Snapshot.TotalItems {
			fail("snapshot: expected total_items %d, got %d", *n, result.Snapshot.TotalItems)
		}
	}
	for _, user := range sortedKeys(want.Remote) {
		var lines []ItemExpect
		for _, l := range result.Remote[user] {
			lines = append(lines, ItemExpect{ID: l.ProductID, Quantity: l.Quantity})
		}
		var expected []ItemExpect
		for _, l := range want.Remote[user] {
			expected = append(expected, ItemExpect{ID: l.Product, Quantity: l.Quantity})
		}
		if diff := compareItemList(expected, lines); diff != "" {
			fail("remote[%s]: %s", user, diff)
		}
	}
	for _, op := range sortedKeys(want.Calls) {
		n := 0
		for _, c := range result.Calls {
			if string(c.Op) == op {
				n++
			}
		}
		if n != want.Calls[op] {
			fail("calls[%s]: expected %d, got %d", op, want.Calls[op], n)
		}
	}
	return errs
}

func compareItems(want []ItemExpect, got []cart.Item) string {
	have := make([]ItemExpect, len(got))
	for i, it := range got {
		have[i] = ItemExpect{ID: it.ID, Quantity: it.Quantity}
	}
	return compareItemList(want, have)
}

// compareItemList compares in order.
func compareItemList(want, got []ItemExpect) string {
	if len(want) != len(got) {
		return fmt.Sprintf("expected %v, got %v", want, got)
	}
	for i := range want {
		if want[i] != got[i] {
			return fmt.Sprintf("expected %v, got %v", want, got)
		}
	}
	return ""
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
