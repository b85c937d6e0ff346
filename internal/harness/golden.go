package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/cartsync/internal/canonical"
	"github.com/roach88/cartsync/internal/remote"
)

// TraceSnapshot is the golden-file view of a run: the trace, the remote
// calls and a summary of the final cart.
type TraceSnapshot struct {
	ScenarioName string
	Result       *Result
}

// toCanonicalMap converts the snapshot to the value shapes canonical.Marshal
// accepts.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Result.Trace))
	for i, ev := range s.Result.Trace {
		m := map[string]any{
			"seq":  ev.Seq,
			"type": ev.Type,
		}
		putString(m, "op_id", ev.OpID)
		putString(m, "item_id", ev.ItemID)
		if ev.Type == EventDispatch {
			m["action"] = string(ev.Action)
			m["total_items"] = ev.TotalItems
			if ev.Quantity != nil {
				m["quantity"] = *ev.Quantity
			}
			if ev.Loading != nil {
				m["loading"] = *ev.Loading
			}
			if ev.Records != nil {
				m["items"] = *ev.Records
			}
			putString(m, "error", ev.Error)
		} else {
			m["kind"] = string(ev.Kind)
			m["op"] = string(ev.Op)
			m["message"] = ev.Message
		}
		trace[i] = m
	}

	calls := make([]any, len(s.Result.Calls))
	for i, c := range s.Result.Calls {
		calls[i] = callMap(c)
	}

	state := s.Result.State
	items := make([]any, len(state.Items))
	for i, it := range state.Items {
		items[i] = map[string]any{"id": it.ID, "quantity": it.Quantity}
	}
	final := map[string]any{
		"items":       items,
		"total_items": state.TotalItems,
		"subtotal":    state.Subtotal.String(),
		"sync_status": string(state.SyncStatus),
		"phase":       string(s.Result.Phase),
	}
	putString(final, "error", state.Error)

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         trace,
		"calls":         calls,
		"final":         final,
	}
}

func callMap(c remote.Call) map[string]any {
	m := map[string]any{"op": string(c.Op)}
	putString(m, "user", c.UserID)
	putString(m, "line", c.LineID)
	putString(m, "item", c.ItemRef)
	if c.Quantity != 0 {
		m["quantity"] = c.Quantity
	}
	if c.Op == remote.OpAddItem {
		m["price"] = c.Price.String()
	}
	return m
}

func putString(m map[string]any, key, v string) {
	if v != "" {
		m[key] = v
	}
}

// MarshalTrace renders a result as canonical JSON, the golden file format.
func MarshalTrace(scenarioName string, result *Result) ([]byte, error) {
	snap := TraceSnapshot{ScenarioName: scenarioName, Result: result}
	return canonical.Marshal(snap.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
