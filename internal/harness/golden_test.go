package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGolden(t *testing.T) {
	for _, name := range []string{"anonymous_add", "update_rollback"} {
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)

			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "scenario failed: %v", result.Errors)
		})
	}
}

func TestMarshalTrace_Shape(t *testing.T) {
	result := NewResult()
	q := 2
	result.Trace = append(result.Trace, TraceEvent{Seq: 1, Type: EventDispatch, OpID: "op-1", Action: "ADD_ITEM", ItemID: "p1", Quantity: &q, TotalItems: 2})

	out, err := MarshalTrace("shape", result)
	require.NoError(t, err)
	assert.Equal(t,
		`{"calls":[],"final":{"items":[],"phase":"","subtotal":"0","sync_status":"","total_items":0},"scenario_name":"shape","trace":[{"action":"ADD_ITEM","item_id":"p1","op_id":"op-1","quantity":2,"seq":1,"total_items":2,"type":"dispatch"}]}`,
		string(out))
}
