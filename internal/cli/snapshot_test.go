package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_ShowAndClear(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cart.db")

	out, err := execute(t, "snapshot", "show", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, `No snapshot stored under "cart_state"`)

	_, err = execute(t, "cart", "add", "p1", "--price", "2.50", "-q", "3", "--db", db)
	require.NoError(t, err)

	out, err = execute(t, "snapshot", "show", "--db", db, "--format", "json")
	require.NoError(t, err)
	var resp struct {
		Status string       `json:"status"`
		Data   SnapshotView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.True(t, resp.Data.Present)
	assert.Equal(t, 1, resp.Data.Version)
	assert.NotEmpty(t, resp.Data.Checksum)
	assert.NotNil(t, resp.Data.LastUpdated)
	assert.Equal(t, 3, resp.Data.TotalItems)
	assert.Equal(t, "7.50", resp.Data.Subtotal)
	require.Len(t, resp.Data.Items, 1)
	assert.Equal(t, "p1", resp.Data.Items[0].ID)

	out, err = execute(t, "snapshot", "show", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "p1 x3 @ 2.50")

	out, err = execute(t, "snapshot", "clear", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, `Snapshot "cart_state" cleared`)

	out, err = execute(t, "snapshot", "show", "--db", db, "--format", "json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.False(t, resp.Data.Present)
	assert.Empty(t, resp.Data.Items)
}

func TestSnapshot_KeyFromEnvironment(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cart.db")
	t.Setenv("CARTSYNC_STORAGE_KEY", "kiosk_cart")

	_, err := execute(t, "cart", "add", "p1", "--db", db)
	require.NoError(t, err)

	out, err := execute(t, "snapshot", "show", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, `Snapshot "kiosk_cart" (version 1)`)
}
