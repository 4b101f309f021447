package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShowSettings_Text(t *testing.T) {
	f := standardStore(t)
	res := runCLI(t, "", "show-settings", f.Path, "m1")
	require.Equal(t, ExitSuccess, res.code, res.stdout+res.stderr)

	assert.Contains(t, res.stdout, "Device m1: 7 rows")
	assert.Contains(t, res.stdout, "button_assignments (3)")
	assert.Contains(t, res.stdout, "  [default/c82] rowid=1")
	assert.Contains(t, res.stdout, `    -> payload @11 (2 bytes): "m1"`)
	assert.Contains(t, res.stdout, "override_actions (2)")
	assert.Contains(t, res.stdout, "    settings = x'")
}

func TestShowSettings_JSON(t *testing.T) {
	f := standardStore(t)
	res := runCLI(t, "", "--format", "json", "show-settings", f.Path, "m2")
	require.Equal(t, ExitSuccess, res.code)

	var resp struct {
		Data graphView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
	assert.Equal(t, "m2", resp.Data.Device)
	require.Len(t, resp.Data.Tables, 4)
	rows := resp.Data.Tables[0].Rows
	require.Len(t, rows, 1)
	assert.Equal(t, "default/c82", rows[0].Label)
	assert.Equal(t, `{"slotId":"m2_c82","deviceId":"m2","card":{"name":"Copy","keys":["ctrl","c"]}}`, rows[0].Values["payload"])
	assert.Len(t, rows[0].Embedded, 2)
}

func TestShowSettings_NormalizesIdentifier(t *testing.T) {
	f := standardStore(t)
	// Stored composed, typed decomposed.
	f.AddDevice(t, "souris-\u00e9", "2b034", "MOUSE")
	f.AddAssignment(t, "souris-\u00e9", "default", "c82")

	res := runCLI(t, "", "show-settings", f.Path, "souris-e\u0301")
	require.Equal(t, ExitSuccess, res.code, res.stdout)
	assert.Contains(t, res.stdout, "button_assignments (1)")
}

func TestShowSettings_UnknownDevice(t *testing.T) {
	f := standardStore(t)
	res := runCLI(t, "", "show-settings", f.Path, "ghost")
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stdout, "Error [DeviceNotFound]:")
}

func TestShowSettings_StoreFromConfig(t *testing.T) {
	f := standardStore(t)
	cfg := writeConfig(t, "store: "+f.Path+"\n")
	res := runCLI(t, cfg, "show-settings", "k1")
	require.Equal(t, ExitSuccess, res.code, res.stdout)
	assert.Contains(t, res.stdout, "Device k1: 0 rows")
}
