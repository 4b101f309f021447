package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/devmigrate/internal/testutil"
)

func TestListDevices_Golden(t *testing.T) {
	f := standardStore(t)
	res := runCLI(t, "", "list-devices", f.Path)
	require.Equal(t, ExitSuccess, res.code, res.stdout+res.stderr)
	newGolden(t).Assert(t, "list_devices", []byte(res.stdout))
}

func TestListDevices_JSON(t *testing.T) {
	f := standardStore(t)
	res := runCLI(t, "", "--format", "json", "list-devices", f.Path)
	require.Equal(t, ExitSuccess, res.code)

	var resp struct {
		Status string `json:"status"`
		Data   []struct {
			ID          string `json:"id"`
			DisplayName string `json:"display_name"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 3)
	assert.Equal(t, "k1", resp.Data[0].ID)
	assert.Equal(t, "MX Keys S", resp.Data[0].DisplayName)
}

func TestListDevices_StoreFromConfig(t *testing.T) {
	f := standardStore(t)
	cfg := writeConfig(t, "store: "+f.Path+"\nagent:\n  restart_command: \"\"\n")
	res := runCLI(t, cfg, "list-devices")
	require.Equal(t, ExitSuccess, res.code, res.stdout)
	assert.Contains(t, res.stdout, "m1: MX Master 3S")
}

func TestListDevices_StoreFromEnv(t *testing.T) {
	f := standardStore(t)
	cfg := writeConfig(t, "")
	t.Setenv("DEVMIGRATE_STORE", f.Path)

	// runCLI clears the variable, so drive the command directly.
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", cfg, "list-devices"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "k1: MX Keys S")
}

func TestListDevices_V2Layout(t *testing.T) {
	f := testutil.NewStore(t, testutil.V2)
	testutil.SeedStandard(t, f)
	res := runCLI(t, "", "list-devices", f.Path)
	require.Equal(t, ExitSuccess, res.code, res.stdout)
	newGolden(t).Assert(t, "list_devices", []byte(res.stdout))
}

func TestListDevices_MissingStore(t *testing.T) {
	res := runCLI(t, "", "list-devices", "/nonexistent/settings.db")
	assert.Equal(t, ExitCommandError, res.code)
	assert.Contains(t, res.stdout, "Error [CommandError]: store not found")
}

func TestListDevices_NoStoreConfigured(t *testing.T) {
	res := runCLI(t, "", "list-devices")
	assert.Equal(t, ExitCommandError, res.code)
	assert.Contains(t, res.stdout, "Error [CommandError]: no store path")
}

func TestListDevices_SchemaMismatch(t *testing.T) {
	f := standardStore(t)
	f.Exec(t, `ALTER TABLE gesture_profiles RENAME COLUMN settings TO blob`)

	res := runCLI(t, "", "list-devices", f.Path)
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stdout, "Error [SchemaMismatch]:")
	assert.Contains(t, res.stdout, "gesture_profiles.settings")
}

func TestListDevices_SchemaMismatchJSON(t *testing.T) {
	f := standardStore(t)
	f.Exec(t, `DROP TABLE override_actions`)

	res := runCLI(t, "", "--format", "json", "list-devices", f.Path)
	assert.Equal(t, ExitFailure, res.code)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "SchemaMismatch", resp.Error.Code)
	details, ok := resp.Error.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"override_actions"}, details["missing"])
}
