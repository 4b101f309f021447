package cli

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/devmigrate/internal/store"
	"github.com/roach88/devmigrate/internal/testutil"
)

func TestTransfer_DryRunGolden(t *testing.T) {
	f := standardStore(t)
	before := testutil.Checksum(t, f.Path)

	res := runCLI(t, "", "transfer-assignments", f.Path, "m1", "m2", "--dry-run")
	require.Equal(t, ExitSuccess, res.code, res.stdout+res.stderr)
	newGolden(t).Assert(t, "transfer_dry_run", []byte(res.stdout))
	assert.Equal(t, before, testutil.Checksum(t, f.Path))
}

func TestTransfer_HelpExampleIdentifiersWork(t *testing.T) {
	cmd, _, err := NewRootCommand().Find([]string{"transfer-assignments"})
	require.NoError(t, err)
	examples := regexp.MustCompile(`transfer-assignments settings\.db (\S+) (\S+)`).FindAllStringSubmatch(cmd.Long, -1)
	require.NotEmpty(t, examples)

	for _, ex := range examples {
		source, target := ex[1], ex[2]
		f := testutil.NewStore(t, testutil.V1)
		f.AddDevice(t, source, "2b034", "MOUSE")
		f.AddDevice(t, target, "2b034", "MOUSE")
		f.AddAssignment(t, source, "default", "c82")
		f.AddGesture(t, source, "default", 1600)

		res := runCLI(t, "", "transfer-assignments", f.Path, source, target, "--dry-run")
		assert.Equal(t, ExitSuccess, res.code, res.stdout+res.stderr)
	}
}

func TestTransfer_MoveDryRunGolden(t *testing.T) {
	f := standardStore(t)
	res := runCLI(t, "", "transfer-assignments", f.Path, "m1", "m2", "--dry-run", "--move")
	require.Equal(t, ExitSuccess, res.code, res.stdout+res.stderr)
	newGolden(t).Assert(t, "transfer_move_dry_run", []byte(res.stdout))
}

func TestTransfer_Commit(t *testing.T) {
	f := standardStore(t)
	backups := t.TempDir()

	res := runCLI(t, "", "transfer-assignments", f.Path, "m1", "m2", "--backup-dir", backups)
	require.Equal(t, ExitSuccess, res.code, res.stdout+res.stderr)
	assert.Contains(t, res.stdout, "Copied settings of m1 to m2")
	assert.Contains(t, res.stdout, "inserted 6, updated 0, relinked 0, deleted 1")
	assert.Contains(t, res.stdout, "Backup: "+filepath.Join(backups, "settings.db."))

	assert.Equal(t, 3, f.Count(t, `SELECT COUNT(*) FROM button_assignments WHERE device_id = 'm2'`))

	res = runCLI(t, "", "transfer-assignments", f.Path, "m1", "m2")
	require.Equal(t, ExitSuccess, res.code)
	assert.Equal(t, "m2 already has the settings of m1; nothing to do\n", res.stdout)
}

func TestTransfer_Move(t *testing.T) {
	f := standardStore(t)
	res := runCLI(t, "", "transfer-assignments", f.Path, "m1", "m2", "--move")
	require.Equal(t, ExitSuccess, res.code, res.stdout+res.stderr)
	assert.Contains(t, res.stdout, "Moved settings of m1 to m2")
	assert.Equal(t, 0, f.Count(t, `SELECT COUNT(*) FROM button_assignments WHERE device_id = 'm1'`))
}

func TestTransfer_BackupDirFromConfig(t *testing.T) {
	f := standardStore(t)
	dir := t.TempDir()
	cfg := writeConfig(t, "backup:\n  dir: "+dir+"\nagent:\n  restart_command: \"\"\n")

	res := runCLI(t, cfg, "--format", "json", "transfer-assignments", f.Path, "m1", "m2")
	require.Equal(t, ExitSuccess, res.code, res.stdout+res.stderr)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Outcome string `json:"outcome"`
			Backup  struct {
				Path string `json:"path"`
			} `json:"backup"`
			Trace []string `json:"trace"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "committed", resp.Data.Outcome)
	assert.Equal(t, dir, filepath.Dir(resp.Data.Backup.Path))
	assert.Equal(t, []string{"Idle", "BackingUp", "Transacting", "Verifying", "Committed"}, resp.Data.Trace)
}

func TestTransfer_IdentifierWidthMismatch(t *testing.T) {
	f := standardStore(t)
	f.AddDevice(t, "m10", "2b034", "MOUSE")
	before := testutil.Checksum(t, f.Path)

	res := runCLI(t, "", "transfer-assignments", f.Path, "m1", "m10")
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stdout, "Error [IdentifierWidthMismatch]:")
	assert.Contains(t, res.stdout, "table=button_assignments")
	assert.Equal(t, before, testutil.Checksum(t, f.Path))
}

func TestTransfer_SameDevice(t *testing.T) {
	f := standardStore(t)
	res := runCLI(t, "", "transfer-assignments", f.Path, "m1", "m1")
	assert.Equal(t, ExitCommandError, res.code)
	assert.Contains(t, res.stdout, "Error [InvalidArgument]: source and target are the same device")
}

func TestTransfer_DeviceNotFound(t *testing.T) {
	f := standardStore(t)
	res := runCLI(t, "", "transfer-assignments", f.Path, "ghost", "m2")
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stdout, "Error [DeviceNotFound]:")
}

func TestTransfer_StoreLocked(t *testing.T) {
	f := standardStore(t)
	ctx := context.Background()
	vendor, err := store.Open(ctx, f.Path, store.Options{})
	require.NoError(t, err)
	defer vendor.Close()
	require.NoError(t, vendor.AcquireExclusive(ctx))

	res := runCLI(t, "", "transfer-assignments", f.Path, "m1", "m2")
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stdout, "Error [StoreLocked]:")
}

func TestTransfer_BackupFailedJSON(t *testing.T) {
	f := standardStore(t)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	res := runCLI(t, "", "--format", "json", "transfer-assignments", f.Path, "m1", "m2", "--backup-dir", filepath.Join(blocker, "sub"))
	assert.Equal(t, ExitFailure, res.code)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "BackupFailed", resp.Error.Code)
	details, ok := resp.Error.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "rolled-back", details["outcome"])
}

func TestTransfer_RestartsAgentAfterCommit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses touch")
	}
	touch, err := exec.LookPath("touch")
	if err != nil {
		t.Skip("touch not installed")
	}
	f := standardStore(t)
	marker := filepath.Join(t.TempDir(), "restarted")
	cfg := writeConfig(t, "agent:\n  restart_command: "+touch+" "+marker+"\n")

	res := runCLI(t, cfg, "transfer-assignments", f.Path, "m1", "m2", "--dry-run")
	require.Equal(t, ExitSuccess, res.code)
	assert.NoFileExists(t, marker, "dry runs never restart the agent")

	res = runCLI(t, cfg, "transfer-assignments", f.Path, "m1", "m2")
	require.Equal(t, ExitSuccess, res.code, res.stdout+res.stderr)
	assert.FileExists(t, marker)
}

func TestTransfer_AgentFailureIsAWarning(t *testing.T) {
	f := standardStore(t)
	cfg := writeConfig(t, "agent:\n  restart_command: "+filepath.Join(t.TempDir(), "no-agentctl")+"\n")

	res := runCLI(t, cfg, "transfer-assignments", f.Path, "m1", "m2")
	assert.Equal(t, ExitSuccess, res.code)
	assert.Contains(t, res.stderr, "could not restart the vendor application")
	assert.Equal(t, 3, f.Count(t, `SELECT COUNT(*) FROM button_assignments WHERE device_id = 'm2'`))
}

func TestTransfer_VerboseLogsToStderr(t *testing.T) {
	f := standardStore(t)
	res := runCLI(t, "", "-v", "--log-format", "json", "--format", "json", "transfer-assignments", f.Path, "m1", "m2", "--dry-run")
	require.Equal(t, ExitSuccess, res.code)
	assert.Contains(t, res.stderr, `"msg":"plan ready"`)

	var resp CLIResponse
	assert.NoError(t, json.Unmarshal([]byte(res.stdout), &resp), "logs never mix into stdout")
}
