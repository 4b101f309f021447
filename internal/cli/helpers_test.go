package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/roach88/devmigrate/internal/config"
	"github.com/roach88/devmigrate/internal/logging"
	"github.com/roach88/devmigrate/internal/testutil"
)

type cliResult struct {
	stdout, stderr string
	code           int
}

// writeConfig writes a YAML config with the vendor agent restart disabled
// unless body sets it.
func writeConfig(t *testing.T, body string) string {
	t.Helper()
	if body == "" {
		body = "agent:\n  restart_command: \"\"\n"
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// runCLI executes the root command with a private config file.
func runCLI(t *testing.T, configPath string, args ...string) cliResult {
	t.Helper()
	t.Setenv(logging.EnvVar, "")
	t.Setenv(config.EnvStore, "")
	t.Setenv(config.EnvBackupDir, "")
	if configPath == "" {
		configPath = writeConfig(t, "")
	}

	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	code := Execute(context.Background(), cmd)
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), code: code}
}

func standardStore(t *testing.T) *testutil.Fixture {
	t.Helper()
	f := testutil.NewStore(t, testutil.V1)
	testutil.SeedStandard(t, f)
	return f
}

func newGolden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}
