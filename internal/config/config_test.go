package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "catalogs"), 0o755))
	path := writeFile(t, dir, "config.yaml", `
store: data/settings.db
backup:
  dir: /var/backups/devmigrate
log:
  level: warn,migrate=debug
  format: json
catalog:
  dirs: [catalogs]
agent:
  restart_command: pkill -HUP vendor-agent
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data", "settings.db"), cfg.Store)
	assert.Equal(t, "/var/backups/devmigrate", cfg.Backup.Dir)
	assert.Equal(t, "warn,migrate=debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, []string{filepath.Join(dir, "catalogs")}, cfg.Catalog.Dirs)
	assert.Equal(t, "pkill -HUP vendor-agent", cfg.Agent.RestartCommand)
	assert.Equal(t, path, cfg.Source)
}

func TestLoad_TOML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.toml", `
store = "/data/settings.db"

[log]
level = "debug"

[agent]
restart_command = ""
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/settings.db", cfg.Store)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format, "unset keys keep defaults")
	assert.Empty(t, cfg.Agent.RestartCommand)
}

func TestLoad_EmptyYAMLKeepsDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yml", "")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name, file, content, want string
	}{
		{"unknown yaml key", "c.yaml", "stroe: x\n", "stroe"},
		{"unknown toml key", "c.toml", "stroe = \"x\"\n", "unknown keys: stroe"},
		{"bad extension", "c.json", "{}", "unsupported config extension"},
		{"bad level", "c.yaml", "log:\n  level: loud\n", "log.level"},
		{"bad format", "c.yaml", "log:\n  format: xml\n", "log.format"},
		{"missing catalog dir", "c.yaml", "catalog:\n  dirs: [nowhere]\n", "does not exist"},
		{"malformed", "c.toml", "store = \n", "parsing config file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), tt.file, tt.content)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "reading config file")
}

func TestEnvOverrides(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "store: /from/file.db\n")
	t.Setenv(EnvStore, "/from/env.db")
	t.Setenv(EnvBackupDir, "/backups")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/from/env.db", cfg.Store)
	assert.Equal(t, "/backups", cfg.Backup.Dir)
}

func TestResolve(t *testing.T) {
	t.Run("explicit path", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "mine.yaml", "store: /x.db\n")
		cfg, err := Resolve(path)
		require.NoError(t, err)
		assert.Equal(t, "/x.db", cfg.Store)
	})

	t.Run("env path", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "env.toml", "store = \"/y.db\"\n")
		t.Setenv(EnvConfig, path)
		cfg, err := Resolve("")
		require.NoError(t, err)
		assert.Equal(t, "/y.db", cfg.Store)
	})

	t.Run("defaults", func(t *testing.T) {
		t.Setenv("HOME", t.TempDir())
		t.Setenv("XDG_CONFIG_HOME", "")
		t.Chdir(t.TempDir())
		t.Setenv(EnvStore, "/z.db")
		cfg, err := Resolve("")
		if Find() != "" {
			t.Skip("a system config file is installed")
		}
		require.NoError(t, err)
		assert.Empty(t, cfg.Source)
		assert.Equal(t, "/z.db", cfg.Store)
	})
}

func TestSearchPaths_WorkingDirectoryLast(t *testing.T) {
	paths := SearchPaths()
	require.NotEmpty(t, paths)
	assert.Equal(t, filepath.Join(".", "config.toml"), paths[len(paths)-1])
}

func TestFind_WorkingDirectory(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", "")
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, "config.toml", "")
	if runtime.GOOS == "linux" {
		if _, err := os.Stat("/etc/devmigrate"); err == nil {
			t.Skip("a system config directory is installed")
		}
	}
	assert.Equal(t, filepath.Join(".", "config.toml"), Find())
}

func TestStorePath(t *testing.T) {
	cfg := &Config{Store: "/configured.db"}
	p, err := cfg.StorePath("/arg.db")
	require.NoError(t, err)
	assert.Equal(t, "/arg.db", p)

	p, err = cfg.StorePath("")
	require.NoError(t, err)
	assert.Equal(t, "/configured.db", p)

	t.Setenv("HOME", "/home/tester")
	p, err = (&Config{}).StorePath("~/s.db")
	require.NoError(t, err)
	assert.Equal(t, "/home/tester/s.db", p)
}

func TestStorePath_NoImplicitDefault(t *testing.T) {
	_, err := Default().StorePath("")
	assert.ErrorIs(t, err, ErrNoStore)
}
