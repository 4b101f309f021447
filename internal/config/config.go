// Package config loads devmigrate's optional configuration file.
//
// Files are YAML (.yaml, .yml) or TOML (.toml). When no file is named on
// the command line the first one found on the search path is used; with
// none found the defaults apply. Environment variables override the file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/roach88/devmigrate/internal/logging"
)

// Environment overrides.
const (
	EnvStore     = "DEVMIGRATE_STORE"
	EnvBackupDir = "DEVMIGRATE_BACKUP_DIR"
	EnvConfig    = "DEVMIGRATE_CONFIG"
)

// Config is the merged configuration.
type Config struct {
	// Store is the vendor settings database.
	Store   string        `yaml:"store" toml:"store"`
	Backup  BackupConfig  `yaml:"backup" toml:"backup"`
	Log     LogConfig     `yaml:"log" toml:"log"`
	Catalog CatalogConfig `yaml:"catalog" toml:"catalog"`
	Agent   AgentConfig   `yaml:"agent" toml:"agent"`

	// Source is the file the config was read from, empty for defaults.
	Source string `yaml:"-" toml:"-"`
}

type BackupConfig struct {
	// Dir defaults to the store's directory.
	Dir string `yaml:"dir" toml:"dir"`
}

type LogConfig struct {
	// Level is a level spec such as "info" or "warn,migrate=debug".
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

type CatalogConfig struct {
	// Dirs hold extra catalog entries, read after the built-in ones.
	Dirs []string `yaml:"dirs" toml:"dirs"`
}

type AgentConfig struct {
	// RestartCommand runs after a committed transfer so the vendor
	// application reloads. "{uid}" is replaced with the current user id.
	// Empty disables the restart.
	RestartCommand string `yaml:"restart_command" toml:"restart_command"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: string(logging.FormatText)},
	}
}

// Load reads path, applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := decode(path, data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	cfg.Source = path
	cfg.resolvePaths(filepath.Dir(path))
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}
	return cfg, nil
}

// Resolve loads the named file, else $DEVMIGRATE_CONFIG, else the first
// file on the search path, else the defaults.
func Resolve(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		return Load(path)
	}
	if found := Find(); found != "" {
		return Load(found)
	}
	cfg := Default()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Find returns the first existing config file on the search path.
func Find() string {
	for _, p := range SearchPaths() {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

func decode(path string, data []byte, cfg *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
		}
		return nil
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	default:
		return fmt.Errorf("unsupported config extension %q (use .yaml, .yml or .toml)", ext)
	}
}

// resolvePaths makes relative paths in the file relative to its directory.
func (c *Config) resolvePaths(base string) {
	abs := func(p string) string {
		p = expandHome(p)
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.Store = abs(c.Store)
	c.Backup.Dir = abs(c.Backup.Dir)
	for i, d := range c.Catalog.Dirs {
		c.Catalog.Dirs[i] = abs(d)
	}
}

func applyEnvOverrides(c *Config) {
	if v := os.Getenv(EnvStore); v != "" {
		c.Store = expandHome(v)
	}
	if v := os.Getenv(EnvBackupDir); v != "" {
		c.Backup.Dir = expandHome(v)
	}
}

// Validate checks the log settings and catalog directories.
func (c *Config) Validate() error {
	var errs []error
	if _, err := logging.ParseSpec(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		errs = append(errs, fmt.Errorf("log.format: %w", err))
	}
	for _, d := range c.Catalog.Dirs {
		info, err := os.Stat(d)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			errs = append(errs, fmt.Errorf("catalog.dirs: %s does not exist", d))
		case err != nil:
			errs = append(errs, fmt.Errorf("catalog.dirs: %w", err))
		case !info.IsDir():
			errs = append(errs, fmt.Errorf("catalog.dirs: %s is not a directory", d))
		}
	}
	return errors.Join(errs...)
}

// StorePath returns the store to use: arg if given, then the configured
// store. There is no implicit default: the vendor application's own
// single-document store is not a layout any catalog entry describes.
func (c *Config) StorePath(arg string) (string, error) {
	switch {
	case arg != "":
		return expandHome(arg), nil
	case c.Store != "":
		return c.Store, nil
	}
	return "", ErrNoStore
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
