package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/devmigrate/internal/catalog"
	"github.com/roach88/devmigrate/internal/config"
	"github.com/roach88/devmigrate/internal/logging"
)

// RootOptions holds global flags and the state every command shares.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	LogLevel   string
	LogFormat  string

	// Set before any command runs.
	Config *config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the devmigrate command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "devmigrate",
		Short: "Move input-device settings between devices",
		Long: `devmigrate copies or moves the configuration a vendor application keeps
for one input device onto another device in the vendor's SQLite store.

Every write is preceded by a verified backup and runs in one transaction
that is checked before it commits.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd.ErrOrStderr())
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output (same as --log-level debug)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default: search the standard locations)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level spec, e.g. info or warn,migrate=debug")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format (text|json)")

	cmd.AddCommand(NewListDevicesCommand(opts))
	cmd.AddCommand(NewTransferCommand(opts))
	cmd.AddCommand(NewShowSettingsCommand(opts))

	return cmd
}

// setup validates global flags, loads the config and builds the logger.
func (o *RootOptions) setup(stderr io.Writer) error {
	if !slices.Contains(ValidFormats, o.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}
	cfg, err := config.Resolve(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	o.Config = cfg

	cliSpec := o.LogLevel
	if cliSpec == "" && o.Verbose {
		cliSpec = "debug"
	}
	logFormat := o.LogFormat
	if logFormat == "" {
		logFormat = cfg.Log.Format
	}
	format, err := logging.ParseFormat(logFormat)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --log-format", err)
	}
	logger, err := logging.New(logging.Options{
		CLISpec:    cliSpec,
		EnvSpec:    os.Getenv(logging.EnvVar),
		ConfigSpec: cfg.Log.Level,
		Format:     format,
		Output:     stderr,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --log-level", err)
	}
	o.Logger = logger
	if cfg.Source != "" {
		logger.Debug("config loaded", "file", cfg.Source)
	}
	return nil
}

// catalogs returns the built-in catalog entries merged with configured ones.
func (o *RootOptions) catalogs() ([]*catalog.Catalog, error) {
	entries, err := catalog.Load(o.Config.Catalog.Dirs...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load catalog", err)
	}
	return entries, nil
}

// storePath resolves the store argument and checks that the file exists.
func (o *RootOptions) storePath(arg string) (string, error) {
	path, err := o.Config.StorePath(arg)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "no store path", err)
	}
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return "", NewExitError(ExitCommandError, fmt.Sprintf("store not found: %s", path))
	case err != nil:
		return "", WrapExitError(ExitCommandError, "cannot access store", err)
	case info.IsDir():
		return "", NewExitError(ExitCommandError, fmt.Sprintf("store is a directory: %s", path))
	}
	return path, nil
}

// Execute runs the command tree and returns the process exit code. Errors
// not already reported by a command are printed to stderr.
func Execute(ctx context.Context, cmd *cobra.Command) int {
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || !exitErr.Reported {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	}
	if exitErr == nil {
		return ExitCommandError
	}
	return exitErr.Code
}
