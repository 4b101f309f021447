package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// EnvVar holds a level spec that overrides the config file.
const EnvVar = "DEVMIGRATE_LOG"

// Format is the log output format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat accepts text and json; "" means text.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	}
	return FormatText, fmt.Errorf("unknown log format %q (valid: text, json)", s)
}

// Options configures New. The first non-empty of CLISpec, EnvSpec and
// ConfigSpec wins.
type Options struct {
	CLISpec    string
	EnvSpec    string
	ConfigSpec string
	Format     Format
	// Output defaults to os.Stderr.
	Output io.Writer
}

// New builds a logger from opts.
func New(opts Options) (*slog.Logger, error) {
	raw := opts.ConfigSpec
	switch {
	case opts.CLISpec != "":
		raw = opts.CLISpec
	case opts.EnvSpec != "":
		raw = opts.EnvSpec
	}
	spec, err := ParseSpec(raw)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	ho := &slog.HandlerOptions{Level: spec.Min().Slog(), ReplaceAttr: levelNames}
	var inner slog.Handler
	switch opts.Format {
	case FormatJSON:
		inner = slog.NewJSONHandler(out, ho)
	case FormatText, "":
		inner = slog.NewTextHandler(out, ho)
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}
	return slog.New(&componentHandler{inner: inner, spec: spec}), nil
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// levelNames prints LevelTrace as TRACE instead of DEBUG-4.
func levelNames(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey && len(groups) == 0 {
		if l, ok := a.Value.Any().(slog.Level); ok && l == LevelTrace.Slog() {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}
