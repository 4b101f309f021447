// Package agent restarts the vendor application after its store changes,
// so it reloads settings instead of overwriting them from memory.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// UIDPlaceholder is replaced with the current user id in commands.
const UIDPlaceholder = "{uid}"

// DefaultTimeout bounds one restart command.
const DefaultTimeout = 10 * time.Second

// Restarter runs the configured restart command.
type Restarter struct {
	// Command is split on whitespace; no shell is involved.
	Command string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Args returns the command's argv with placeholders substituted.
func (r *Restarter) Args() ([]string, error) {
	fields := strings.Fields(r.Command)
	if len(fields) == 0 {
		return nil, errors.New("empty restart command")
	}
	uid := strconv.Itoa(os.Getuid())
	for i, f := range fields {
		fields[i] = strings.ReplaceAll(f, UIDPlaceholder, uid)
	}
	return fields, nil
}

// Restart runs the command. It returns an error for the caller to report,
// but a failed restart never undoes a committed transfer.
func (r *Restarter) Restart(ctx context.Context) error {
	if strings.TrimSpace(r.Command) == "" {
		return nil
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	args, err := r.Args()
	if err != nil {
		return err
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger.Debug("restarting vendor agent", "command", args)
	out, err := exec.CommandContext(ctx, args[0], args[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %w (%s)", args[0], err, strings.TrimSpace(string(out)))
	}
	logger.Info("vendor agent restarted", "command", args[0])
	return nil
}
