package cli

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/devmigrate/internal/agent"
	"github.com/roach88/devmigrate/internal/migrate"
)

// TransferOptions holds flags for the transfer-assignments command.
type TransferOptions struct {
	*RootOptions
	DryRun    bool
	Move      bool
	BackupDir string
}

// NewTransferCommand creates the transfer-assignments command.
func NewTransferCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TransferOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "transfer-assignments <store-path> <source-id> <target-id>",
		Short: "Copy one device's settings onto another",
		Long: `Copy every setting the source device owns onto the target device,
replacing the target's settings for the same buttons, profiles and
applications. Target settings the source does not have are kept.

The store is backed up next to itself (or into --backup-dir) before
anything is written. The transfer runs in one transaction and is checked
before it commits; on any failure the store is left as it was.

Close the vendor application first: the transfer refuses to run while the
store is in use.

Device ids are the ones list-devices prints.

Example:
  devmigrate transfer-assignments settings.db 4f1a09c2 4f1a09c3 --dry-run
  devmigrate transfer-assignments settings.db 4f1a09c2 4f1a09c3 --move`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransfer(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "print the plan without locking, backing up or writing")
	cmd.Flags().BoolVar(&opts.Move, "move", false, "re-point the source's settings instead of copying them")
	cmd.Flags().StringVar(&opts.BackupDir, "backup-dir", "", "directory for the backup (default: config backup.dir, else next to the store)")

	return cmd
}

func runTransfer(opts *TransferOptions, args []string, cmd *cobra.Command) error {
	out := opts.formatter(cmd.OutOrStdout())
	path, err := opts.storePath(args[0])
	if err != nil {
		return out.Fail(err, nil)
	}
	entries, err := opts.catalogs()
	if err != nil {
		return out.Fail(err, nil)
	}

	mode := migrate.ModeCopy
	if opts.Move {
		mode = migrate.ModeMove
	}
	backupDir := opts.BackupDir
	if backupDir == "" {
		backupDir = opts.Config.Backup.Dir
	}

	res, err := migrate.Transfer(cmd.Context(), migrate.TransferOptions{
		StorePath: path,
		Source:    norm.NFC.String(args[1]),
		Target:    norm.NFC.String(args[2]),
		Mode:      mode,
		DryRun:    opts.DryRun,
		BackupDir: backupDir,
		Catalogs:  entries,
		Logger:    opts.Logger,
	})
	if err != nil {
		return out.Fail(err, failureDetails(res))
	}

	if res.Outcome == migrate.OutcomeCommitted {
		restarter := &agent.Restarter{
			Command: opts.Config.Agent.RestartCommand,
			Logger:  opts.Logger.With("component", "agent"),
		}
		if err := restarter.Restart(cmd.Context()); err != nil {
			opts.Logger.Warn("could not restart the vendor application; restart it before using the device", "error", err)
		}
	}

	return out.Success(res, func(w io.Writer) error {
		return writeResult(w, res)
	})
}

// failureDetails exposes the apply trace and backup of a failed transfer.
func failureDetails(res *migrate.Result) any {
	if res == nil {
		return nil
	}
	return res
}

func writeResult(w io.Writer, res *migrate.Result) error {
	p := res.Plan
	switch res.Outcome {
	case migrate.OutcomeDryRun:
		return writePlan(w, p)
	case migrate.OutcomeNoChanges:
		_, err := fmt.Fprintf(w, "%s already has the settings of %s; nothing to do\n", p.Target, p.Source)
		return err
	}

	verb := "Copied"
	if p.Mode == migrate.ModeMove {
		verb = "Moved"
	}
	st := res.Stats
	fmt.Fprintf(w, "%s settings of %s to %s\n", verb, p.Source, p.Target)
	fmt.Fprintf(w, "  inserted %d, updated %d, relinked %d, deleted %d\n", st.Inserted, st.Updated, st.Relinked, st.Deleted)
	if b := res.Backup; b != nil {
		fmt.Fprintf(w, "Backup: %s (%s, sha256 %s)\n", b.Path, humanize.Bytes(uint64(b.Size)), b.SHA256)
	}
	return nil
}
