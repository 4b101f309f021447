package cli

import (
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/devmigrate/internal/migrate"
)

// NewShowSettingsCommand creates the show-settings command.
func NewShowSettingsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show-settings [store-path] <device-id>",
		Short: "Show every setting a device owns",
		Long: `Print the rows a device owns in each configuration table, with the
identifiers embedded in their payloads. The store is opened read-only.`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			arg, device := "", args[0]
			if len(args) == 2 {
				arg, device = args[0], args[1]
			}
			return runShowSettings(rootOpts, arg, norm.NFC.String(device), cmd)
		},
	}
}

func runShowSettings(opts *RootOptions, arg, device string, cmd *cobra.Command) error {
	out := opts.formatter(cmd.OutOrStdout())
	path, err := opts.storePath(arg)
	if err != nil {
		return out.Fail(err, nil)
	}
	s, schema, err := opts.openReadOnly(cmd.Context(), path)
	if err != nil {
		return out.Fail(err, nil)
	}
	defer s.Close()

	g, err := migrate.Extract(cmd.Context(), schema, s.Conn(), device)
	if err != nil {
		return out.Fail(err, nil)
	}
	return out.Success(newGraphView(g), func(w io.Writer) error {
		return writeGraph(w, g)
	})
}
