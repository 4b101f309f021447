package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/devmigrate/internal/catalog"
)

// NewListDevicesCommand creates the list-devices command.
func NewListDevicesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list-devices [store-path]",
		Short: "List the devices paired in the store",
		Long: `List every device the vendor application has paired, one per line as
"identifier: display name". Receivers and other excluded device types are
not listed.

The store path defaults to $DEVMIGRATE_STORE, then the configured store.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			arg := ""
			if len(args) == 1 {
				arg = args[0]
			}
			return runListDevices(rootOpts, arg, cmd)
		},
	}
}

func runListDevices(opts *RootOptions, arg string, cmd *cobra.Command) error {
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

	devices, err := schema.ResolveDeviceTable(cmd.Context(), s.Conn())
	if err != nil {
		return out.Fail(err, nil)
	}
	opts.Logger.Debug("devices listed", "count", len(devices), "catalog", schema.Version)

	return out.Success(devices, func(w io.Writer) error {
		return writeDevices(w, devices)
	})
}

func writeDevices(w io.Writer, devices []catalog.Device) error {
	for _, d := range devices {
		if _, err := fmt.Fprintf(w, "%s: %s\n", d.ID, d.DisplayName); err != nil {
			return err
		}
	}
	return nil
}
