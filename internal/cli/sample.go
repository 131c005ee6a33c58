package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skobkin/benchmarco/internal/app"
	"github.com/skobkin/benchmarco/internal/telemetry"
)

func newSampleCommand(flags *globalFlags) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Take one snapshot and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}

			logger, closeLog, err := newLogger(cfg, cmd.ErrOrStderr(), false)
			if err != nil {
				return err
			}
			defer closeLog()

			snap, err := app.Sample(cmd.Context(), logger, cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			_, err = fmt.Fprintln(out, telemetry.Format(snap))
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the snapshot as JSON instead of the panel text")
	return cmd
}
