package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/skobkin/benchmarco/internal/app"
)

func newOverlayCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "overlay",
		Short: "Show the telemetry panel in the terminal",
		Long: `Shows the telemetry panel in the top-right corner of the terminal.
Left click minimizes the panel, right click or the exit key (APP_EXIT_KEY, default esc) closes it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOverlay(cmd, flags)
		},
	}
}

func runOverlay(cmd *cobra.Command, flags *globalFlags) error {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cfg, cmd.ErrOrStderr(), true)
	if err != nil {
		return err
	}
	defer closeLog()

	return app.Overlay(cmd.Context(), logger, cfg, os.Stdin, os.Stdout)
}
