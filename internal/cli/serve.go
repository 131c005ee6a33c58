package cli

import (
	"github.com/spf13/cobra"

	"github.com/skobkin/benchmarco/internal/app"
)

func newServeCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve snapshots over HTTP and WebSocket",
		Example: `  # Listen on another port with Prometheus metrics
  APP_LISTEN_ADDR=:9100 APP_ENABLE_PROMETHEUS=true benchmarco serve`,
		Args: cobra.NoArgs,
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

			return app.Serve(cmd.Context(), logger, cfg)
		},
	}
}
