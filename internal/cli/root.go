// Package cli defines the benchmarco command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/skobkin/benchmarco/internal/config"
)

// globalFlags override environment configuration when set.
type globalFlags struct {
	smiPath   string
	smiLayout string
	interval  time.Duration
	logLevel  string
	logFile   string
}

// NewRootCommand assembles the command tree. Running the root command
// without a subcommand starts the overlay.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&globalFlags{})
}

func newRootCommand(flags *globalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "benchmarco",
		Short: "GPU, CPU and RAM telemetry overlay",
		Long: `benchmarco samples GPU counters from the vendor diagnostic tool together with
host CPU and memory counters, and shows them as a compact always-on-top panel.
The same snapshots can be served over HTTP and WebSocket with "serve".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOverlay(cmd, flags)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.smiPath, "smi-path", "", "diagnostic tool executable (overrides APP_SMI_PATH)")
	pf.StringVar(&flags.smiLayout, "smi-layout", "", "YAML line/offset table for the tool report (overrides APP_SMI_LAYOUT_FILE)")
	pf.DurationVar(&flags.interval, "interval", 0, "sampling interval (overrides APP_SAMPLE_INTERVAL)")
	pf.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error (overrides APP_LOG_LEVEL)")
	pf.StringVar(&flags.logFile, "log-file", "", "write logs to this file (overrides APP_LOG_FILE)")

	root.AddCommand(
		newOverlayCommand(flags),
		newServeCommand(flags),
		newSampleCommand(flags),
	)
	return root
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// loadConfig reads the environment and applies any flags the user set.
func loadConfig(cmd *cobra.Command, flags *globalFlags) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("load configuration: %w", err)
	}

	pf := cmd.Flags()
	if pf.Changed("smi-path") {
		cfg.SMI.Path = flags.smiPath
	}
	if pf.Changed("smi-layout") {
		cfg.SMI.LayoutFile = flags.smiLayout
	}
	if pf.Changed("interval") {
		cfg.SampleInterval = flags.interval
	}
	if pf.Changed("log-level") {
		level, err := config.ParseLogLevel(flags.logLevel)
		if err != nil {
			return config.Config{}, fmt.Errorf("--log-level: %w", err)
		}
		cfg.LogLevel = level
	}
	if pf.Changed("log-file") {
		cfg.LogFile = flags.logFile
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// newLogger builds the process logger. When quiet is set and no log file is
// configured, output is discarded so nothing writes over the terminal panel.
func newLogger(cfg config.Config, stderr io.Writer, quiet bool) (*slog.Logger, func() error, error) {
	out := stderr
	closeFn := func() error { return nil }

	switch {
	case cfg.LogFile != "":
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closeFn = f.Close
	case quiet:
		out = io.Discard
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: cfg.LogLevel})
	return slog.New(handler), closeFn, nil
}
