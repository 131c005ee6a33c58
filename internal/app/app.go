// Package app wires up and runs the application services.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/skobkin/benchmarco/internal/config"
	"github.com/skobkin/benchmarco/internal/gpu"
	"github.com/skobkin/benchmarco/internal/host"
	"github.com/skobkin/benchmarco/internal/httpserver"
	"github.com/skobkin/benchmarco/internal/overlay"
	"github.com/skobkin/benchmarco/internal/sampler"
	"github.com/skobkin/benchmarco/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// ErrNoTerminal is returned when the overlay is started without a TTY.
var ErrNoTerminal = errors.New("overlay requires an interactive terminal")

// NewManager builds the sampling pipeline described by cfg: the diagnostic
// tool runner and report parser, the host sampler and the aggregator that
// joins them.
func NewManager(cfg config.Config, baseLogger *slog.Logger) (*sampler.Manager, error) {
	layout := gpu.DefaultLayout()
	if cfg.SMI.LayoutFile != "" {
		loaded, err := gpu.LoadLayout(cfg.SMI.LayoutFile)
		if err != nil {
			return nil, fmt.Errorf("load layout: %w", err)
		}
		layout = loaded
	}

	runner := gpu.NewCommandRunner(cfg.SMI.Path, cfg.SMI.Timeout)
	parser := gpu.NewParser(runner, layout, baseLogger.With("component", "gpu_parser"))
	hostSampler := host.NewSampler(
		host.NewSystemSource(cfg.ProcRoot, cfg.SysfsRoot),
		cfg.Host.CPUWindow,
		baseLogger.With("component", "host_sampler"),
	)

	manager, err := sampler.NewManager(cfg.SampleInterval, sampler.NewAggregator(parser, hostSampler), baseLogger)
	if err != nil {
		return nil, fmt.Errorf("init sampler manager: %w", err)
	}
	return manager, nil
}

// Sample runs one sampling pass and returns it.
func Sample(ctx context.Context, baseLogger *slog.Logger, cfg config.Config) (telemetry.Snapshot, error) {
	manager, err := NewManager(cfg, baseLogger)
	if err != nil {
		return telemetry.Snapshot{}, err
	}
	defer manager.Close()

	snap := manager.SampleOnce(ctx)
	if err := ctx.Err(); err != nil {
		return telemetry.Snapshot{}, err
	}
	return snap, nil
}

// Overlay shows the terminal panel until the user closes it or ctx is
// canceled. Sampling runs in the background and never blocks a redraw.
func Overlay(ctx context.Context, baseLogger *slog.Logger, cfg config.Config, in *os.File, out *os.File) error {
	if !term.IsTerminal(int(in.Fd())) || !term.IsTerminal(int(out.Fd())) {
		return ErrNoTerminal
	}
	return runOverlay(ctx, baseLogger, cfg, in, out)
}

func runOverlay(ctx context.Context, baseLogger *slog.Logger, cfg config.Config, in io.Reader, out io.Writer) error {
	appLogger := baseLogger.With("component", "app")

	manager, err := NewManager(cfg, baseLogger)
	if err != nil {
		return err
	}

	samplerCtx, samplerCancel := context.WithCancel(ctx)
	defer samplerCancel()

	samplerErrCh := make(chan error, 1)
	go func() {
		samplerErrCh <- manager.Run(samplerCtx)
	}()

	overlayErr := overlay.Run(ctx, manager, overlay.Options{
		FrameInterval: cfg.Overlay.FrameInterval,
		ExitKey:       cfg.Overlay.ExitKey,
		Input:         in,
		Output:        out,
		Logger:        baseLogger,
	})

	samplerCancel()
	samplerErr := <-samplerErrCh
	if samplerErr != nil && !errors.Is(samplerErr, context.Canceled) {
		appLogger.Warn("sampler stopped with error", "err", samplerErr)
	}
	if overlayErr != nil {
		return fmt.Errorf("overlay: %w", overlayErr)
	}
	return nil
}

// Serve runs the sampler and the HTTP surface until ctx is canceled.
func Serve(ctx context.Context, baseLogger *slog.Logger, cfg config.Config) error {
	appLogger := baseLogger.With("component", "app")

	manager, err := NewManager(cfg, baseLogger)
	if err != nil {
		return err
	}

	samplerCtx, samplerCancel := context.WithCancel(ctx)
	defer samplerCancel()

	samplerErrCh := make(chan error, 1)
	go func() {
		samplerErrCh <- manager.Run(samplerCtx)
	}()

	srv := httpserver.New(cfg, baseLogger.With("component", "http"), manager)

	appLogger.Info("starting HTTP server", "listen_addr", cfg.ListenAddr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	waitSampler := func() error {
		samplerCancel()
		if samplerErrCh == nil {
			return nil
		}
		if err := <-samplerErrCh; err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	for {
		select {
		case err := <-errCh:
			samplerErr := waitSampler()
			if err != nil {
				return err
			}
			return samplerErr
		case err := <-samplerErrCh:
			samplerErrCh = nil
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
		case <-ctx.Done():
			appLogger.Info("shutdown initiated", "reason", ctx.Err())

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("http shutdown: %w", err)
			}
			if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			if err := waitSampler(); err != nil {
				return err
			}

			appLogger.Info("shutdown complete")
			return nil
		}
	}
}
