package gpu

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/skobkin/benchmarco/internal/telemetry"
)

const (
	DefaultCommand = "nvidia-smi"
	DefaultTimeout = 2 * time.Second

	waitDelay = 500 * time.Millisecond
)

// DefaultArgs asks the tool for its full human-readable query report.
var DefaultArgs = []string{"-q"}

// Runner produces the raw diagnostic report.
type Runner interface {
	Run(ctx context.Context) ([]byte, error)
}

// CommandRunner executes the diagnostic tool and captures its stdout.
type CommandRunner struct {
	Path    string
	Args    []string
	Timeout time.Duration
}

// NewCommandRunner builds a runner for path with the default query argument.
// An empty path selects DefaultCommand; a non-positive timeout DefaultTimeout.
func NewCommandRunner(path string, timeout time.Duration) *CommandRunner {
	if path == "" {
		path = DefaultCommand
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &CommandRunner{
		Path:    path,
		Args:    append([]string(nil), DefaultArgs...),
		Timeout: timeout,
	}
}

// Run executes the command. Launch failures, timeouts and non-zero exits are
// reported as telemetry.ErrCommandUnavailable.
func (r *CommandRunner) Run(ctx context.Context) ([]byte, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.Path, r.Args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, telemetry.NewError(telemetry.ErrCommandUnavailable, "",
			fmt.Errorf("%s timed out after %s: %w", r.Path, timeout, context.DeadlineExceeded))
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		detail := firstLine(stderr.String())
		if detail == "" {
			detail = firstLine(stdout.String())
		}
		if detail != "" {
			err = fmt.Errorf("%s: %w: %s", r.Path, err, detail)
		} else {
			err = fmt.Errorf("%s: %w", r.Path, err)
		}
	}

	return nil, telemetry.NewError(telemetry.ErrCommandUnavailable, "", err)
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// StaticRunner replays a captured report. Used by the debug tool and tests.
type StaticRunner []byte

func (s StaticRunner) Run(context.Context) ([]byte, error) {
	return s, nil
}
