package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/skobkin/benchmarco/internal/config"
)

func fakeTool(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script tool requires a POSIX shell")
	}
	fixture, err := filepath.Abs(filepath.Join("..", "gpu", "testdata", "nvidia-smi-q.txt"))
	if err != nil {
		t.Fatalf("abs fixture: %v", err)
	}
	script := filepath.Join(t.TempDir(), "nvidia-smi")
	if err := os.WriteFile(script, []byte("#!/bin/sh\ncat '"+fixture+"'\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return script
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSampleCommandPrintsReport(t *testing.T) {
	t.Setenv("APP_CPU_WINDOW", "10ms")

	out, err := execute(t, "sample", "--smi-path", fakeTool(t))
	if err != nil {
		t.Fatalf("sample failed: %v", err)
	}
	if !strings.HasPrefix(out, "GPU\nusg  12%\n") {
		t.Fatalf("unexpected report:\n%s", out)
	}
	if !strings.Contains(out, "mem  4%  2048/8192") {
		t.Fatalf("report lacks memory line:\n%s", out)
	}
}

func TestSampleCommandJSON(t *testing.T) {
	t.Setenv("APP_CPU_WINDOW", "10ms")

	out, err := execute(t, "sample", "--json", "--smi-path", fakeTool(t))
	if err != nil {
		t.Fatalf("sample --json failed: %v", err)
	}

	var payload struct {
		GPU struct {
			Value struct {
				MemUsedMB uint64 `json:"mem_used_mb"`
			} `json:"value"`
		} `json:"gpu"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if payload.GPU.Value.MemUsedMB != 2048 {
		t.Fatalf("expected 2048 MiB used, got %d", payload.GPU.Value.MemUsedMB)
	}
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("APP_SMI_PATH", "/env/nvidia-smi")
	t.Setenv("APP_SAMPLE_INTERVAL", "3s")
	t.Setenv("APP_LOG_LEVEL", "error")

	var got config.Config
	flags := &globalFlags{}
	probe := &cobra.Command{
		Use: "probe",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			got = cfg
			return err
		},
	}
	root := newRootCommand(flags)
	root.AddCommand(probe)
	root.SetArgs([]string{"probe", "--smi-path", "/flag/nvidia-smi", "--log-level", "debug"})

	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got.SMI.Path != "/flag/nvidia-smi" {
		t.Fatalf("flag did not override APP_SMI_PATH, got %q", got.SMI.Path)
	}
	if got.SampleInterval != 3*time.Second {
		t.Fatalf("unset flag should keep env interval, got %s", got.SampleInterval)
	}
	if got.LogLevel != slog.LevelDebug {
		t.Fatalf("flag did not override log level, got %v", got.LogLevel)
	}
}

func TestInvalidFlagValues(t *testing.T) {
	tests := [][]string{
		{"sample", "--log-level", "loud"},
		{"sample", "--interval", "0s"},
		{"sample", "--smi-layout", "/nonexistent/layout.yaml"},
	}
	for _, args := range tests {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			if _, err := execute(t, args...); err == nil {
				t.Fatalf("expected error for %v", args)
			}
		})
	}
}

func TestNewLoggerQuietDiscards(t *testing.T) {
	var stderr bytes.Buffer
	logger, closeLog, err := newLogger(config.Default(), &stderr, true)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	defer closeLog()

	logger.Info("hidden")
	if stderr.Len() != 0 {
		t.Fatalf("quiet logger wrote to stderr: %q", stderr.String())
	}
}

func TestNewLoggerWritesFile(t *testing.T) {
	cfg := config.Default()
	cfg.LogFile = filepath.Join(t.TempDir(), "overlay.log")

	var stderr bytes.Buffer
	logger, closeLog, err := newLogger(cfg, &stderr, true)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Info("to file", "component", "test")
	if err := closeLog(); err != nil {
		t.Fatalf("close log: %v", err)
	}

	data, err := os.ReadFile(cfg.LogFile)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "msg=\"to file\"") {
		t.Fatalf("log file lacks message: %q", data)
	}
	if stderr.Len() != 0 {
		t.Fatalf("file logger also wrote to stderr")
	}
}
