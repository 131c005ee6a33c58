package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents runtime configuration sourced from environment variables.
type Config struct {
	ListenAddr       string
	SampleInterval   time.Duration
	AllowedOrigins   []string
	EnablePrometheus bool
	EnablePprof      bool
	LogLevel         slog.Level
	LogFile          string
	ProcRoot         string
	SysfsRoot        string
	SMI              SMIConfig
	Host             HostConfig
	Overlay          OverlayConfig
	WS               WebsocketConfig
}

// SMIConfig controls the external diagnostic tool invocation.
type SMIConfig struct {
	Path       string
	Timeout    time.Duration
	LayoutFile string
}

// HostConfig tunes the host counters sampler.
type HostConfig struct {
	CPUWindow time.Duration
}

// OverlayConfig tunes the terminal panel.
type OverlayConfig struct {
	FrameInterval time.Duration
	ExitKey       string
}

// WebsocketConfig captures tunables for WebSocket handling.
type WebsocketConfig struct {
	MaxClients   int
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
}

// Default returns the configuration used when no variables are set.
func Default() Config {
	return Config{
		ListenAddr:     ":8080",
		SampleInterval: time.Second,
		AllowedOrigins: []string{"*"},
		LogLevel:       slog.LevelInfo,
		ProcRoot:       "/proc",
		SysfsRoot:      "/sys",
		SMI: SMIConfig{
			Path:    "nvidia-smi",
			Timeout: 2 * time.Second,
		},
		Host: HostConfig{
			CPUWindow: 500 * time.Millisecond,
		},
		Overlay: OverlayConfig{
			FrameInterval: 100 * time.Millisecond,
			ExitKey:       "esc",
		},
		WS: WebsocketConfig{
			MaxClients:   64,
			WriteTimeout: 3 * time.Second,
			ReadTimeout:  30 * time.Second,
		},
	}
}

// Load parses configuration from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Default()

	setString("APP_LISTEN_ADDR", &cfg.ListenAddr)
	setString("APP_LOG_FILE", &cfg.LogFile)
	setString("APP_PROC_ROOT", &cfg.ProcRoot)
	setString("APP_SYSFS_ROOT", &cfg.SysfsRoot)
	setString("APP_SMI_PATH", &cfg.SMI.Path)
	setString("APP_SMI_LAYOUT_FILE", &cfg.SMI.LayoutFile)
	setString("APP_EXIT_KEY", &cfg.Overlay.ExitKey)

	if value := lookup("APP_ALLOWED_ORIGINS"); value != "" {
		origins := splitAndTrim(value, ",")
		if len(origins) == 0 {
			return Config{}, fmt.Errorf("APP_ALLOWED_ORIGINS must not be empty")
		}
		cfg.AllowedOrigins = origins
	}

	if value := lookup("APP_LOG_LEVEL"); value != "" {
		level, err := ParseLogLevel(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_LOG_LEVEL: %w", err)
		}
		cfg.LogLevel = level
	}

	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"APP_SAMPLE_INTERVAL", &cfg.SampleInterval},
		{"APP_SMI_TIMEOUT", &cfg.SMI.Timeout},
		{"APP_CPU_WINDOW", &cfg.Host.CPUWindow},
		{"APP_FRAME_INTERVAL", &cfg.Overlay.FrameInterval},
		{"APP_WS_WRITE_TIMEOUT", &cfg.WS.WriteTimeout},
		{"APP_WS_READ_TIMEOUT", &cfg.WS.ReadTimeout},
	} {
		if err := setDuration(d.key, d.dst); err != nil {
			return Config{}, err
		}
	}

	for _, b := range []struct {
		key string
		dst *bool
	}{
		{"APP_ENABLE_PROMETHEUS", &cfg.EnablePrometheus},
		{"APP_ENABLE_PPROF", &cfg.EnablePprof},
	} {
		if err := setBool(b.key, b.dst); err != nil {
			return Config{}, err
		}
	}

	if value := lookup("APP_WS_MAX_CLIENTS"); value != "" {
		maxClients, err := strconv.Atoi(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_WS_MAX_CLIENTS: %w", err)
		}
		cfg.WS.MaxClients = maxClients
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks invariants that flag overrides could also break.
func (c Config) Validate() error {
	var errs []error
	positive := []struct {
		name  string
		value time.Duration
	}{
		{"APP_SAMPLE_INTERVAL", c.SampleInterval},
		{"APP_SMI_TIMEOUT", c.SMI.Timeout},
		{"APP_CPU_WINDOW", c.Host.CPUWindow},
		{"APP_FRAME_INTERVAL", c.Overlay.FrameInterval},
		{"APP_WS_WRITE_TIMEOUT", c.WS.WriteTimeout},
		{"APP_WS_READ_TIMEOUT", c.WS.ReadTimeout},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0", p.name))
		}
	}
	if c.WS.MaxClients <= 0 {
		errs = append(errs, fmt.Errorf("APP_WS_MAX_CLIENTS must be > 0"))
	}
	if strings.TrimSpace(c.SMI.Path) == "" {
		errs = append(errs, fmt.Errorf("APP_SMI_PATH must not be empty"))
	}
	if strings.TrimSpace(c.Overlay.ExitKey) == "" {
		errs = append(errs, fmt.Errorf("APP_EXIT_KEY must not be empty"))
	}
	return errors.Join(errs...)
}

func lookup(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func setString(key string, dst *string) {
	if value := lookup(key); value != "" {
		*dst = value
	}
}

func setDuration(key string, dst *time.Duration) error {
	value := lookup(key)
	if value == "" {
		return nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = duration
	return nil
}

func setBool(key string, dst *bool) error {
	value := lookup(key)
	if value == "" {
		return nil
	}
	enabled, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = enabled
	return nil
}

func splitAndTrim(value, sep string) []string {
	raw := strings.Split(value, sep)
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// ParseLogLevel maps a level name to its slog level.
func ParseLogLevel(input string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(input)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported log level %q", input)
	}
}
