// Package host samples CPU load, CPU temperature and memory occupancy of the
// machine the overlay runs on.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/sensors"

	"github.com/skobkin/benchmarco/internal/telemetry"
)

// DefaultCPUWindow is the interval between the two CPU time readings.
const DefaultCPUWindow = 500 * time.Millisecond

// cpuSensorPreference lists sensor key prefixes that identify the CPU
// package, most specific first.
var cpuSensorPreference = []string{
	"coretemp_package",
	"k10temp_tctl",
	"k10temp_tdie",
	"zenpower_tdie",
	"zenpower_tctl",
	"cpu_thermal",
	"coretemp",
	"k10temp",
	"zenpower",
	"acpitz",
}

// Sampler derives the host fields of a snapshot. Each query fails
// independently with telemetry.ErrSensorUnavailable.
type Sampler struct {
	src    Source
	window time.Duration
	logger *slog.Logger
}

func NewSampler(src Source, window time.Duration, logger *slog.Logger) *Sampler {
	if window <= 0 {
		window = DefaultCPUWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{
		src:    src,
		window: window,
		logger: logger.With("component", "host_sampler"),
	}
}

// CPUUsage measures aggregate user plus system load over the sampling
// window, in percent. It blocks for the window or until ctx is done.
func (s *Sampler) CPUUsage(ctx context.Context) (float64, error) {
	before, err := s.src.CPUTimes(ctx)
	if err != nil {
		return 0, unavailable("cpu_usage", err)
	}

	timer := time.NewTimer(s.window)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return 0, unavailable("cpu_usage", ctx.Err())
	case <-timer.C:
	}

	after, err := s.src.CPUTimes(ctx)
	if err != nil {
		return 0, unavailable("cpu_usage", err)
	}

	return cpuLoad(before, after)
}

func cpuLoad(before, after cpu.TimesStat) (float64, error) {
	total := busyTotal(after) - busyTotal(before)
	if total <= 0 {
		return 0, unavailable("cpu_usage", errors.New("cpu counters did not advance"))
	}

	user := (after.User - before.User) / total
	system := (after.System - before.System) / total
	return (user + system) * 100, nil
}

// busyTotal sums every time bucket. Guest time is already counted in user
// on Linux and is left out.
func busyTotal(t cpu.TimesStat) float64 {
	return t.User + t.Nice + t.System + t.Idle + t.Iowait + t.Irq + t.Softirq + t.Steal
}

// CPUTemperature returns the CPU package temperature in degrees Celsius.
func (s *Sampler) CPUTemperature(ctx context.Context) (float64, error) {
	temps, err := s.src.Temperatures(ctx)
	if len(temps) == 0 {
		if err == nil {
			err = errors.New("no temperature sensors found")
		}
		return 0, unavailable("cpu_temperature", err)
	}
	if err != nil {
		s.logger.Debug("some sensors unreadable", "err", err)
	}

	if value, ok := pickCPUTemperature(temps); ok {
		return value, nil
	}
	return 0, unavailable("cpu_temperature", fmt.Errorf("no usable reading among %d sensors", len(temps)))
}

func pickCPUTemperature(temps []sensors.TemperatureStat) (float64, bool) {
	for _, prefix := range cpuSensorPreference {
		for _, t := range temps {
			if t.Temperature > 0 && strings.HasPrefix(strings.ToLower(t.SensorKey), prefix) {
				return t.Temperature, true
			}
		}
	}
	for _, t := range temps {
		if t.Temperature > 0 {
			return t.Temperature, true
		}
	}
	return 0, false
}

// Memory returns used and total RAM. Free memory is the available estimate
// when the platform reports one; used saturates at zero.
func (s *Sampler) Memory(ctx context.Context) (telemetry.MemoryUsage, error) {
	vm, err := s.src.VirtualMemory(ctx)
	if err != nil {
		return telemetry.MemoryUsage{}, unavailable("memory", err)
	}
	if vm == nil || vm.Total == 0 {
		return telemetry.MemoryUsage{}, unavailable("memory", errors.New("total memory not reported"))
	}

	free := vm.Available
	if free == 0 {
		free = vm.Free
	}
	return telemetry.MemoryUsage{
		UsedBytes:  saturatingSub(vm.Total, free),
		TotalBytes: vm.Total,
	}, nil
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

func unavailable(field string, cause error) error {
	return telemetry.NewError(telemetry.ErrSensorUnavailable, field, cause)
}
