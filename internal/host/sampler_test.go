package host

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/sensors"

	"github.com/skobkin/benchmarco/internal/telemetry"
)

type fakeSource struct {
	mu       sync.Mutex
	times    []cpu.TimesStat
	timesErr error
	calls    int

	temps    []sensors.TemperatureStat
	tempsErr error

	vm    *mem.VirtualMemoryStat
	vmErr error
}

func (f *fakeSource) CPUTimes(context.Context) (cpu.TimesStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.timesErr != nil {
		return cpu.TimesStat{}, f.timesErr
	}
	idx := f.calls
	if idx >= len(f.times) {
		idx = len(f.times) - 1
	}
	f.calls++
	return f.times[idx], nil
}

func (f *fakeSource) Temperatures(context.Context) ([]sensors.TemperatureStat, error) {
	return f.temps, f.tempsErr
}

func (f *fakeSource) VirtualMemory(context.Context) (*mem.VirtualMemoryStat, error) {
	return f.vm, f.vmErr
}

func newTestSampler(src Source) *Sampler {
	return NewSampler(src, time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCPUUsage(t *testing.T) {
	t.Parallel()

	src := &fakeSource{times: []cpu.TimesStat{
		{User: 1000, System: 400, Idle: 8000},
		{User: 1012, System: 405, Idle: 8083},
	}}

	got, err := newTestSampler(src).CPUUsage(context.Background())
	if err != nil {
		t.Fatalf("CPUUsage returned error: %v", err)
	}
	if math.Abs(got-17) > 1e-9 {
		t.Fatalf("expected 17%%, got %v", got)
	}
}

func TestCPUUsageIgnoresGuestTime(t *testing.T) {
	t.Parallel()

	src := &fakeSource{times: []cpu.TimesStat{
		{},
		{User: 50, Idle: 50, Guest: 50},
	}}

	got, err := newTestSampler(src).CPUUsage(context.Background())
	if err != nil {
		t.Fatalf("CPUUsage returned error: %v", err)
	}
	if got != 50 {
		t.Fatalf("expected 50%%, got %v", got)
	}
}

func TestCPUUsageUnavailable(t *testing.T) {
	t.Parallel()

	tests := map[string]*fakeSource{
		"counters error": {timesErr: errors.New("not implemented yet")},
		"no progress":    {times: []cpu.TimesStat{{User: 10, Idle: 10}}},
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := newTestSampler(src).CPUUsage(context.Background())
			if !errors.Is(err, telemetry.ErrSensorUnavailable) {
				t.Fatalf("expected ErrSensorUnavailable, got %v", err)
			}
		})
	}
}

func TestCPUUsageHonoursContext(t *testing.T) {
	t.Parallel()

	src := &fakeSource{times: []cpu.TimesStat{{}, {User: 1, Idle: 1}}}
	sampler := NewSampler(src, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sampler.CPUUsage(ctx)
	if !errors.Is(err, context.Canceled) || !errors.Is(err, telemetry.ErrSensorUnavailable) {
		t.Fatalf("expected cancelled sensor error, got %v", err)
	}
}

func TestCPUTemperature(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		src   *fakeSource
		want  float64
		fails bool
	}{
		{
			name: "intel package preferred over cores",
			src: &fakeSource{temps: []sensors.TemperatureStat{
				{SensorKey: "acpitz", Temperature: 27.8},
				{SensorKey: "coretemp_core_0", Temperature: 49},
				{SensorKey: "coretemp_package_id_0", Temperature: 52},
			}},
			want: 52,
		},
		{
			name: "amd tctl",
			src: &fakeSource{temps: []sensors.TemperatureStat{
				{SensorKey: "nvme_composite", Temperature: 38},
				{SensorKey: "k10temp_tctl", Temperature: 61.5},
			}},
			want: 61.5,
		},
		{
			name: "first positive fallback",
			src: &fakeSource{temps: []sensors.TemperatureStat{
				{SensorKey: "iwlwifi_1", Temperature: 0},
				{SensorKey: "nvme_composite", Temperature: 38},
			}},
			want: 38,
		},
		{
			name: "partial result with warnings",
			src: &fakeSource{
				temps:    []sensors.TemperatureStat{{SensorKey: "cpu_thermal", Temperature: 44}},
				tempsErr: errors.New("Number of warnings: 1"),
			},
			want: 44,
		},
		{
			name:  "no sensors",
			src:   &fakeSource{},
			fails: true,
		},
		{
			name:  "only zero readings",
			src:   &fakeSource{temps: []sensors.TemperatureStat{{SensorKey: "acpitz", Temperature: 0}}},
			fails: true,
		},
		{
			name:  "error without readings",
			src:   &fakeSource{tempsErr: errors.New("permission denied")},
			fails: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := newTestSampler(tc.src).CPUTemperature(context.Background())
			if tc.fails {
				if !errors.Is(err, telemetry.ErrSensorUnavailable) {
					t.Fatalf("expected ErrSensorUnavailable, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("CPUTemperature returned error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestMemory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		vm   *mem.VirtualMemoryStat
		want telemetry.MemoryUsage
	}{
		{
			name: "available preferred",
			vm:   &mem.VirtualMemoryStat{Total: 16 << 30, Available: 12 << 30, Free: 2 << 30},
			want: telemetry.MemoryUsage{UsedBytes: 4 << 30, TotalBytes: 16 << 30},
		},
		{
			name: "free fallback",
			vm:   &mem.VirtualMemoryStat{Total: 8 << 30, Free: 6 << 30},
			want: telemetry.MemoryUsage{UsedBytes: 2 << 30, TotalBytes: 8 << 30},
		},
		{
			name: "saturates when free exceeds total",
			vm:   &mem.VirtualMemoryStat{Total: 1 << 30, Available: 2 << 30},
			want: telemetry.MemoryUsage{UsedBytes: 0, TotalBytes: 1 << 30},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := newTestSampler(&fakeSource{vm: tc.vm}).Memory(context.Background())
			if err != nil {
				t.Fatalf("Memory returned error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
			if got.UsedBytes > got.TotalBytes {
				t.Fatalf("used exceeds total: %+v", got)
			}
		})
	}
}

func TestMemoryUnavailable(t *testing.T) {
	t.Parallel()

	tests := map[string]*fakeSource{
		"error":    {vmErr: errors.New("open /proc/meminfo: no such file or directory")},
		"no total": {vm: &mem.VirtualMemoryStat{}},
		"nil stat": {},
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := newTestSampler(src).Memory(context.Background()); !errors.Is(err, telemetry.ErrSensorUnavailable) {
				t.Fatalf("expected ErrSensorUnavailable, got %v", err)
			}
		})
	}
}

func TestSystemSourceRootsReachGopsutil(t *testing.T) {
	t.Parallel()

	if runtime.GOOS != "linux" {
		t.Skip("proc root only applies on linux")
	}

	src := NewSystemSource(t.TempDir(), t.TempDir())
	if _, err := src.VirtualMemory(context.Background()); err == nil {
		t.Fatalf("expected error reading meminfo from an empty proc root")
	}
}
