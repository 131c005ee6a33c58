package host

import (
	"context"
	"errors"

	"github.com/shirou/gopsutil/v4/common"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/sensors"
)

// Source exposes the raw OS counters the sampler derives its values from.
type Source interface {
	CPUTimes(ctx context.Context) (cpu.TimesStat, error)
	Temperatures(ctx context.Context) ([]sensors.TemperatureStat, error)
	VirtualMemory(ctx context.Context) (*mem.VirtualMemoryStat, error)
}

// SystemSource reads counters through gopsutil. ProcRoot and SysRoot
// redirect the procfs and sysfs mounts, which lets a containerised process
// read the host's counters.
type SystemSource struct {
	ProcRoot string
	SysRoot  string
}

// NewSystemSource returns a source rooted at procRoot and sysRoot. Empty
// roots keep gopsutil's defaults.
func NewSystemSource(procRoot, sysRoot string) *SystemSource {
	return &SystemSource{ProcRoot: procRoot, SysRoot: sysRoot}
}

func (s *SystemSource) withEnv(ctx context.Context) context.Context {
	env := common.EnvMap{}
	if s.ProcRoot != "" {
		env[common.HostProcEnvKey] = s.ProcRoot
	}
	if s.SysRoot != "" {
		env[common.HostSysEnvKey] = s.SysRoot
	}
	if len(env) == 0 {
		return ctx
	}
	return context.WithValue(ctx, common.EnvKey, env)
}

// CPUTimes returns the aggregate times across all CPUs.
func (s *SystemSource) CPUTimes(ctx context.Context) (cpu.TimesStat, error) {
	times, err := cpu.TimesWithContext(s.withEnv(ctx), false)
	if err != nil {
		return cpu.TimesStat{}, err
	}
	if len(times) == 0 {
		return cpu.TimesStat{}, errors.New("no aggregate cpu times reported")
	}
	return times[0], nil
}

// Temperatures returns every readable sensor. Partial results are returned
// together with the error describing the unreadable ones.
func (s *SystemSource) Temperatures(ctx context.Context) ([]sensors.TemperatureStat, error) {
	return sensors.TemperaturesWithContext(s.withEnv(ctx))
}

func (s *SystemSource) VirtualMemory(ctx context.Context) (*mem.VirtualMemoryStat, error) {
	return mem.VirtualMemoryWithContext(s.withEnv(ctx))
}
