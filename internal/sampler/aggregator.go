package sampler

import (
	"context"
	"sync"
	"time"

	"github.com/skobkin/benchmarco/internal/telemetry"
)

// GPUSource produces the GPU part of a snapshot.
type GPUSource interface {
	Parse(ctx context.Context) (telemetry.GPUMetrics, error)
}

// HostSource produces the CPU and memory parts of a snapshot.
type HostSource interface {
	CPUUsage(ctx context.Context) (float64, error)
	CPUTemperature(ctx context.Context) (float64, error)
	Memory(ctx context.Context) (telemetry.MemoryUsage, error)
}

// Aggregator combines one GPU report and one round of host queries into a
// snapshot. A failing source only fails its own field.
type Aggregator struct {
	gpu  GPUSource
	host HostSource
	now  func() time.Time
}

func NewAggregator(gpu GPUSource, host HostSource) *Aggregator {
	return &Aggregator{gpu: gpu, host: host, now: time.Now}
}

// Sample runs every query concurrently and waits for all of them, so the
// GPU invocation overlaps the CPU measurement window.
func (a *Aggregator) Sample(ctx context.Context) telemetry.Snapshot {
	snap := telemetry.Snapshot{Timestamp: a.now()}

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		snap.GPU = telemetry.From(a.gpu.Parse(ctx))
	}()
	go func() {
		defer wg.Done()
		snap.CPUUsage = telemetry.From(a.host.CPUUsage(ctx))
	}()
	go func() {
		defer wg.Done()
		snap.CPUTemperature = telemetry.From(a.host.CPUTemperature(ctx))
	}()
	go func() {
		defer wg.Done()
		snap.Memory = telemetry.From(a.host.Memory(ctx))
	}()
	wg.Wait()

	return snap
}
