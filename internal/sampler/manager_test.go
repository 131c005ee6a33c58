package sampler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skobkin/benchmarco/internal/telemetry"
)

// countingSampler publishes its pass number as the CPU usage value.
type countingSampler struct {
	passes   atomic.Int64
	inFlight atomic.Int64
	maxSeen  atomic.Int64
	delay    time.Duration
}

func (c *countingSampler) Sample(ctx context.Context) telemetry.Snapshot {
	current := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		seen := c.maxSeen.Load()
		if current <= seen || c.maxSeen.CompareAndSwap(seen, current) {
			break
		}
	}

	if c.delay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(c.delay):
		}
	}

	n := c.passes.Add(1)
	return telemetry.Snapshot{
		Timestamp:      time.Now(),
		GPU:            telemetry.Failed[telemetry.GPUMetrics](telemetry.ErrCommandUnavailable),
		CPUUsage:       telemetry.Ok(float64(n)),
		CPUTemperature: telemetry.Ok(40.0),
		Memory:         telemetry.Ok(telemetry.MemoryUsage{UsedBytes: 1, TotalBytes: 2}),
	}
}

func newTestManager(t *testing.T, interval time.Duration, sampler Snapshotter) *Manager {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager, err := NewManager(interval, sampler, logger)
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	t.Cleanup(func() { _ = manager.Close() })
	return manager
}

func startManager(t *testing.T, manager *Manager) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = manager.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestNewManagerValidates(t *testing.T) {
	t.Parallel()

	if _, err := NewManager(0, &countingSampler{}, nil); err == nil {
		t.Fatalf("expected error for zero interval")
	}
	if _, err := NewManager(time.Second, nil, nil); err == nil {
		t.Fatalf("expected error for missing sampler")
	}
}

func TestManagerSubscribeAndReady(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t, 15*time.Millisecond, &countingSampler{})
	if manager.Ready() {
		t.Fatalf("manager ready before first pass")
	}
	if _, ok := manager.Latest(); ok {
		t.Fatalf("Latest returned a snapshot before first pass")
	}

	startManager(t, manager)
	waitFor(t, 500*time.Millisecond, manager.Ready)

	ch, unsubscribe := manager.Subscribe()
	defer unsubscribe()

	first := awaitSnapshot(t, ch)
	next := awaitSnapshot(t, ch)
	if next.CPUUsage.Value <= first.CPUUsage.Value {
		t.Fatalf("expected newer pass, got %v after %v", next.CPUUsage.Value, first.CPUUsage.Value)
	}

	latest, ok := manager.Latest()
	if !ok || latest.CPUUsage.Value < next.CPUUsage.Value {
		t.Fatalf("Latest did not return expected snapshot: %+v", latest)
	}
	if manager.Subscribers() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", manager.Subscribers())
	}
}

func TestManagerDropsOldestOnBackpressure(t *testing.T) {
	t.Parallel()

	sampler := &countingSampler{}
	manager := newTestManager(t, 10*time.Millisecond, sampler)
	startManager(t, manager)
	waitFor(t, 500*time.Millisecond, manager.Ready)

	ch, unsubscribe := manager.Subscribe()
	defer unsubscribe()

	// Leave the channel untouched across several passes.
	before := sampler.passes.Load()
	waitFor(t, time.Second, func() bool { return sampler.passes.Load() >= before+3 })

	got := awaitSnapshot(t, ch)
	if float64(before) >= got.CPUUsage.Value {
		t.Fatalf("expected a snapshot newer than pass %d, got %v", before, got.CPUUsage.Value)
	}
}

func TestManagerNeverOverlapsPasses(t *testing.T) {
	t.Parallel()

	sampler := &countingSampler{delay: 30 * time.Millisecond}
	manager := newTestManager(t, 5*time.Millisecond, sampler)
	startManager(t, manager)

	waitFor(t, time.Second, func() bool { return sampler.passes.Load() >= 4 })
	if sampler.maxSeen.Load() != 1 {
		t.Fatalf("expected at most one pass in flight, saw %d", sampler.maxSeen.Load())
	}
}

func TestManagerLatestIsWholeSnapshot(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t, time.Millisecond, &countingSampler{})
	startManager(t, manager)
	waitFor(t, 500*time.Millisecond, manager.Ready)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				snap, ok := manager.Latest()
				if !ok {
					continue
				}
				if !snap.Memory.OK() || snap.Memory.Value.TotalBytes != 2 || snap.Timestamp.IsZero() {
					t.Errorf("torn snapshot: %+v", snap)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestManagerCloseEndsSubscriptions(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t, 10*time.Millisecond, &countingSampler{})
	cancel := startManager(t, manager)
	waitFor(t, 500*time.Millisecond, manager.Ready)

	ch, unsubscribe := manager.Subscribe()
	defer unsubscribe()

	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				after, _ := manager.Subscribe()
				if _, open := <-after; open {
					t.Fatalf("subscribe after close returned an open channel")
				}
				return
			}
		case <-deadline:
			t.Fatal("subscription not closed after shutdown")
		}
	}
}

func TestManagerSampleOnce(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t, time.Hour, &countingSampler{})
	snap := manager.SampleOnce(context.Background())
	if snap.CPUUsage.Value != 1 {
		t.Fatalf("unexpected first pass %v", snap.CPUUsage.Value)
	}
	if latest, ok := manager.Latest(); !ok || latest.CPUUsage.Value != 1 {
		t.Fatalf("SampleOnce did not publish: %+v", latest)
	}
}

func awaitSnapshot(t *testing.T, ch <-chan telemetry.Snapshot) telemetry.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatal("subscription channel closed unexpectedly")
		}
		return snap
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for snapshot")
		return telemetry.Snapshot{}
	}
}

func waitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
