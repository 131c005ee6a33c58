package sampler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skobkin/benchmarco/internal/telemetry"
)

// Snapshotter performs one sampling pass.
type Snapshotter interface {
	Sample(ctx context.Context) telemetry.Snapshot
}

// Manager runs sampling passes in the background, publishes the latest
// snapshot to a single-slot cell and fan-outs updates to subscribers.
type Manager struct {
	interval time.Duration
	sampler  Snapshotter
	logger   *slog.Logger

	latest atomic.Pointer[telemetry.Snapshot]

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	failing     map[string]bool
	closed      bool
	closeOnce   sync.Once
}

// NewManager builds a Manager sampling every interval.
func NewManager(interval time.Duration, sampler Snapshotter, logger *slog.Logger) (*Manager, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be > 0")
	}
	if sampler == nil {
		return nil, fmt.Errorf("sampler is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		interval:    interval,
		sampler:     sampler,
		logger:      logger.With("component", "sampler_manager"),
		subscribers: make(map[*subscriber]struct{}),
		failing:     make(map[string]bool),
	}, nil
}

// Run samples until ctx is canceled. The first pass runs immediately; later
// passes follow the ticker, so a slow pass drops ticks instead of queueing
// them. Only one pass is ever in flight.
func (m *Manager) Run(ctx context.Context) error {
	m.logger.Info("sampler started", "interval", m.interval)

	m.pass(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("sampler stopping", "reason", ctx.Err())
			return m.Close()
		case <-ticker.C:
			m.pass(ctx)
		}
	}
}

// SampleOnce runs a single pass and publishes it.
func (m *Manager) SampleOnce(ctx context.Context) telemetry.Snapshot {
	snap := m.sampler.Sample(ctx)
	m.publish(snap)
	return snap
}

func (m *Manager) pass(ctx context.Context) {
	started := time.Now()
	snap := m.sampler.Sample(ctx)
	if ctx.Err() != nil {
		// Interrupted passes carry cancellation errors, not telemetry.
		return
	}
	m.logFailures(snap)
	m.logger.Debug("sample published", "took", time.Since(started))
	m.publish(snap)
}

// Latest returns the most recently published snapshot without blocking.
func (m *Manager) Latest() (telemetry.Snapshot, bool) {
	snap := m.latest.Load()
	if snap == nil {
		return telemetry.Snapshot{}, false
	}
	return *snap, true
}

// Ready reports whether at least one snapshot has been published.
func (m *Manager) Ready() bool {
	return m.latest.Load() != nil
}

// Interval returns the sampling cadence.
func (m *Manager) Interval() time.Duration {
	return m.interval
}

// Subscribe registers a listener. The current snapshot, if any, is
// delivered immediately. A slow listener only ever sees the newest snapshot.
func (m *Manager) Subscribe() (<-chan telemetry.Snapshot, func()) {
	sub := newSubscriber()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		sub.close()
		return sub.channel(), func() {}
	}
	m.subscribers[sub] = struct{}{}
	if snap, ok := m.Latest(); ok {
		sub.send(snap)
	}
	m.mu.Unlock()

	return sub.channel(), func() { m.removeSubscriber(sub) }
}

// Subscribers returns the number of active listeners.
func (m *Manager) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subscribers)
}

func (m *Manager) publish(snap telemetry.Snapshot) {
	m.latest.Store(&snap)

	m.mu.Lock()
	targets := make([]*subscriber, 0, len(m.subscribers))
	for sub := range m.subscribers {
		targets = append(targets, sub)
	}
	m.mu.Unlock()

	for _, sub := range targets {
		sub.send(snap)
	}
}

func (m *Manager) logFailures(snap telemetry.Snapshot) {
	failures := snap.Failures()

	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(failures))
	for name := range failures {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		err := failures[name]
		if !m.failing[name] {
			m.logger.Warn("telemetry field failing", "field", name, "err", err)
		} else {
			m.logger.Debug("telemetry field still failing", "field", name, "err", err)
		}
	}

	for name := range m.failing {
		if _, still := failures[name]; !still {
			m.logger.Info("telemetry field recovered", "field", name)
		}
	}

	m.failing = make(map[string]bool, len(failures))
	for name := range failures {
		m.failing[name] = true
	}
}

func (m *Manager) removeSubscriber(sub *subscriber) {
	m.mu.Lock()
	delete(m.subscribers, sub)
	m.mu.Unlock()
	sub.close()
}

// Close detaches every subscriber. Safe for repeated use.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		subs := m.subscribers
		m.subscribers = make(map[*subscriber]struct{})
		m.mu.Unlock()

		for sub := range subs {
			sub.close()
		}
	})
	return nil
}

type subscriber struct {
	ch     chan telemetry.Snapshot
	mu     sync.Mutex
	closed bool
}

func newSubscriber() *subscriber {
	return &subscriber{
		ch: make(chan telemetry.Snapshot, 1),
	}
}

func (s *subscriber) channel() <-chan telemetry.Snapshot {
	return s.ch
}

func (s *subscriber) send(snap telemetry.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- snap:
		return
	default:
		// Drop oldest to make room for the new snapshot.
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- snap:
		default:
		}
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	close(s.ch)
	s.closed = true
}
