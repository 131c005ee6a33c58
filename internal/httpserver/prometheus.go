package httpserver

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skobkin/benchmarco/internal/telemetry"
)

const metricsNamespace = "benchmarco"

func (s *Server) wsCollectors() []prometheus.Collector {
	counter := func(name, help string, value func() float64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ws",
			Name:      name,
			Help:      help,
		}, value)
	}

	return []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "ws",
			Name:      "active_connections",
			Help:      "Current number of active WebSocket clients.",
		}, func() float64 {
			return float64(s.wsActive.Load())
		}),
		counter("connections_total", "Total WebSocket connections accepted since start.", func() float64 {
			return float64(s.wsTotal.Load())
		}),
		counter("rejected_total", "Total WebSocket connection attempts rejected due to capacity.", func() float64 {
			return float64(s.wsRejected.Load())
		}),
		counter("messages_sent_total", "Total WebSocket messages sent to clients.", func() float64 {
			return float64(s.wsSent.Load())
		}),
		counter("messages_dropped_total", "Total WebSocket messages dropped due to backpressure.", func() float64 {
			return float64(s.wsDropped.Load())
		}),
	}
}

type latestSource interface {
	Latest() (telemetry.Snapshot, bool)
}

type snapshotCollector struct {
	source  latestSource
	metrics []snapshotMetric
	clock   *prometheus.Desc
	fieldUp *prometheus.Desc
}

type snapshotMetric struct {
	desc    *prometheus.Desc
	extract func(snap telemetry.Snapshot) (float64, bool)
}

func newSnapshotCollector(source latestSource) *snapshotCollector {
	desc := func(subsystem, name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, subsystem, name), help, nil, nil)
	}
	gpuText := func(pick func(m telemetry.GPUMetrics) string) func(telemetry.Snapshot) (float64, bool) {
		return func(snap telemetry.Snapshot) (float64, bool) {
			if !snap.GPU.OK() {
				return 0, false
			}
			return parseReportNumber(pick(snap.GPU.Value))
		}
	}
	gpuMiB := func(pick func(m telemetry.GPUMetrics) uint64) func(telemetry.Snapshot) (float64, bool) {
		return func(snap telemetry.Snapshot) (float64, bool) {
			if !snap.GPU.OK() {
				return 0, false
			}
			return float64(pick(snap.GPU.Value)) * 1024 * 1024, true
		}
	}

	c := &snapshotCollector{
		source: source,
		clock: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "gpu", "clock_mhz"),
			"GPU clock per domain in MHz.",
			[]string{"domain", "kind"},
			nil,
		),
		fieldUp: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "field_up"),
			"Whether the field was collected in the latest snapshot.",
			[]string{"field"},
			nil,
		),
	}

	c.metrics = []snapshotMetric{
		{desc("gpu", "utilization_percent", "GPU utilization percentage."),
			gpuText(func(m telemetry.GPUMetrics) string { return m.UsagePct })},
		{desc("gpu", "temperature_celsius", "GPU core temperature in Celsius."),
			gpuText(func(m telemetry.GPUMetrics) string { return m.TemperatureC })},
		{desc("gpu", "fan_percent", "GPU fan speed percentage."),
			gpuText(func(m telemetry.GPUMetrics) string { return m.FanPct })},
		{desc("gpu", "frames_per_second", "Average frames per second reported by the driver."),
			gpuText(func(m telemetry.GPUMetrics) string { return m.FramesPerSecond })},
		{desc("gpu", "memory_used_bytes", "GPU memory in use."),
			gpuMiB(func(m telemetry.GPUMetrics) uint64 { return m.MemUsedMB })},
		{desc("gpu", "memory_total_bytes", "GPU memory capacity."),
			gpuMiB(func(m telemetry.GPUMetrics) uint64 { return m.MemTotalMB })},
		{desc("cpu", "usage_percent", "Host CPU busy percentage over the sampling window."),
			func(snap telemetry.Snapshot) (float64, bool) {
				return snap.CPUUsage.Value, snap.CPUUsage.OK()
			}},
		{desc("cpu", "temperature_celsius", "Host CPU package temperature in Celsius."),
			func(snap telemetry.Snapshot) (float64, bool) {
				return snap.CPUTemperature.Value, snap.CPUTemperature.OK()
			}},
		{desc("memory", "used_bytes", "Host RAM in use."),
			func(snap telemetry.Snapshot) (float64, bool) {
				return float64(snap.Memory.Value.UsedBytes), snap.Memory.OK()
			}},
		{desc("memory", "total_bytes", "Host RAM capacity."),
			func(snap telemetry.Snapshot) (float64, bool) {
				return float64(snap.Memory.Value.TotalBytes), snap.Memory.OK()
			}},
		{desc("", "sample_timestamp_seconds", "Unix timestamp of the latest snapshot."),
			func(snap telemetry.Snapshot) (float64, bool) {
				if snap.Timestamp.IsZero() {
					return 0, false
				}
				return float64(snap.Timestamp.Unix()), true
			}},
		{desc("", "sample_age_seconds", "Seconds elapsed since the latest snapshot was taken."),
			func(snap telemetry.Snapshot) (float64, bool) {
				if snap.Timestamp.IsZero() {
					return 0, false
				}
				return max(time.Since(snap.Timestamp).Seconds(), 0), true
			}},
	}

	return c
}

// parseReportNumber reads numeric report text such as "12" or "45". Values
// the tool prints as "N/A" are skipped.
func parseReportNumber(raw string) (float64, bool) {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

func (c *snapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, metric := range c.metrics {
		ch <- metric.desc
	}
	ch <- c.clock
	ch <- c.fieldUp
}

func (c *snapshotCollector) Collect(ch chan<- prometheus.Metric) {
	snap, ok := c.source.Latest()
	if !ok {
		return
	}

	for _, metric := range c.metrics {
		value, ok := metric.extract(snap)
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(metric.desc, prometheus.GaugeValue, value)
	}

	if snap.GPU.OK() {
		m := snap.GPU.Value
		for _, domain := range []struct {
			name  string
			clock telemetry.ClockReading
		}{
			{"graphics", m.Graphics},
			{"sm", m.SM},
			{"memory", m.Memory},
			{"video", m.Video},
		} {
			ch <- prometheus.MustNewConstMetric(c.clock, prometheus.GaugeValue, float64(domain.clock.Current), domain.name, "current")
			ch <- prometheus.MustNewConstMetric(c.clock, prometheus.GaugeValue, float64(domain.clock.Max), domain.name, "max")
		}
	}

	failures := snap.Failures()
	for _, field := range []string{"gpu", "cpu_usage", "cpu_temperature", "memory"} {
		up := 1.0
		if _, failed := failures[field]; failed {
			up = 0
		}
		ch <- prometheus.MustNewConstMetric(c.fieldUp, prometheus.GaugeValue, up, field)
	}
}
