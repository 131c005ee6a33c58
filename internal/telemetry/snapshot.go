// Package telemetry defines the snapshot data model shared by the GPU report
// parser, the host sampler and the render surfaces.
package telemetry

import (
	"encoding/json"
	"time"
)

// Reading is a value that may have failed to be collected.
type Reading[T any] struct {
	Value T
	Err   error
}

// Ok wraps a successful value.
func Ok[T any](value T) Reading[T] {
	return Reading[T]{Value: value}
}

// Failed wraps a failure.
func Failed[T any](err error) Reading[T] {
	return Reading[T]{Err: err}
}

// From builds a Reading from a (value, error) pair.
func From[T any](value T, err error) Reading[T] {
	if err != nil {
		return Failed[T](err)
	}
	return Ok(value)
}

// OK reports whether the value was collected.
func (r Reading[T]) OK() bool {
	return r.Err == nil
}

type readingJSON[T any] struct {
	Value *T     `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}

// MarshalJSON encodes successful readings as {"value": ...} and failures as
// {"error": "..."}.
func (r Reading[T]) MarshalJSON() ([]byte, error) {
	if r.Err != nil {
		return json.Marshal(readingJSON[T]{Error: r.Err.Error()})
	}
	value := r.Value
	return json.Marshal(readingJSON[T]{Value: &value})
}

// Snapshot is the result of one sampling pass. Fields fail independently.
type Snapshot struct {
	Timestamp      time.Time            `json:"ts"`
	GPU            Reading[GPUMetrics]  `json:"gpu"`
	CPUUsage       Reading[float64]     `json:"cpu_usage_pct"`
	CPUTemperature Reading[float64]     `json:"cpu_temperature_c"`
	Memory         Reading[MemoryUsage] `json:"memory"`
}

// Pending is the snapshot shown before the first sampling pass completes.
func Pending() Snapshot {
	return Snapshot{
		GPU:            Failed[GPUMetrics](ErrNotSampled),
		CPUUsage:       Failed[float64](ErrNotSampled),
		CPUTemperature: Failed[float64](ErrNotSampled),
		Memory:         Failed[MemoryUsage](ErrNotSampled),
	}
}

// Failures returns the failed field names mapped to their errors.
func (s Snapshot) Failures() map[string]error {
	out := make(map[string]error, 4)
	if s.GPU.Err != nil {
		out["gpu"] = s.GPU.Err
	}
	if s.CPUUsage.Err != nil {
		out["cpu_usage"] = s.CPUUsage.Err
	}
	if s.CPUTemperature.Err != nil {
		out["cpu_temperature"] = s.CPUTemperature.Err
	}
	if s.Memory.Err != nil {
		out["memory"] = s.Memory.Err
	}
	return out
}

// GPUMetrics is the structured content of one diagnostic report. The
// percentage and temperature fields are kept as the tool printed them.
type GPUMetrics struct {
	UsagePct        string       `json:"usage_pct"`
	TemperatureC    string       `json:"temperature_c"`
	FanPct          string       `json:"fan_pct"`
	FramesPerSecond string       `json:"fps"`
	MemUsedMB       uint64       `json:"mem_used_mb"`
	MemFreeMB       uint64       `json:"mem_free_mb"`
	MemTotalMB      uint64       `json:"mem_total_mb"`
	Graphics        ClockReading `json:"clock_graphics"`
	SM              ClockReading `json:"clock_sm"`
	Memory          ClockReading `json:"clock_memory"`
	Video           ClockReading `json:"clock_video"`
	Identity        Identity     `json:"identity"`
}

// MemHeadroom returns total/used, the ratio the overlay prints next to the
// memory line. Zero when nothing is used.
func (m GPUMetrics) MemHeadroom() uint64 {
	if m.MemUsedMB == 0 {
		return 0
	}
	return m.MemTotalMB / m.MemUsedMB
}

// ClockReading pairs the current and maximum clock of one domain in MHz.
type ClockReading struct {
	Current uint64 `json:"current_mhz"`
	Max     uint64 `json:"max_mhz"`
}

// Headroom returns max/current. Zero when the domain is idle at 0 MHz.
func (c ClockReading) Headroom() uint64 {
	if c.Current == 0 {
		return 0
	}
	return c.Max / c.Current
}

// Identity describes the device the report was produced for.
type Identity struct {
	ProductName   string `json:"product_name,omitempty"`
	DriverVersion string `json:"driver_version,omitempty"`
	BusID         string `json:"bus_id,omitempty"`
	PCIDeviceID   string `json:"pci_device_id,omitempty"`
	UUID          string `json:"uuid,omitempty"`
}

// MemoryUsage is host RAM occupancy.
type MemoryUsage struct {
	UsedBytes  uint64 `json:"used_bytes"`
	TotalBytes uint64 `json:"total_bytes"`
}
