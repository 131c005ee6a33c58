package telemetry

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// gpuSectionLines is the number of lines below the GPU header. A failed GPU
// reading is padded to the same height so the text region keeps its shape.
const gpuSectionLines = 10

// Format renders a snapshot as the fixed-layout overlay text: GPU, CPU and RAM
// sections separated by blank lines. Failed fields are replaced inline by
// "Error: <cause>".
func Format(s Snapshot) string {
	var b strings.Builder

	b.WriteString("GPU\n")
	writeGPU(&b, s.GPU)

	b.WriteString("\nCPU\n")
	b.WriteString("usg  ")
	if s.CPUUsage.OK() {
		fmt.Fprintf(&b, "%.0f%%", s.CPUUsage.Value)
	} else {
		writeError(&b, s.CPUUsage.Err)
	}
	b.WriteString("\ntmp  ")
	if s.CPUTemperature.OK() {
		fmt.Fprintf(&b, "%.0f°C", s.CPUTemperature.Value)
	} else {
		writeError(&b, s.CPUTemperature.Err)
	}

	b.WriteString("\n\nRAM\n")
	b.WriteString("usg  ")
	if s.Memory.OK() {
		b.WriteString(humanize.Bytes(s.Memory.Value.UsedBytes))
		b.WriteByte('/')
		b.WriteString(humanize.Bytes(s.Memory.Value.TotalBytes))
	} else {
		writeError(&b, s.Memory.Err)
	}

	return b.String()
}

func writeGPU(b *strings.Builder, r Reading[GPUMetrics]) {
	if !r.OK() {
		writeError(b, r.Err)
		b.WriteString(strings.Repeat("\n", gpuSectionLines))
		return
	}

	m := r.Value
	fmt.Fprintf(b, "usg  %s%%\n", m.UsagePct)
	fmt.Fprintf(b, "tmp  %s°C\n", m.TemperatureC)
	fmt.Fprintf(b, "fps  %s\n", m.FramesPerSecond)
	fmt.Fprintf(b, "fan  %s%%\n", m.FanPct)
	fmt.Fprintf(b, "mem  %d%%  %d/%d\n", m.MemHeadroom(), m.MemUsedMB, m.MemTotalMB)
	b.WriteString("clock\n")
	writeClock(b, "gpc", m.Graphics)
	writeClock(b, "sm ", m.SM)
	writeClock(b, "mem", m.Memory)
	writeClock(b, "vdo", m.Video)
}

func writeClock(b *strings.Builder, label string, c ClockReading) {
	fmt.Fprintf(b, "  %s  %2d%%  %d/%d\n", label, c.Headroom(), c.Current, c.Max)
}

func writeError(b *strings.Builder, err error) {
	b.WriteString("Error: ")
	if err == nil {
		b.WriteString("unknown")
		return
	}
	b.WriteString(err.Error())
}
