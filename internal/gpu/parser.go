package gpu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/skobkin/benchmarco/internal/telemetry"
)

// Parser turns one run of the diagnostic tool into GPU metrics.
type Parser struct {
	runner Runner
	layout Layout
	logger *slog.Logger
}

// NewParser builds a parser reading runner's output through layout.
func NewParser(runner Runner, layout Layout, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		runner: runner,
		layout: layout,
		logger: logger.With("component", "gpu_parser"),
	}
}

// Parse runs the tool once and decodes its report.
func (p *Parser) Parse(ctx context.Context) (telemetry.GPUMetrics, error) {
	out, err := p.runner.Run(ctx)
	if err != nil {
		return telemetry.GPUMetrics{}, err
	}

	metrics, err := ParseReport(DecodeReport(out), p.layout)
	if err != nil {
		p.logger.Debug("report rejected", "err", err, "bytes", len(out))
		return telemetry.GPUMetrics{}, err
	}
	return metrics, nil
}

// DecodeReport converts raw tool output to text, replacing invalid UTF-8.
func DecodeReport(out []byte) string {
	return strings.ToValidUTF8(string(out), "\uFFFD")
}

// SplitReport splits a report into lines on '\n' only. Carriage returns are
// kept as part of the line.
func SplitReport(text string) []string {
	return strings.Split(text, "\n")
}

// ParseReport decodes an already captured report. Either every field is
// produced or an error is returned; there is no partial record.
func ParseReport(text string, layout Layout) (telemetry.GPUMetrics, error) {
	lines := SplitReport(text)
	if maxLine := layout.MaxLine(); len(lines) <= maxLine {
		return telemetry.GPUMetrics{}, telemetry.NewError(telemetry.ErrUnexpectedFormat, "",
			fmt.Errorf("report has %d lines, layout reads line %d", len(lines), maxLine))
	}

	texts := make(map[string]string)
	nums := make(map[string]uint64)
	for _, field := range layout.Fields() {
		token, err := extractField(lines, field)
		if err != nil {
			return telemetry.GPUMetrics{}, err
		}
		if field.Kind != KindUint {
			texts[field.Name] = token
			continue
		}
		value, err := strconv.ParseUint(token, 10, 64)
		if err != nil {
			return telemetry.GPUMetrics{}, telemetry.NewError(telemetry.ErrParseFailure, field.Name,
				fmt.Errorf("line %d token %q: %w", field.Coord.Line, token, err))
		}
		nums[field.Name] = value
	}

	total, free := nums["mem_total"], nums["mem_free"]
	if free > total {
		return telemetry.GPUMetrics{}, telemetry.NewError(telemetry.ErrUnexpectedFormat, "mem_free",
			fmt.Errorf("free %d MiB exceeds total %d MiB", free, total))
	}

	return telemetry.GPUMetrics{
		UsagePct:        texts["usage"],
		TemperatureC:    texts["temperature"],
		FanPct:          texts["fan"],
		FramesPerSecond: texts["fps"],
		MemUsedMB:       total - free,
		MemFreeMB:       free,
		MemTotalMB:      total,
		Graphics:        telemetry.ClockReading{Current: nums["clock_graphics"], Max: nums["clock_graphics_max"]},
		SM:              telemetry.ClockReading{Current: nums["clock_sm"], Max: nums["clock_sm_max"]},
		Memory:          telemetry.ClockReading{Current: nums["clock_memory"], Max: nums["clock_memory_max"]},
		Video:           telemetry.ClockReading{Current: nums["clock_video"], Max: nums["clock_video_max"]},
		Identity:        ParseIdentity(lines),
	}, nil
}

func extractField(lines []string, field FieldSpec) (string, error) {
	token, err := Extract([]byte(lines[field.Coord.Line]), field.Coord.Offset)
	if err != nil {
		var terr *telemetry.Error
		if errors.As(err, &terr) {
			return "", telemetry.NewError(terr.Kind, field.Name,
				fmt.Errorf("line %d: %w", field.Coord.Line, terr.Err))
		}
		return "", err
	}
	return string(token), nil
}

// FieldResult is the per-field outcome reported by Inspect.
type FieldResult struct {
	Field FieldSpec
	Raw   string
	Token string
	Err   error
}

// Inspect extracts every layout field independently and reports the raw
// line, the token and any error. Lines past the end of the report are
// reported as ErrUnexpectedFormat for that field only.
func Inspect(text string, layout Layout) []FieldResult {
	lines := SplitReport(text)
	fields := layout.Fields()
	results := make([]FieldResult, 0, len(fields))

	for _, field := range fields {
		res := FieldResult{Field: field}
		if field.Coord.Line >= len(lines) {
			res.Err = telemetry.NewError(telemetry.ErrUnexpectedFormat, field.Name,
				fmt.Errorf("line %d beyond report of %d lines", field.Coord.Line, len(lines)))
			results = append(results, res)
			continue
		}

		res.Raw = lines[field.Coord.Line]
		res.Token, res.Err = extractField(lines, field)
		if res.Err == nil && field.Kind == KindUint {
			if _, err := strconv.ParseUint(res.Token, 10, 64); err != nil {
				res.Err = telemetry.NewError(telemetry.ErrParseFailure, field.Name, err)
			}
		}
		results = append(results, res)
	}

	return results
}
