package gpu

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Coord locates one field in the report: a 0-based line index and the
// distance from the end of that line to the field's right edge.
type Coord struct {
	Line   int `yaml:"line"`
	Offset int `yaml:"offset"`
}

// Layout maps every GPU metric to its position in the `nvidia-smi -q`
// report. The report has no schema, so this table is tied to the tool
// version it was taken from.
type Layout struct {
	Fan         Coord `yaml:"fan"`
	MemTotal    Coord `yaml:"mem_total"`
	MemFree     Coord `yaml:"mem_free"`
	Usage       Coord `yaml:"usage"`
	FPS         Coord `yaml:"fps"`
	Temperature Coord `yaml:"temperature"`

	ClockGraphics Coord `yaml:"clock_graphics"`
	ClockSM       Coord `yaml:"clock_sm"`
	ClockMemory   Coord `yaml:"clock_memory"`
	ClockVideo    Coord `yaml:"clock_video"`

	ClockGraphicsMax Coord `yaml:"clock_graphics_max"`
	ClockSMMax       Coord `yaml:"clock_sm_max"`
	ClockMemoryMax   Coord `yaml:"clock_memory_max"`
	ClockVideoMax    Coord `yaml:"clock_video_max"`
}

// FieldKind tells how an extracted token is decoded.
type FieldKind int

const (
	KindText FieldKind = iota
	KindUint
)

func (k FieldKind) String() string {
	if k == KindUint {
		return "uint"
	}
	return "text"
}

// FieldSpec is one named entry of a Layout.
type FieldSpec struct {
	Name  string
	Kind  FieldKind
	Coord Coord
}

// DefaultLayout returns the table matching the report format the overlay
// was built against.
func DefaultLayout() Layout {
	return Layout{
		Fan:         Coord{Line: 66, Offset: 2},
		MemTotal:    Coord{Line: 79, Offset: 4},
		MemFree:     Coord{Line: 82, Offset: 4},
		Usage:       Coord{Line: 89, Offset: 2},
		FPS:         Coord{Line: 95, Offset: 0},
		Temperature: Coord{Line: 121, Offset: 2},

		ClockGraphics: Coord{Line: 137, Offset: 4},
		ClockSM:       Coord{Line: 138, Offset: 4},
		ClockMemory:   Coord{Line: 139, Offset: 4},
		ClockVideo:    Coord{Line: 140, Offset: 4},

		ClockGraphicsMax: Coord{Line: 148, Offset: 4},
		ClockSMMax:       Coord{Line: 149, Offset: 4},
		ClockMemoryMax:   Coord{Line: 150, Offset: 4},
		ClockVideoMax:    Coord{Line: 151, Offset: 4},
	}
}

// Fields lists the layout entries in report order.
func (l Layout) Fields() []FieldSpec {
	return []FieldSpec{
		{Name: "fan", Kind: KindText, Coord: l.Fan},
		{Name: "mem_total", Kind: KindUint, Coord: l.MemTotal},
		{Name: "mem_free", Kind: KindUint, Coord: l.MemFree},
		{Name: "usage", Kind: KindText, Coord: l.Usage},
		{Name: "fps", Kind: KindText, Coord: l.FPS},
		{Name: "temperature", Kind: KindText, Coord: l.Temperature},
		{Name: "clock_graphics", Kind: KindUint, Coord: l.ClockGraphics},
		{Name: "clock_sm", Kind: KindUint, Coord: l.ClockSM},
		{Name: "clock_memory", Kind: KindUint, Coord: l.ClockMemory},
		{Name: "clock_video", Kind: KindUint, Coord: l.ClockVideo},
		{Name: "clock_graphics_max", Kind: KindUint, Coord: l.ClockGraphicsMax},
		{Name: "clock_sm_max", Kind: KindUint, Coord: l.ClockSMMax},
		{Name: "clock_memory_max", Kind: KindUint, Coord: l.ClockMemoryMax},
		{Name: "clock_video_max", Kind: KindUint, Coord: l.ClockVideoMax},
	}
}

// MaxLine returns the highest line index the layout reads.
func (l Layout) MaxLine() int {
	maxLine := 0
	for _, field := range l.Fields() {
		if field.Coord.Line > maxLine {
			maxLine = field.Coord.Line
		}
	}
	return maxLine
}

// Validate rejects negative coordinates.
func (l Layout) Validate() error {
	var errs []error
	for _, field := range l.Fields() {
		if field.Coord.Line < 0 {
			errs = append(errs, fmt.Errorf("%s: line must be >= 0", field.Name))
		}
		if field.Coord.Offset < 0 {
			errs = append(errs, fmt.Errorf("%s: offset must be >= 0", field.Name))
		}
	}
	return errors.Join(errs...)
}

// LoadLayout reads a YAML layout file. Keys absent from the file keep their
// default coordinates; unknown keys are rejected.
func LoadLayout(path string) (Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, fmt.Errorf("read layout file: %w", err)
	}
	layout, err := DecodeLayout(bytes.NewReader(data))
	if err != nil {
		return Layout{}, fmt.Errorf("layout file %s: %w", path, err)
	}
	return layout, nil
}

// DecodeLayout decodes a YAML layout over the defaults.
func DecodeLayout(r io.Reader) (Layout, error) {
	layout := DefaultLayout()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&layout); err != nil && !errors.Is(err, io.EOF) {
		return Layout{}, fmt.Errorf("decode layout: %w", err)
	}

	if err := layout.Validate(); err != nil {
		return Layout{}, err
	}
	return layout, nil
}
