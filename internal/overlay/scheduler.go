// Package overlay drives the on-screen telemetry panel: a scheduler that
// classifies input and redraw events, and a terminal host that renders the
// panel with bubbletea.
package overlay

import (
	"github.com/skobkin/benchmarco/internal/telemetry"
)

// DefaultExitKey closes the overlay.
const DefaultExitKey = "esc"

// Event is something the host's event loop delivered.
type Event interface {
	event()
}

// PointerButton identifies a pointer button.
type PointerButton int

const (
	ButtonLeft PointerButton = iota + 1
	ButtonRight
	ButtonMiddle
)

type (
	// CloseRequested asks the overlay to close.
	CloseRequested struct{}
	// KeyPressed carries the key name as the host reports it ("esc", "q").
	KeyPressed struct{ Key string }
	// PointerPressed is a button press on the panel.
	PointerPressed struct{ Button PointerButton }
	// Resized reports the new surface size.
	Resized struct{ Width, Height int }
	// RedrawRequested asks for a new frame.
	RedrawRequested struct{}
	// EventsCleared marks the end of one batch of events.
	EventsCleared struct{}
	// Other is any event the scheduler ignores.
	Other struct{ Name string }
)

func (CloseRequested) event()  {}
func (KeyPressed) event()      {}
func (PointerPressed) event()  {}
func (Resized) event()         {}
func (RedrawRequested) event() {}
func (EventsCleared) event()   {}
func (Other) event()           {}

// Host is the surface the scheduler drives.
type Host interface {
	Exit()
	Minimize()
	Resize(width, height int)
	RequestRedraw()
	Present(text string)
}

// SnapshotSource returns the latest published snapshot without blocking.
type SnapshotSource interface {
	Latest() (telemetry.Snapshot, bool)
}

// Scheduler maps events to host actions. Redraws read whatever snapshot was
// published last and never wait for sampling.
type Scheduler struct {
	host    Host
	source  SnapshotSource
	exitKey string
}

func NewScheduler(host Host, source SnapshotSource, exitKey string) *Scheduler {
	if exitKey == "" {
		exitKey = DefaultExitKey
	}
	return &Scheduler{host: host, source: source, exitKey: exitKey}
}

// Handle processes one event and reports whether the loop must stop.
func (s *Scheduler) Handle(ev Event) bool {
	switch ev := ev.(type) {
	case CloseRequested:
		s.host.Exit()
		return true
	case KeyPressed:
		if ev.Key == s.exitKey {
			s.host.Exit()
			return true
		}
	case PointerPressed:
		switch ev.Button {
		case ButtonLeft:
			s.host.Minimize()
		case ButtonRight:
			s.host.Exit()
			return true
		}
	case Resized:
		s.host.Resize(ev.Width, ev.Height)
	case RedrawRequested:
		s.host.Present(telemetry.Format(s.snapshot()))
	case EventsCleared:
		s.host.RequestRedraw()
	}
	return false
}

func (s *Scheduler) snapshot() telemetry.Snapshot {
	if s.source == nil {
		return telemetry.Pending()
	}
	if snap, ok := s.source.Latest(); ok {
		return snap
	}
	return telemetry.Pending()
}
