package overlay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// DefaultFrameInterval is the redraw cadence of the terminal panel.
const DefaultFrameInterval = 100 * time.Millisecond

// Options configures the terminal host.
type Options struct {
	FrameInterval time.Duration
	ExitKey       string
	Input         io.Reader
	Output        io.Writer
	Logger        *slog.Logger
}

type frameMsg time.Time

var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Foreground(lipgloss.Color("15")).
			Padding(0, 1)
	stubStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Foreground(lipgloss.Color("7")).
			Padding(0, 1)
)

// Model is the bubbletea program state. It implements Host for the
// scheduler; host calls made during one Update are turned into commands.
type Model struct {
	scheduler *Scheduler
	interval  time.Duration
	logger    *slog.Logger

	width     int
	height    int
	text      string
	minimized bool
	quitting  bool
	frames    int

	pending []tea.Cmd
}

// NewModel builds the terminal panel reading snapshots from source.
func NewModel(source SnapshotSource, opts Options) *Model {
	interval := opts.FrameInterval
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	m := &Model{
		interval: interval,
		logger:   logger.With("component", "overlay"),
	}
	m.scheduler = NewScheduler(m, source, opts.ExitKey)
	return m
}

func (m *Model) Init() tea.Cmd {
	return func() tea.Msg { return frameMsg(time.Now()) }
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	m.pending = nil

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.scheduler.Handle(CloseRequested{})
		} else {
			m.scheduler.Handle(KeyPressed{Key: msg.String()})
		}
	case tea.MouseMsg:
		m.handleMouse(msg)
	case tea.WindowSizeMsg:
		m.scheduler.Handle(Resized{Width: msg.Width, Height: msg.Height})
	case frameMsg:
		if !m.scheduler.Handle(RedrawRequested{}) {
			m.scheduler.Handle(EventsCleared{})
		}
	default:
		m.scheduler.Handle(Other{})
	}

	return m, tea.Batch(m.pending...)
}

func (m *Model) handleMouse(msg tea.MouseMsg) {
	if msg.Action != tea.MouseActionPress {
		m.scheduler.Handle(Other{Name: "mouse"})
		return
	}

	var button PointerButton
	switch msg.Button {
	case tea.MouseButtonLeft:
		button = ButtonLeft
	case tea.MouseButtonRight:
		button = ButtonRight
	case tea.MouseButtonMiddle:
		button = ButtonMiddle
	default:
		m.scheduler.Handle(Other{Name: "mouse"})
		return
	}

	if m.minimized && button == ButtonLeft {
		m.minimized = false
		m.logger.Debug("panel restored")
		return
	}
	m.scheduler.Handle(PointerPressed{Button: button})
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var block string
	if m.minimized {
		block = stubStyle.Render("benchmarco")
	} else {
		block = panelStyle.Render(m.text)
	}

	if m.width <= 0 || m.height <= 0 {
		return block
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Right, lipgloss.Top, block)
}

func (m *Model) Exit() {
	m.quitting = true
	m.pending = append(m.pending, tea.Quit)
}

func (m *Model) Minimize() {
	m.minimized = true
	m.logger.Debug("panel minimized")
}

func (m *Model) Resize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) RequestRedraw() {
	m.pending = append(m.pending, tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return frameMsg(t)
	}))
}

func (m *Model) Present(text string) {
	m.text = text
	m.frames++
}

// Run shows the panel until the user closes it or ctx is canceled.
func Run(ctx context.Context, source SnapshotSource, opts Options) error {
	model := NewModel(source, opts)

	programOpts := []tea.ProgramOption{
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	}
	if opts.Input != nil {
		programOpts = append(programOpts, tea.WithInput(opts.Input))
	}
	if opts.Output != nil {
		programOpts = append(programOpts, tea.WithOutput(opts.Output))
	}

	model.logger.Info("overlay started", "frame_interval", model.interval)
	_, err := tea.NewProgram(model, programOpts...).Run()
	model.logger.Info("overlay stopped", "frames", model.frames)
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
