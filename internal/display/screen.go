// Package display draws received shapes and lifecycle messages on a
// terminal: one fixed row per palette color and a short scrolling log below.
package display

import (
	"bufio"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"

	"github.com/jilio/shapes/internal/shapes"
)

// Layout, in zero-based screen coordinates.
const (
	NameColumn  = 0
	ShapeColumn = 10
	LogRow      = 20
)

// palette holds the foreground of each shape color.
var palette = map[shapes.Color]lipgloss.Color{
	shapes.Purple:  lipgloss.Color("#800080"),
	shapes.Blue:    lipgloss.Color("4"),
	shapes.Red:     lipgloss.Color("1"),
	shapes.Green:   lipgloss.Color("2"),
	shapes.Yellow:  lipgloss.Color("3"),
	shapes.Cyan:    lipgloss.Color("6"),
	shapes.Magenta: lipgloss.Color("5"),
	shapes.Orange:  lipgloss.Color("#FFA500"),
}

// ScreenOption configures a Screen.
type ScreenOption func(*screenConfig)

type screenConfig struct {
	profile    *termenv.Profile
	logEntries int
}

// WithColorProfile forces a color profile instead of detecting it from the
// output.
func WithColorProfile(p termenv.Profile) ScreenOption {
	return func(c *screenConfig) {
		c.profile = &p
	}
}

// WithLogEntries changes how many log lines are kept.
func WithLogEntries(n int) ScreenOption {
	return func(c *screenConfig) {
		c.logEntries = n
	}
}

// LogEntriesFor returns how many log lines fit below LogRow on a terminal
// of the given height, between one and LogCapacity.
func LogEntriesFor(height int) int {
	return max(1, min(height-LogRow, LogCapacity))
}

// Screen renders shapes to a terminal. It implements shapes.Sink.
type Screen struct {
	mu        sync.Mutex
	out       *bufio.Writer
	renderer  *lipgloss.Renderer
	styles    map[shapes.Color]lipgloss.Style
	log       *LogBuffer
	hasColors bool
}

var _ shapes.Sink = (*Screen)(nil)

// NewScreen creates a screen drawing to w.
func NewScreen(w io.Writer, opts ...ScreenOption) *Screen {
	cfg := screenConfig{logEntries: LogCapacity}
	for _, opt := range opts {
		opt(&cfg)
	}

	renderer := lipgloss.NewRenderer(w)
	if cfg.profile != nil {
		renderer.SetColorProfile(*cfg.profile)
	}

	s := &Screen{
		out:       bufio.NewWriter(w),
		renderer:  renderer,
		styles:    make(map[shapes.Color]lipgloss.Style, len(palette)),
		log:       NewLogBuffer(cfg.logEntries),
		hasColors: renderer.ColorProfile() != termenv.Ascii,
	}
	for color, fg := range palette {
		style := renderer.NewStyle()
		if s.hasColors {
			style = style.Foreground(fg).Background(lipgloss.Color("0"))
			if color == shapes.Yellow || color == shapes.Orange {
				style = style.Bold(true)
			}
		}
		s.styles[color] = style
	}
	return s
}

// HasColors reports whether the output supports colors.
func (s *Screen) HasColors() bool {
	return s.hasColors
}

// Render draws the shape on the row of its color. Shapes of colors outside
// the palette are ignored.
func (s *Screen) Render(shape shapes.ShapeTypeExtended) error {
	color, ok := shapes.LookupColor(shape.Color)
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row := color.Row()
	s.moveTo(row, NameColumn)
	s.out.WriteString(ansi.EraseEntireLine)
	s.out.WriteString(s.style(color).Render(shape.Color))
	s.moveTo(row, ShapeColumn)
	s.out.WriteString(shape.String())
	return s.out.Flush()
}

// Log adds a line to the log region and redraws it.
func (s *Screen) Log(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Push(line)
	for i, l := range s.log.Lines() {
		s.moveTo(LogRow+i, 0)
		s.out.WriteString(ansi.EraseEntireLine)
		s.out.WriteString(l)
	}
	return s.out.Flush()
}

// LogLines returns the lines currently in the log region.
func (s *Screen) LogLines() []string {
	return s.log.Lines()
}

// Clear blanks the whole screen.
func (s *Screen) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.out.WriteString(ansi.EraseEntireScreen)
	s.moveTo(0, 0)
	return s.out.Flush()
}

// moveTo positions the cursor, must be called with s.mu held
func (s *Screen) moveTo(row, col int) {
	s.out.WriteString(ansi.CursorPosition(col+1, row+1))
}

func (s *Screen) style(c shapes.Color) lipgloss.Style {
	return s.styles[c]
}
