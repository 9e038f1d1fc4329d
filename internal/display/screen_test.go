package display

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jilio/shapes/internal/shapes"
)

func TestScreenRendersOnColorRow(t *testing.T) {
	var buf bytes.Buffer
	s := NewScreen(&buf, WithColorProfile(termenv.Ascii))
	assert.False(t, s.HasColors())

	shape := shapes.ShapeTypeExtended{Color: "RED", X: -14, Y: 69, ShapeSize: 30}
	require.NoError(t, s.Render(shape))

	out := buf.String()
	assert.Equal(t,
		ansi.CursorPosition(1, 4)+ansi.EraseEntireLine+"RED"+ansi.CursorPosition(11, 4)+shape.String(),
		out)
}

func TestScreenIgnoresUnknownColor(t *testing.T) {
	var buf bytes.Buffer
	s := NewScreen(&buf, WithColorProfile(termenv.Ascii))
	require.NoError(t, s.Render(shapes.ShapeTypeExtended{Color: "BROWN"}))
	require.NoError(t, s.Render(shapes.ShapeTypeExtended{Color: "red"}))
	assert.Zero(t, buf.Len())
}

func TestScreenColors(t *testing.T) {
	var buf bytes.Buffer
	s := NewScreen(&buf, WithColorProfile(termenv.ANSI256))
	require.True(t, s.HasColors())

	assert.True(t, s.style(shapes.Yellow).GetBold())
	assert.True(t, s.style(shapes.Orange).GetBold())
	assert.False(t, s.style(shapes.Red).GetBold())

	require.NoError(t, s.Render(shapes.ShapeTypeExtended{Color: "ORANGE", ShapeSize: 30}))
	out := buf.String()
	assert.Contains(t, out, "\x1b[")
	assert.Contains(t, ansi.Strip(out), "ORANGE")
	assert.Contains(t, ansi.Strip(out), "[color: ORANGE, x: 0, y: 0, shapesize: 30, fillKind: SOLID_FILL, angle: 0]")
}

func TestScreenNoColorsNoBold(t *testing.T) {
	s := NewScreen(&bytes.Buffer{}, WithColorProfile(termenv.Ascii))
	assert.False(t, s.style(shapes.Yellow).GetBold())
}

func TestScreenLog(t *testing.T) {
	var buf bytes.Buffer
	s := NewScreen(&buf, WithColorProfile(termenv.Ascii))

	for _, color := range []string{"RED", "BLUE", "GREEN", "CYAN", "PURPLE", "ORANGE"} {
		require.NoError(t, s.Log("Instance with key "+color+" has dropped from the databus"))
	}

	lines := s.LogLines()
	require.Len(t, lines, 5)
	assert.True(t, strings.Contains(lines[0], "BLUE"))
	assert.True(t, strings.Contains(lines[4], "ORANGE"))

	// the last redraw starts at the log row and covers all five lines
	out := buf.String()
	last := out[strings.LastIndex(out, ansi.CursorPosition(1, LogRow+1)):]
	for i, line := range lines {
		assert.Contains(t, last, ansi.CursorPosition(1, LogRow+1+i)+ansi.EraseEntireLine+line)
	}
	assert.NotContains(t, last, "key RED")
}

func TestScreenShortLog(t *testing.T) {
	var buf bytes.Buffer
	s := NewScreen(&buf, WithColorProfile(termenv.Ascii), WithLogEntries(LogEntriesFor(22)))

	for _, color := range []string{"RED", "BLUE", "GREEN"} {
		require.NoError(t, s.Log("Instance with key "+color+" changed to NOT_ALIVE_DISPOSED"))
	}

	lines := s.LogLines()
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "BLUE")
	assert.NotContains(t, buf.String(), ansi.CursorPosition(1, LogRow+3))
}

func TestLogEntriesFor(t *testing.T) {
	tests := []struct {
		height int
		want   int
	}{
		{height: 24, want: 4},
		{height: 25, want: LogCapacity},
		{height: 60, want: LogCapacity},
		{height: 21, want: 1},
		{height: 10, want: 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LogEntriesFor(tt.height), "height %d", tt.height)
	}
}

func TestScreenClear(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewScreen(&buf, WithColorProfile(termenv.Ascii)).Clear())
	assert.Equal(t, ansi.EraseEntireScreen+ansi.CursorPosition(1, 1), buf.String())
}

type brokenWriter struct{}

func (brokenWriter) Write(p []byte) (int, error) {
	return 0, errors.New("terminal gone")
}

func TestScreenWriteError(t *testing.T) {
	s := NewScreen(brokenWriter{})
	assert.Error(t, s.Render(shapes.ShapeTypeExtended{Color: "RED"}))
	assert.Error(t, s.Log("line"))
}
