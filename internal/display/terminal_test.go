package display

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchKeys(t *testing.T) {
	tests := []struct {
		name  string
		input string
		quit  bool
	}{
		{"q", "abcq", true},
		{"ctrl-c", "x\x03", true},
		{"upper q", "Q", true},
		{"eof", "hello", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			WatchKeys(strings.NewReader(tt.input), func() { called = true })
			assert.Equal(t, tt.quit, called)
		})
	}
}

func TestWatchKeysStopsAtQuit(t *testing.T) {
	r := strings.NewReader("q-rest")
	calls := 0
	WatchKeys(io.LimitReader(r, 1), func() { calls++ })
	assert.Equal(t, 1, calls)
}

func TestOpenTerminalNotATTY(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()

	term, err := OpenTerminal(f, f)
	require.NoError(t, err)
	assert.False(t, term.Raw())

	_, _, err = term.Size()
	assert.Error(t, err)
	require.NoError(t, term.Close())

	info, err := f.Stat()
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}
