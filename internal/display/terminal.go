package display

import (
	"errors"
	"io"
	"os"

	"github.com/charmbracelet/x/ansi"
	"github.com/charmbracelet/x/term"
)

// Terminal puts the controlling terminal into raw full-screen mode and
// restores it on Close. When stdin or stdout is not a terminal the
// corresponding setup is skipped.
type Terminal struct {
	in         *os.File
	out        *os.File
	state      *term.State
	fullScreen bool
}

// OpenTerminal prepares in and out for the display.
func OpenTerminal(in, out *os.File) (*Terminal, error) {
	t := &Terminal{in: in, out: out}

	if in != nil && term.IsTerminal(in.Fd()) {
		state, err := term.MakeRaw(in.Fd())
		if err != nil {
			return nil, err
		}
		t.state = state
	}

	if out != nil && term.IsTerminal(out.Fd()) {
		t.fullScreen = true
		if _, err := io.WriteString(out, ansi.SetAltScreenSaveCursorMode+ansi.HideCursor+ansi.EraseEntireScreen); err != nil {
			t.Close()
			return nil, err
		}
	}
	return t, nil
}

// Raw reports whether stdin is in raw mode, in which case Ctrl-C arrives as
// input instead of a signal.
func (t *Terminal) Raw() bool {
	return t.state != nil
}

// Size returns the width and height of the output terminal.
func (t *Terminal) Size() (int, int, error) {
	if !t.fullScreen {
		return 0, 0, errors.New("display: output is not a terminal")
	}
	return term.GetSize(t.out.Fd())
}

// Close leaves the alternate screen and restores the input mode.
func (t *Terminal) Close() error {
	var errs []error
	if t.fullScreen {
		_, err := io.WriteString(t.out, ansi.ShowCursor+ansi.ResetAltScreenSaveCursorMode)
		errs = append(errs, err)
		t.fullScreen = false
	}
	if t.state != nil {
		errs = append(errs, term.Restore(t.in.Fd(), t.state))
		t.state = nil
	}
	return errors.Join(errs...)
}

// WatchKeys reads r until Ctrl-C, q or Q is pressed, then calls quit. It
// returns when r fails or ends without calling quit.
func WatchKeys(r io.Reader, quit func()) {
	buf := make([]byte, 32)
	for {
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			if b == 0x03 || b == 'q' || b == 'Q' {
				quit()
				return
			}
		}
		if err != nil {
			return
		}
	}
}
