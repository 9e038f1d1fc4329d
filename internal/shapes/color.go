package shapes

import (
	"fmt"
	"strings"
)

// Color is a palette entry. Its value is also the screen row the
// subscriber draws the shape on.
type Color int

// The palette, in row order.
const (
	Purple Color = iota + 1
	Blue
	Red
	Green
	Yellow
	Cyan
	Magenta
	Orange
)

var colorNames = [...]string{
	Purple:  "PURPLE",
	Blue:    "BLUE",
	Red:     "RED",
	Green:   "GREEN",
	Yellow:  "YELLOW",
	Cyan:    "CYAN",
	Magenta: "MAGENTA",
	Orange:  "ORANGE",
}

// Palette returns every color in row order.
func Palette() []Color {
	return []Color{Purple, Blue, Red, Green, Yellow, Cyan, Magenta, Orange}
}

// Valid reports whether c is part of the palette.
func (c Color) Valid() bool {
	return c >= Purple && c <= Orange
}

// Row is the screen row of the color.
func (c Color) Row() int {
	return int(c)
}

func (c Color) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Color(%d)", int(c))
	}
	return colorNames[c]
}

// ParseColor looks a color up by name, ignoring case.
func ParseColor(name string) (Color, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for _, c := range Palette() {
		if colorNames[c] == upper {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown color %q (valid: %s)", name, strings.Join(colorNames[Purple:], ", "))
}

// LookupColor is ParseColor for names coming off the wire, which are
// expected in upper case already.
func LookupColor(name string) (Color, bool) {
	for _, c := range Palette() {
		if colorNames[c] == name {
			return c, true
		}
	}
	return 0, false
}
