package shapes

import "math"

// Screen limits and wave parameters of the published path.
const (
	Left      = 15
	Top       = 15
	Right     = 248
	Bottom    = 278
	ShapeSize = 30
	Amplitude = 100.0
	Frequency = 0.0475

	// x runs from Left-ShapeSize to Right inclusive
	period = Right - (Left - ShapeSize) + 1
)

// Trajectory moves one shape along a sine wave, one step per tick.
type Trajectory struct {
	color    Color
	fillKind FillKind
	x        int
}

// NewTrajectory starts a path just left of the screen.
func NewTrajectory(color Color) *Trajectory {
	return &Trajectory{
		color:    color,
		fillKind: SolidFill,
		x:        Left - ShapeSize,
	}
}

// Color returns the color of the shape.
func (t *Trajectory) Color() Color {
	return t.color
}

// Next advances one tick and returns the new state.
func (t *Trajectory) Next() ShapeTypeExtended {
	t.x++
	if t.x > Right {
		t.x = Left - ShapeSize
	}
	return t.shapeAt(t.x)
}

// At returns what the n-th call to Next (counting from 0) returns on a
// fresh trajectory.
func (t *Trajectory) At(n int) ShapeTypeExtended {
	offset := (n + 1) % period
	if offset < 0 {
		offset += period
	}
	return t.shapeAt(Left - ShapeSize + offset)
}

// Key returns a sample that only carries the instance key.
func (t *Trajectory) Key() ShapeTypeExtended {
	return ShapeTypeExtended{Color: t.color.String(), ShapeSize: ShapeSize, FillKind: t.fillKind}
}

func (t *Trajectory) shapeAt(x int) ShapeTypeExtended {
	return ShapeTypeExtended{
		Color:     t.color.String(),
		X:         x,
		Y:         YAt(x),
		ShapeSize: ShapeSize,
		FillKind:  t.fillKind,
	}
}

// YAt is the height of the wave at x.
func YAt(x int) int {
	return (Bottom-Top)/2 + int(math.Round(Amplitude*math.Sin(Frequency*float64(x))))
}
