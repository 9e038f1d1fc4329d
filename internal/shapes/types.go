package shapes

import (
	"fmt"
	"strconv"

	databus "github.com/jilio/shapes"
)

// TopicName is the topic every shape in this demo is published on.
const TopicName = "Square"

// FillKind is how a shape is filled when drawn.
type FillKind int

const (
	SolidFill FillKind = iota
	TransparentFill
	HorizontalHatchFill
	VerticalHatchFill
)

var fillKindNames = [...]string{
	SolidFill:           "SOLID_FILL",
	TransparentFill:     "TRANSPARENT_FILL",
	HorizontalHatchFill: "HORIZONTAL_HATCH_FILL",
	VerticalHatchFill:   "VERTICAL_HATCH_FILL",
}

func (k FillKind) String() string {
	if k < 0 || int(k) >= len(fillKindNames) {
		return "FillKind(" + strconv.Itoa(int(k)) + ")"
	}
	return fillKindNames[k]
}

// MarshalText encodes the fill kind by name.
func (k FillKind) MarshalText() ([]byte, error) {
	if k < 0 || int(k) >= len(fillKindNames) {
		return nil, fmt.Errorf("invalid fill kind %d", int(k))
	}
	return []byte(fillKindNames[k]), nil
}

// UnmarshalText decodes a fill kind name.
func (k *FillKind) UnmarshalText(text []byte) error {
	for i, name := range fillKindNames {
		if name == string(text) {
			*k = FillKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown fill kind %q", text)
}

// ShapeTypeExtended is one shape update. Color is the instance key.
type ShapeTypeExtended struct {
	Color     string   `json:"color"`
	X         int      `json:"x"`
	Y         int      `json:"y"`
	ShapeSize int      `json:"shapesize"`
	FillKind  FillKind `json:"fillKind"`
	Angle     float32  `json:"angle"`
}

// InstanceKey implements databus.Keyed.
func (s ShapeTypeExtended) InstanceKey() string { return s.Color }

// EventTypeName implements databus.TypeNamer.
func (ShapeTypeExtended) EventTypeName() string { return "ShapeTypeExtended" }

func (s ShapeTypeExtended) String() string {
	return fmt.Sprintf("[color: %s, x: %d, y: %d, shapesize: %d, fillKind: %s, angle: %g]",
		s.Color, s.X, s.Y, s.ShapeSize, s.FillKind, s.Angle)
}

// ShapeType is the shape without fill and rotation, as published by older
// applications.
type ShapeType struct {
	Color     string `json:"color"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	ShapeSize int    `json:"shapesize"`
}

// InstanceKey implements databus.Keyed.
func (s ShapeType) InstanceKey() string { return s.Color }

// EventTypeName implements databus.TypeNamer.
func (ShapeType) EventTypeName() string { return "ShapeType" }

// Extend fills in the extended fields with their defaults.
func (s ShapeType) Extend() ShapeTypeExtended {
	return ShapeTypeExtended{
		Color:     s.Color,
		X:         s.X,
		Y:         s.Y,
		ShapeSize: s.ShapeSize,
		FillKind:  SolidFill,
	}
}

// RegisterLegacyUpcast lets ShapeTypeExtended readers receive ShapeType
// samples.
func RegisterLegacyUpcast(bus *databus.Bus) error {
	return databus.RegisterUpcast(bus, ShapeType.Extend)
}
