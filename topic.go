package databus

import (
	"errors"
)

// Topic is a named, typed channel on a Bus. Topics with the same name but
// different types can coexist; readers only decode samples of their own type
// (after upcasting).
type Topic[T Keyed] struct {
	bus      *Bus
	name     string
	typeName string
}

// NewTopic creates a topic on the bus
func NewTopic[T Keyed](bus *Bus, name string) (*Topic[T], error) {
	if bus == nil {
		return nil, errors.New("databus: bus cannot be nil")
	}
	if name == "" {
		return nil, errors.New("databus: topic name cannot be empty")
	}

	return &Topic[T]{
		bus:      bus,
		name:     name,
		typeName: typeNameOf[T](),
	}, nil
}

// Name returns the topic name
func (t *Topic[T]) Name() string {
	return t.name
}

// TypeName returns the wire type name of the topic's samples
func (t *Topic[T]) TypeName() string {
	return t.typeName
}

// Bus returns the bus the topic lives on
func (t *Topic[T]) Bus() *Bus {
	return t.bus
}
