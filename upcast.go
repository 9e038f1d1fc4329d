package databus

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// A topic can carry changes written under an older sample type, such as a
// publisher still on the legacy shape without fill or angle. Readers convert
// those payloads to their own type before decoding. Every source type
// converts to exactly one newer type, so a chain never branches.

// upcastFunc rewrites one payload into the next type of its chain
type upcastFunc func(data json.RawMessage) (json.RawMessage, error)

// UpcastErrorHandler is told about a change dropped because its payload
// could not be converted
type UpcastErrorHandler func(typeName string, err error)

type upcastStep struct {
	to      string
	convert upcastFunc
}

type upcastRegistry struct {
	mu      sync.RWMutex
	next    map[string]upcastStep
	onError UpcastErrorHandler
}

func newUpcastRegistry() *upcastRegistry {
	return &upcastRegistry{next: make(map[string]upcastStep)}
}

func (r *upcastRegistry) register(from, to string, convert upcastFunc) error {
	switch {
	case from == "" || to == "":
		return errors.New("databus: upcast types cannot be empty")
	case from == to:
		return errors.New("databus: cannot upcast type to itself")
	case convert == nil:
		return errors.New("databus: upcast function cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if step, ok := r.next[from]; ok {
		return fmt.Errorf("databus: %s already upcasts to %s", from, step.to)
	}
	// The registry is acyclic, so walking from the target terminates
	for t := to; ; {
		if t == from {
			return errors.New("databus: upcast would create circular dependency")
		}
		step, ok := r.next[t]
		if !ok {
			break
		}
		t = step.to
	}

	r.next[from] = upcastStep{to: to, convert: convert}
	return nil
}

// apply walks the chain from typeName to the newest type it reaches
func (r *upcastRegistry) apply(data json.RawMessage, typeName string) (json.RawMessage, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	current := typeName
	for hops := 0; ; hops++ {
		step, ok := r.next[current]
		if !ok {
			return data, current, nil
		}
		if hops > len(r.next) {
			return nil, typeName, fmt.Errorf("databus: upcast loop detected at %s", current)
		}

		converted, err := step.convert(data)
		if err != nil {
			return nil, typeName, fmt.Errorf("databus: upcast %s to %s: %w", current, step.to, err)
		}
		data, current = converted, step.to
	}
}

// reportUpcastError hands a dropped change to the installed handler, or logs
// it when there is none
func (bus *Bus) reportUpcastError(typeName string, err error) {
	if handler := bus.upcastRegistry.onError; handler != nil {
		handler(typeName, err)
		return
	}
	bus.logger.Warn("skipping change that failed to upcast", zap.String("type", typeName), zap.Error(err))
}

// RegisterUpcast lets readers of To receive samples written as From
func RegisterUpcast[From any, To any](bus *Bus, upcast func(From) To) error {
	if bus == nil {
		return errors.New("databus: bus cannot be nil")
	}
	if upcast == nil {
		return errors.New("databus: upcast function cannot be nil")
	}

	return bus.upcastRegistry.register(typeNameOf[From](), typeNameOf[To](), func(data json.RawMessage) (json.RawMessage, error) {
		var from From
		if err := json.Unmarshal(data, &from); err != nil {
			return nil, fmt.Errorf("unmarshal source: %w", err)
		}
		return json.Marshal(upcast(from))
	})
}

// WithUpcastErrorHandler routes changes dropped by a failed upcast to handler
// instead of the bus logger
func WithUpcastErrorHandler(handler UpcastErrorHandler) Option {
	return func(bus *Bus) {
		bus.upcastRegistry.onError = handler
	}
}
