package databus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// registration is what a writer remembers about an instance it registered.
type registration struct {
	key    string
	holder json.RawMessage
}

// Writer publishes samples of one topic. Each writer has its own GUID;
// readers track which writers are live on every instance.
type Writer[T Keyed] struct {
	topic      *Topic[T]
	guid       string
	registered map[InstanceHandle]registration
	closed     bool
	mu         sync.Mutex
}

// NewWriter creates a writer for the topic
func NewWriter[T Keyed](topic *Topic[T]) *Writer[T] {
	return &Writer[T]{
		topic:      topic,
		guid:       uuid.NewString(),
		registered: make(map[InstanceHandle]registration),
	}
}

// GUID returns the writer's unique identifier
func (w *Writer[T]) GUID() string {
	return w.guid
}

// Topic returns the topic the writer publishes on
func (w *Writer[T]) Topic() *Topic[T] {
	return w.topic
}

// RegisterInstance tells the bus this writer will update the instance
// identified by sample's key. Only the key of sample matters.
func (w *Writer[T]) RegisterInstance(ctx context.Context, sample T) (InstanceHandle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return NilHandle, ErrWriterClosed
	}
	return w.register(sample)
}

// LookupInstance returns the handle for sample's key, or NilHandle when this
// writer has not registered it
func (w *Writer[T]) LookupInstance(sample T) InstanceHandle {
	w.mu.Lock()
	defer w.mu.Unlock()

	handle := handleFor(w.topic.name, sample.InstanceKey())
	if _, ok := w.registered[handle]; !ok {
		return NilHandle
	}
	return handle
}

// Write publishes a new value for the sample's instance, registering the
// instance first if needed
func (w *Writer[T]) Write(ctx context.Context, sample T) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	handle, err := w.register(sample)
	if err != nil {
		return err
	}

	return w.emit(ctx, OperationWrite, w.registered[handle])
}

// DisposeInstance announces that the instance no longer exists. Readers see
// a key-only notification with instance state NOT_ALIVE_DISPOSED.
func (w *Writer[T]) DisposeInstance(ctx context.Context, handle InstanceHandle) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	reg, ok := w.registered[handle]
	if !ok {
		return fmt.Errorf("dispose %s: %w", handle, ErrInstanceNotRegistered)
	}
	return w.emit(ctx, OperationDispose, reg)
}

// UnregisterInstance withdraws this writer from the instance. When the last
// writer of a live instance unregisters, readers see NOT_ALIVE_NO_WRITERS.
func (w *Writer[T]) UnregisterInstance(ctx context.Context, handle InstanceHandle) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}
	return w.unregister(ctx, handle)
}

// Close unregisters every instance still registered. The writer cannot be
// used afterwards.
func (w *Writer[T]) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	var firstErr error
	for handle := range w.registered {
		if err := w.unregister(ctx, handle); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// register must be called with w.mu held
func (w *Writer[T]) register(sample T) (InstanceHandle, error) {
	key := sample.InstanceKey()
	handle := handleFor(w.topic.name, key)

	holder, err := json.Marshal(sample)
	if err != nil {
		return NilHandle, fmt.Errorf("databus: marshal %s: %w", w.topic.typeName, err)
	}

	w.registered[handle] = registration{key: key, holder: holder}
	return handle, nil
}

// unregister must be called with w.mu held
func (w *Writer[T]) unregister(ctx context.Context, handle InstanceHandle) error {
	reg, ok := w.registered[handle]
	if !ok {
		return fmt.Errorf("unregister %s: %w", handle, ErrInstanceNotRegistered)
	}

	if err := w.emit(ctx, OperationUnregister, reg); err != nil {
		return err
	}
	delete(w.registered, handle)
	return nil
}

// emit appends one change record for the registration
func (w *Writer[T]) emit(ctx context.Context, op Operation, reg registration) error {
	bus := w.topic.bus
	change := &Change{
		Topic:  w.topic.name,
		Key:    reg.key,
		Writer: w.guid,
		Value:  reg.holder,
		Headers: Headers{
			Operation: op,
			Timestamp: bus.now().UTC().Format(time.RFC3339Nano),
		},
	}
	return bus.append(ctx, w.topic.typeName, change)
}
