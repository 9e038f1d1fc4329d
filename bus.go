package databus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"time"

	"go.uber.org/zap"
)

// Keyed is implemented by every type published on a Bus. The key names the
// instance a sample belongs to; samples with equal keys update the same
// instance.
type Keyed interface {
	InstanceKey() string
}

// TypeNamer lets a type choose its wire type name instead of the
// reflect-based package-qualified name.
type TypeNamer interface {
	EventTypeName() string
}

// Sentinel errors
var (
	ErrWriterClosed          = errors.New("databus: writer closed")
	ErrInstanceNotRegistered = errors.New("databus: instance not registered")
	ErrUnknownInstance       = errors.New("databus: unknown instance")
)

const defaultPollInterval = 50 * time.Millisecond

// Option configures a Bus
type Option func(*Bus)

// Bus connects the writers and readers of one domain. Everything a writer
// does is appended to the bus EventStore; readers tail the same store.
type Bus struct {
	domainID       uint32
	store          EventStore
	logger         *zap.Logger
	observability  Observability
	upcastRegistry *upcastRegistry
	now            func() time.Time
	pollInterval   time.Duration
}

// New creates a new Bus. Without WithEventStore the bus keeps its log in
// memory and only connects topics within this Bus.
func New(opts ...Option) *Bus {
	bus := &Bus{
		logger:         zap.NewNop(),
		upcastRegistry: newUpcastRegistry(),
		now:            time.Now,
		pollInterval:   defaultPollInterval,
	}

	for _, opt := range opts {
		opt(bus)
	}

	if bus.store == nil {
		bus.store = NewMemoryStore()
	}

	return bus
}

// WithDomainID sets the domain the bus belongs to
func WithDomainID(id uint32) Option {
	return func(bus *Bus) {
		bus.domainID = id
	}
}

// WithEventStore sets the store the bus appends to and reads from
func WithEventStore(store EventStore) Option {
	return func(bus *Bus) {
		bus.store = store
	}
}

// WithLogger sets the logger used for bus diagnostics
func WithLogger(logger *zap.Logger) Option {
	return func(bus *Bus) {
		if logger != nil {
			bus.logger = logger
		}
	}
}

// WithObservability installs hooks called around writes and takes
func WithObservability(obs Observability) Option {
	return func(bus *Bus) {
		bus.observability = obs
	}
}

// WithClock replaces time.Now for source timestamps and liveliness checks
func WithClock(now func() time.Time) Option {
	return func(bus *Bus) {
		if now != nil {
			bus.now = now
		}
	}
}

// WithPollInterval sets how often Reader.Wait polls the store
func WithPollInterval(d time.Duration) Option {
	return func(bus *Bus) {
		if d > 0 {
			bus.pollInterval = d
		}
	}
}

// DomainID returns the domain the bus belongs to
func (bus *Bus) DomainID() uint32 {
	return bus.domainID
}

// Store returns the event store of the bus
func (bus *Bus) Store() EventStore {
	return bus.store
}

// Close closes the underlying store if it holds resources
func (bus *Bus) Close() error {
	if closer, ok := bus.store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// append encodes a change and appends it to the store
func (bus *Bus) append(ctx context.Context, typeName string, change *Change) (err error) {
	if bus.observability != nil {
		ctx = bus.observability.OnWriteStart(ctx, change.Topic, change.Headers.Operation)
		start := time.Now()
		defer func() {
			bus.observability.OnWriteComplete(ctx, time.Since(start), err)
		}()
	}

	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("databus: marshal change: %w", err)
	}

	offset, err := bus.store.Append(ctx, &Event{
		Type:      typeName,
		Data:      data,
		Timestamp: bus.now(),
	})
	if err != nil {
		return fmt.Errorf("databus: append %s %s/%s: %w", change.Headers.Operation, change.Topic, change.Key, err)
	}

	bus.logger.Debug("appended change",
		zap.String("topic", change.Topic),
		zap.String("key", change.Key),
		zap.String("operation", string(change.Headers.Operation)),
		zap.String("offset", string(offset)),
	)
	return nil
}

// typeNameOf returns the wire type name for T
func typeNameOf[T any]() string {
	eventType := reflect.TypeOf((*T)(nil)).Elem()
	if eventType.Kind() != reflect.Pointer {
		var zero T
		if namer, ok := any(zero).(TypeNamer); ok {
			return namer.EventTypeName()
		}
	}

	if pkg := eventType.PkgPath(); pkg != "" {
		return pkg + "/" + eventType.Name()
	}
	return eventType.String()
}
