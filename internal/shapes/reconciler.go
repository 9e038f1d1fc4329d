package shapes

import (
	"fmt"

	"go.uber.org/zap"

	databus "github.com/jilio/shapes"
)

// LifecycleKind classifies a key-only notification.
type LifecycleKind int

const (
	// DisposedNoWriters reports an instance whose writers all went away.
	DisposedNoWriters LifecycleKind = iota + 1
	// StateChanged reports any other instance state transition.
	StateChanged
)

func (k LifecycleKind) String() string {
	switch k {
	case DisposedNoWriters:
		return "disposed_no_writers"
	case StateChanged:
		return "state_changed"
	default:
		return "unknown"
	}
}

// LifecycleEvent is an instance state change ready for the display log.
type LifecycleEvent struct {
	Color string
	Kind  LifecycleKind
	State databus.InstanceState
}

// Message is the log line shown for the event.
func (e LifecycleEvent) Message() string {
	if e.Kind == DisposedNoWriters {
		return fmt.Sprintf("Instance with key %s has dropped from the databus", e.Color)
	}
	return fmt.Sprintf("Instance with key %s changed to %s", e.Color, e.State)
}

// Classify turns the info of a key-only notification into an event.
func Classify(color string, info databus.SampleInfo) LifecycleEvent {
	kind := StateChanged
	if info.InstanceState == databus.InstanceNotAliveNoWriters && info.SampleState == databus.SampleNotRead {
		kind = DisposedNoWriters
	}
	return LifecycleEvent{Color: color, Kind: kind, State: info.InstanceState}
}

// Sink displays shapes and lifecycle messages.
type Sink interface {
	Render(shape ShapeTypeExtended) error
	Log(line string) error
}

// KeyResolver finds the key holder of an instance.
type KeyResolver interface {
	KeyValue(handle databus.InstanceHandle) (ShapeTypeExtended, error)
}

// Reconciler routes a batch of taken samples to a Sink.
type Reconciler struct {
	keys   KeyResolver
	sink   Sink
	logger *zap.Logger
}

// NewReconciler creates a reconciler. A nil logger discards diagnostics.
func NewReconciler(keys KeyResolver, sink Sink, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{keys: keys, sink: sink, logger: logger}
}

// Process renders valid samples and logs lifecycle events for key-only
// ones. Failures are logged per sample and never stop the batch. It returns
// the number of valid samples.
func (r *Reconciler) Process(samples []databus.Sample[ShapeTypeExtended]) int {
	valid := 0
	for _, sample := range samples {
		if sample.Info.Valid {
			valid++
			if err := r.sink.Render(sample.Data); err != nil {
				r.logger.Warn("render failed", zap.String("color", sample.Data.Color), zap.Error(err))
			}
			continue
		}

		key, err := r.keys.KeyValue(sample.Info.InstanceHandle)
		if err != nil {
			r.logger.Warn("key lookup failed", zap.Stringer("handle", sample.Info.InstanceHandle), zap.Error(err))
			continue
		}

		event := Classify(key.Color, sample.Info)
		r.logger.Info("instance lifecycle",
			zap.String("color", event.Color),
			zap.Stringer("kind", event.Kind),
			zap.Stringer("state", event.State))
		if err := r.sink.Log(event.Message()); err != nil {
			r.logger.Warn("log display failed", zap.String("color", event.Color), zap.Error(err))
		}
	}
	return valid
}
