package databus

import (
	"time"

	"github.com/google/uuid"
)

// InstanceHandle identifies an instance of a topic. It is derived from the
// topic name and the instance key, so every process computes the same handle.
type InstanceHandle uuid.UUID

// NilHandle is the zero InstanceHandle.
var NilHandle InstanceHandle

// instanceNamespace seeds the name-based handles.
var instanceNamespace = uuid.MustParse("6c0f5e9a-3d3b-4b6e-9a57-2f1d8e4b7c10")

// handleFor returns the handle of the instance with the given key.
func handleFor(topic, key string) InstanceHandle {
	return InstanceHandle(uuid.NewSHA1(instanceNamespace, []byte(topic+"/"+key)))
}

func (h InstanceHandle) String() string {
	return uuid.UUID(h).String()
}

// IsNil reports whether h is the zero handle.
func (h InstanceHandle) IsNil() bool {
	return h == NilHandle
}

// InstanceState is the liveliness of an instance as seen by a reader.
type InstanceState int

const (
	// InstanceAlive means at least one writer is live and it is not disposed.
	InstanceAlive InstanceState = iota + 1
	// InstanceNotAliveDisposed means a writer disposed the instance.
	InstanceNotAliveDisposed
	// InstanceNotAliveNoWriters means every writer went away without disposing.
	InstanceNotAliveNoWriters
)

func (s InstanceState) String() string {
	switch s {
	case InstanceAlive:
		return "ALIVE"
	case InstanceNotAliveDisposed:
		return "NOT_ALIVE_DISPOSED"
	case InstanceNotAliveNoWriters:
		return "NOT_ALIVE_NO_WRITERS"
	default:
		return "UNKNOWN"
	}
}

// SampleState records whether a sample was already returned by Read.
type SampleState int

const (
	// SampleNotRead is the state of a sample never returned before.
	SampleNotRead SampleState = iota + 1
	// SampleRead is the state of a sample already returned by Read.
	SampleRead
)

func (s SampleState) String() string {
	switch s {
	case SampleNotRead:
		return "NOT_READ"
	case SampleRead:
		return "READ"
	default:
		return "UNKNOWN"
	}
}

// ViewState tells whether this is the first sample of an instance
// generation the reader has seen.
type ViewState int

const (
	// ViewNew is set on samples of an instance generation not yet accessed.
	ViewNew ViewState = iota + 1
	// ViewNotNew is set once the generation has been accessed.
	ViewNotNew
)

func (s ViewState) String() string {
	switch s {
	case ViewNew:
		return "NEW"
	case ViewNotNew:
		return "NOT_NEW"
	default:
		return "UNKNOWN"
	}
}

// SampleInfo describes a sample. Valid is false for key-only notifications
// that only report an instance state change.
type SampleInfo struct {
	Valid             bool
	InstanceHandle    InstanceHandle
	InstanceState     InstanceState
	SampleState       SampleState
	ViewState         ViewState
	SourceTimestamp   time.Time
	PublicationHandle string
}

// Sample pairs data with its info. Data is meaningful only when Info.Valid.
type Sample[T any] struct {
	Data T
	Info SampleInfo
}

// instance is the reader-side record of one keyed instance.
type instance[T any] struct {
	handle    InstanceHandle
	key       string
	keyHolder T
	state     InstanceState
	view      ViewState
	writers   map[string]time.Time // writer GUID -> last heard, reader clock
}

func newInstance[T any](handle InstanceHandle, key string, keyHolder T) *instance[T] {
	return &instance[T]{
		handle:    handle,
		key:       key,
		keyHolder: keyHolder,
		view:      ViewNew,
		writers:   make(map[string]time.Time),
	}
}
