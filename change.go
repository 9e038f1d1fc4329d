package databus

import (
	"encoding/json"
	"time"
)

// Operation is the kind of change a writer announces for an instance.
type Operation string

const (
	// OperationWrite carries a new value for an instance.
	OperationWrite Operation = "write"
	// OperationDispose marks an instance as deleted by its writer.
	OperationDispose Operation = "dispose"
	// OperationUnregister withdraws a writer from an instance.
	OperationUnregister Operation = "unregister"
)

// Headers contains metadata for change records.
type Headers struct {
	Operation Operation `json:"operation"`
	// Timestamp is the RFC 3339 source timestamp set by the writer.
	Timestamp string `json:"timestamp,omitempty"`
}

// Change is the payload of every Event a Writer appends. Value holds the
// full sample for writes and the registered key holder for dispose and
// unregister, so a reader that never saw the instance can still name it.
type Change struct {
	Topic   string          `json:"topic"`
	Key     string          `json:"key"`
	Writer  string          `json:"writer"`
	Value   json.RawMessage `json:"value,omitempty"`
	Headers Headers         `json:"headers"`
}

// sourceTime parses the change timestamp, falling back to fallback.
func (c *Change) sourceTime(fallback time.Time) time.Time {
	if c.Headers.Timestamp == "" {
		return fallback
	}
	t, err := time.Parse(time.RFC3339Nano, c.Headers.Timestamp)
	if err != nil {
		return fallback
	}
	return t
}
