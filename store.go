package databus

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Offset is an opaque position in an event store.
// Stores hand out offsets; callers only pass them back.
type Offset string

// OffsetOldest reads from the beginning of a store.
const OffsetOldest Offset = ""

// Event is a record to be appended to an EventStore.
type Event struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// StoredEvent is an Event as returned by an EventStore, with its offset.
type StoredEvent struct {
	Offset    Offset          `json:"offset"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// EventStore is the transport underneath a Bus. Writers append change
// records; readers tail the log from their last offset. A store shared
// between processes (SQLite file, HTTP stream) makes the bus span them.
type EventStore interface {
	// Append stores an event and returns its assigned offset.
	Append(ctx context.Context, event *Event) (Offset, error)

	// Read returns events strictly after from, at most limit of them
	// (limit <= 0 means no limit), and the offset to resume from.
	Read(ctx context.Context, from Offset, limit int) ([]*StoredEvent, Offset, error)
}

// MemoryStore is an in-memory EventStore. It is safe for concurrent use and
// connects every Bus in the process that shares it.
type MemoryStore struct {
	events []*StoredEvent
	mu     sync.RWMutex
}

// NewMemoryStore creates a new in-memory event store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events: make([]*StoredEvent, 0),
	}
}

// Append implements EventStore
func (m *MemoryStore) Append(ctx context.Context, event *Event) (Offset, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	offset := Offset(strconv.Itoa(len(m.events) + 1))
	m.events = append(m.events, &StoredEvent{
		Offset:    offset,
		Type:      event.Type,
		Data:      event.Data,
		Timestamp: event.Timestamp,
	})
	return offset, nil
}

// Read implements EventStore
func (m *MemoryStore) Read(ctx context.Context, from Offset, limit int) ([]*StoredEvent, Offset, error) {
	if err := ctx.Err(); err != nil {
		return nil, from, err
	}

	position := 0
	if from != OffsetOldest {
		p, err := strconv.Atoi(string(from))
		if err != nil || p < 0 {
			return nil, from, fmt.Errorf("databus: invalid offset %q", from)
		}
		position = p
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if position >= len(m.events) {
		return nil, from, nil
	}

	end := len(m.events)
	if limit > 0 && position+limit < end {
		end = position + limit
	}

	result := make([]*StoredEvent, end-position)
	copy(result, m.events[position:end])
	return result, result[len(result)-1].Offset, nil
}

// Len returns the number of stored events.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}
