package databus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryStoreAppendRead(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	events, next, err := store.Read(ctx, OffsetOldest, 0)
	if err != nil {
		t.Fatalf("Read on empty store failed: %v", err)
	}
	if len(events) != 0 || next != OffsetOldest {
		t.Fatalf("expected nothing from empty store, got %d events at %q", len(events), next)
	}

	now := time.Now()
	for i := 0; i < 5; i++ {
		offset, err := store.Append(ctx, &Event{
			Type:      "TestEvent",
			Data:      json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)),
			Timestamp: now,
		})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if want := Offset(fmt.Sprint(i + 1)); offset != want {
			t.Errorf("expected offset %q, got %q", want, offset)
		}
	}

	if store.Len() != 5 {
		t.Errorf("expected 5 events, got %d", store.Len())
	}

	events, next, err = store.Read(ctx, OffsetOldest, 2)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(events) != 2 || next != "2" {
		t.Fatalf("expected 2 events up to offset 2, got %d up to %q", len(events), next)
	}

	events, next, err = store.Read(ctx, next, 0)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(events) != 3 || next != "5" {
		t.Fatalf("expected remaining 3 events, got %d up to %q", len(events), next)
	}
	if string(events[0].Data) != `{"n":2}` {
		t.Errorf("unexpected first event data %s", events[0].Data)
	}

	events, again, err := store.Read(ctx, next, 0)
	if err != nil || len(events) != 0 || again != next {
		t.Errorf("expected caught-up read to return nothing, got %d events at %q (%v)", len(events), again, err)
	}
}

func TestMemoryStoreInvalidOffset(t *testing.T) {
	store := NewMemoryStore()
	if _, _, err := store.Read(context.Background(), "not-a-number", 0); err == nil {
		t.Error("expected error for invalid offset")
	}
}

func TestMemoryStoreCancelledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Append(ctx, &Event{Type: "x"}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled from Append, got %v", err)
	}
	if _, _, err := store.Read(ctx, OffsetOldest, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled from Read, got %v", err)
	}
}

func TestMemoryStoreConcurrentAppend(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				store.Append(ctx, &Event{Type: "x", Data: json.RawMessage(`{}`)})
			}
		}()
	}
	wg.Wait()

	events, _, err := store.Read(ctx, OffsetOldest, 0)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(events) != 1000 {
		t.Errorf("expected 1000 events, got %d", len(events))
	}
	seen := make(map[Offset]bool)
	for _, e := range events {
		if seen[e.Offset] {
			t.Fatalf("duplicate offset %q", e.Offset)
		}
		seen[e.Offset] = true
	}
}
