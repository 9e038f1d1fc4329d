package databus

import (
	"context"
	"time"
)

// Observability receives callbacks from the bus. Implementations must be
// safe for concurrent use; see the otel package for an OpenTelemetry one.
type Observability interface {
	// OnWriteStart is called before a change is appended. The returned
	// context is passed to OnWriteComplete.
	OnWriteStart(ctx context.Context, topic string, op Operation) context.Context

	// OnWriteComplete is called after the append finished, with or without error.
	OnWriteComplete(ctx context.Context, duration time.Duration, err error)

	// OnTake is called for every non-empty Take or Read.
	OnTake(ctx context.Context, topic string, valid, keyOnly int)
}
