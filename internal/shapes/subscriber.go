package shapes

import (
	"context"
	"time"

	"go.uber.org/zap"

	databus "github.com/jilio/shapes"
)

// DefaultWaitTimeout bounds each wait for new samples.
const DefaultWaitTimeout = time.Second

// SampleSource is the part of a bus reader the receive loop needs.
type SampleSource interface {
	KeyResolver
	Wait(ctx context.Context, timeout time.Duration) (bool, error)
	Take(ctx context.Context) ([]databus.Sample[ShapeTypeExtended], error)
}

// Subscriber waits for samples and hands every batch to a Reconciler.
type Subscriber struct {
	source      SampleSource
	reconciler  *Reconciler
	sampleCount uint64
	waitTimeout time.Duration
	logger      *zap.Logger
}

// NewSubscriber creates the receive loop. sampleCount 0 means no limit.
func NewSubscriber(source SampleSource, sink Sink, sampleCount uint64, logger *zap.Logger) *Subscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber{
		source:      source,
		reconciler:  NewReconciler(source, sink, logger),
		sampleCount: sampleCount,
		waitTimeout: DefaultWaitTimeout,
		logger:      logger,
	}
}

// SetWaitTimeout changes how long one wait blocks.
func (s *Subscriber) SetWaitTimeout(d time.Duration) {
	if d > 0 {
		s.waitTimeout = d
	}
}

// Run loops until enough valid samples were read or ctx is cancelled.
// Cancellation is checked once per iteration, so it takes effect after at
// most one wait timeout. It returns the number of valid samples read.
func (s *Subscriber) Run(ctx context.Context) (uint64, error) {
	wctx := context.WithoutCancel(ctx)

	var read uint64
	for s.sampleCount == 0 || read < s.sampleCount {
		if ctx.Err() != nil {
			s.logger.Debug("shutdown requested", zap.Uint64("read", read))
			break
		}

		ready, err := s.source.Wait(wctx, s.waitTimeout)
		if err != nil {
			return read, err
		}
		if !ready {
			continue
		}

		samples, err := s.source.Take(wctx)
		if err != nil {
			return read, err
		}
		read += uint64(s.reconciler.Process(samples))
	}
	return read, nil
}
