package shapes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	databus "github.com/jilio/shapes"
)

// DefaultInterval is the pause between two writes.
const DefaultInterval = time.Second

// ShapeWriter is the part of a bus writer the publish loop needs.
type ShapeWriter interface {
	RegisterInstance(ctx context.Context, shape ShapeTypeExtended) (databus.InstanceHandle, error)
	Write(ctx context.Context, shape ShapeTypeExtended) error
	DisposeInstance(ctx context.Context, handle databus.InstanceHandle) error
}

// NewExtendedWriter publishes ShapeTypeExtended samples as they are.
func NewExtendedWriter(w *databus.Writer[ShapeTypeExtended]) ShapeWriter {
	return w
}

// legacyWriter publishes the ShapeType subset of every sample.
type legacyWriter struct {
	w *databus.Writer[ShapeType]
}

// NewLegacyWriter publishes ShapeType samples, dropping fill kind and angle.
func NewLegacyWriter(w *databus.Writer[ShapeType]) ShapeWriter {
	return &legacyWriter{w: w}
}

func (l *legacyWriter) RegisterInstance(ctx context.Context, shape ShapeTypeExtended) (databus.InstanceHandle, error) {
	return l.w.RegisterInstance(ctx, narrow(shape))
}

func (l *legacyWriter) Write(ctx context.Context, shape ShapeTypeExtended) error {
	return l.w.Write(ctx, narrow(shape))
}

func (l *legacyWriter) DisposeInstance(ctx context.Context, handle databus.InstanceHandle) error {
	return l.w.DisposeInstance(ctx, handle)
}

func narrow(s ShapeTypeExtended) ShapeType {
	return ShapeType{Color: s.Color, X: s.X, Y: s.Y, ShapeSize: s.ShapeSize}
}

// PublisherState is the state of the publish loop.
type PublisherState int

const (
	Running PublisherState = iota
	ShuttingDown
	Done
)

func (s PublisherState) String() string {
	switch s {
	case Running:
		return "Running"
	case ShuttingDown:
		return "ShuttingDown"
	case Done:
		return "Done"
	default:
		return "Unknown"
	}
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithSampleCount stops the loop after n writes. Zero means no limit.
func WithSampleCount(n uint64) PublisherOption {
	return func(p *Publisher) {
		p.sampleCount = n
	}
}

// WithInterval sets the pause between writes.
func WithInterval(d time.Duration) PublisherOption {
	return func(p *Publisher) {
		if d >= 0 {
			p.interval = d
		}
	}
}

// WithSleep replaces time.Sleep.
func WithSleep(sleep func(time.Duration)) PublisherOption {
	return func(p *Publisher) {
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

// WithPublisherLogger sets the diagnostics logger.
func WithPublisherLogger(logger *zap.Logger) PublisherOption {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithOutput sets where the per-write progress line is printed.
func WithOutput(w io.Writer) PublisherOption {
	return func(p *Publisher) {
		p.out = w
	}
}

// Publisher moves one shape along its trajectory and writes every step.
type Publisher struct {
	writer      ShapeWriter
	trajectory  *Trajectory
	sampleCount uint64
	interval    time.Duration
	sleep       func(time.Duration)
	logger      *zap.Logger
	out         io.Writer
	state       PublisherState
}

// NewPublisher creates the publish loop for one color.
func NewPublisher(writer ShapeWriter, color Color, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		writer:     writer,
		trajectory: NewTrajectory(color),
		interval:   DefaultInterval,
		sleep:      time.Sleep,
		logger:     zap.NewNop(),
		out:        io.Discard,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns where the loop is.
func (p *Publisher) State() PublisherState {
	return p.state
}

// Run writes until the sample count is reached or ctx is cancelled, then
// disposes the instance. Cancellation is checked once per iteration; a sleep
// in progress always completes. It returns the number of samples written.
func (p *Publisher) Run(ctx context.Context) (uint64, error) {
	p.state = Running
	color := p.trajectory.Color()

	handle, err := p.writer.RegisterInstance(ctx, p.trajectory.Key())
	if err != nil {
		p.state = Done
		return 0, fmt.Errorf("register %s: %w", color, err)
	}

	// writes and the final dispose must not be aborted half way
	wctx := context.WithoutCancel(ctx)

	var written uint64
	var runErr error
	for p.sampleCount == 0 || written < p.sampleCount {
		if ctx.Err() != nil {
			p.state = ShuttingDown
			p.logger.Debug("shutdown requested", zap.Stringer("color", color), zap.Uint64("written", written))
			break
		}

		shape := p.trajectory.Next()
		fmt.Fprintf(p.out, "Writing a %s square at (%d,%d), count: %d\n", shape.Color, shape.X, shape.Y, written)
		if err := p.writer.Write(wctx, shape); err != nil {
			runErr = fmt.Errorf("write %s: %w", color, err)
			break
		}
		p.logger.Debug("sample written",
			zap.String("color", shape.Color),
			zap.Int("x", shape.X),
			zap.Int("y", shape.Y),
			zap.Uint64("count", written))

		p.sleep(p.interval)
		written++
	}

	if err := p.writer.DisposeInstance(wctx, handle); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("dispose %s: %w", color, err))
	} else {
		p.logger.Info("instance disposed", zap.Stringer("color", color), zap.Uint64("written", written))
	}
	p.state = Done
	return written, runErr
}
