package otel

import (
	"context"
	"time"

	databus "github.com/jilio/shapes"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/jilio/shapes"
)

// Observability implements databus.Observability using OpenTelemetry.
// It also satisfies the sqlite store's MetricsHook.
type Observability struct {
	tracer trace.Tracer
	meter  metric.Meter

	// Metrics
	writeCounter   metric.Int64Counter
	writeDuration  metric.Float64Histogram
	writeErrors    metric.Int64Counter
	takeSamples    metric.Int64Counter
	appendDuration metric.Float64Histogram
	readDuration   metric.Float64Histogram
	readRecords    metric.Int64Counter
	storeErrors    metric.Int64Counter
}

// Option configures the Observability
type Option func(*Observability)

// WithTracerProvider sets a custom tracer provider
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(o *Observability) {
		o.tracer = provider.Tracer(instrumentationName)
	}
}

// WithMeterProvider sets a custom meter provider
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(o *Observability) {
		o.meter = provider.Meter(instrumentationName)
	}
}

// New creates a new OpenTelemetry observability implementation
func New(opts ...Option) (*Observability, error) {
	obs := &Observability{
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}

	for _, opt := range opts {
		opt(obs)
	}

	var err error

	obs.writeCounter, err = obs.meter.Int64Counter(
		"databus.write.count",
		metric.WithDescription("Number of changes written"),
		metric.WithUnit("{change}"),
	)
	if err != nil {
		return nil, err
	}

	obs.writeDuration, err = obs.meter.Float64Histogram(
		"databus.write.duration",
		metric.WithDescription("Change write duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	obs.writeErrors, err = obs.meter.Int64Counter(
		"databus.write.errors",
		metric.WithDescription("Number of failed writes"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	obs.takeSamples, err = obs.meter.Int64Counter(
		"databus.take.samples",
		metric.WithDescription("Number of samples taken by readers"),
		metric.WithUnit("{sample}"),
	)
	if err != nil {
		return nil, err
	}

	obs.appendDuration, err = obs.meter.Float64Histogram(
		"databus.store.append.duration",
		metric.WithDescription("Store append duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	obs.readDuration, err = obs.meter.Float64Histogram(
		"databus.store.read.duration",
		metric.WithDescription("Store read duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	obs.readRecords, err = obs.meter.Int64Counter(
		"databus.store.read.records",
		metric.WithDescription("Number of records read from the store"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	obs.storeErrors, err = obs.meter.Int64Counter(
		"databus.store.errors",
		metric.WithDescription("Number of failed store operations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return obs, nil
}

type writeAttrsKey struct{}

// OnWriteStart is called before a change is appended
func (o *Observability) OnWriteStart(ctx context.Context, topic string, op databus.Operation) context.Context {
	attrs := []attribute.KeyValue{
		attribute.String("databus.topic", topic),
		attribute.String("databus.operation", string(op)),
	}

	ctx, _ = o.tracer.Start(ctx, "databus."+string(op)+": "+topic,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attrs...),
	)

	o.writeCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	return context.WithValue(ctx, writeAttrsKey{}, attrs)
}

// OnWriteComplete is called when the append finished, with or without error
func (o *Observability) OnWriteComplete(ctx context.Context, duration time.Duration, err error) {
	span := trace.SpanFromContext(ctx)
	attrs, _ := ctx.Value(writeAttrsKey{}).([]attribute.KeyValue)

	o.writeDuration.Record(ctx, milliseconds(duration), metric.WithAttributes(attrs...))

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		o.writeErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

// OnTake is called for every non-empty take
func (o *Observability) OnTake(ctx context.Context, topic string, valid, keyOnly int) {
	if valid > 0 {
		o.takeSamples.Add(ctx, int64(valid), metric.WithAttributes(
			attribute.String("databus.topic", topic),
			attribute.Bool("databus.valid", true),
		))
	}
	if keyOnly > 0 {
		o.takeSamples.Add(ctx, int64(keyOnly), metric.WithAttributes(
			attribute.String("databus.topic", topic),
			attribute.Bool("databus.valid", false),
		))
	}

	trace.SpanFromContext(ctx).AddEvent("databus.take", trace.WithAttributes(
		attribute.String("databus.topic", topic),
		attribute.Int("databus.valid", valid),
		attribute.Int("databus.key_only", keyOnly),
	))
}

// OnAppend records a store append
func (o *Observability) OnAppend(duration time.Duration, err error) {
	ctx := context.Background()
	o.appendDuration.Record(ctx, milliseconds(duration))
	if err != nil {
		o.storeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("databus.store.op", "append")))
	}
}

// OnRead records a store read
func (o *Observability) OnRead(duration time.Duration, count int, err error) {
	ctx := context.Background()
	o.readDuration.Record(ctx, milliseconds(duration))
	if count > 0 {
		o.readRecords.Add(ctx, int64(count))
	}
	if err != nil {
		o.storeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("databus.store.op", "read")))
	}
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Ensure Observability implements databus.Observability
var _ databus.Observability = (*Observability)(nil)
