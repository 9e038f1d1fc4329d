package databus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Durability selects what a new reader receives.
type Durability int

const (
	// Volatile readers only receive changes appended after they were created.
	Volatile Durability = iota
	// TransientLocal readers also receive the history already in the store,
	// bounded by the history depth per instance.
	TransientLocal
)

func (d Durability) String() string {
	switch d {
	case Volatile:
		return "volatile"
	case TransientLocal:
		return "transient-local"
	default:
		return "unknown"
	}
}

// readBatch is the page size used when tailing the store
const readBatch = 256

// ReaderOption configures a Reader
type ReaderOption func(*readerConfig)

type readerConfig struct {
	durability Durability
	depth      int
	lease      time.Duration
}

// WithDurability sets the reader durability. Default is Volatile.
func WithDurability(d Durability) ReaderOption {
	return func(c *readerConfig) {
		c.durability = d
	}
}

// WithHistoryDepth keeps at most n unread samples per instance. Default is 1.
func WithHistoryDepth(n int) ReaderOption {
	return func(c *readerConfig) {
		if n > 0 {
			c.depth = n
		}
	}
}

// WithLivelinessLease treats a writer as gone when nothing was heard from it
// for longer than d. Zero disables the check.
func WithLivelinessLease(d time.Duration) ReaderOption {
	return func(c *readerConfig) {
		if d >= 0 {
			c.lease = d
		}
	}
}

// queued is a sample waiting to be taken
type queued[T any] struct {
	data        T
	valid       bool
	inst        *instance[T]
	sampleState SampleState
	source      time.Time
	writer      string
}

// Reader receives the samples and instance state changes of one topic.
// A Reader is meant to be driven from a single goroutine; its methods are
// nevertheless safe for concurrent use.
type Reader[T Keyed] struct {
	topic     *Topic[T]
	cfg       readerConfig
	offset    Offset
	instances map[InstanceHandle]*instance[T]
	queue     []*queued[T]
	mu        sync.Mutex
}

// NewReader creates a reader for the topic. It catches up with the store
// before returning; with Volatile durability the history only seeds the
// instance table and is not delivered.
func NewReader[T Keyed](ctx context.Context, topic *Topic[T], opts ...ReaderOption) (*Reader[T], error) {
	cfg := readerConfig{
		durability: Volatile,
		depth:      1,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &Reader[T]{
		topic:     topic,
		cfg:       cfg,
		offset:    OffsetOldest,
		instances: make(map[InstanceHandle]*instance[T]),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.poll(ctx, cfg.durability == TransientLocal); err != nil {
		return nil, err
	}
	return r, nil
}

// Topic returns the topic the reader is attached to
func (r *Reader[T]) Topic() *Topic[T] {
	return r.topic
}

// Take returns and removes every sample currently available, including
// key-only notifications. Taken samples are never returned again.
func (r *Reader[T]) Take(ctx context.Context) ([]Sample[T], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.poll(ctx, true); err != nil {
		return nil, err
	}

	samples := r.collect()
	r.queue = nil
	r.notify(ctx, samples)
	return samples, nil
}

// Read returns every sample currently available without removing them.
// Returned samples are marked READ for subsequent calls.
func (r *Reader[T]) Read(ctx context.Context) ([]Sample[T], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.poll(ctx, true); err != nil {
		return nil, err
	}

	samples := r.collect()
	for _, q := range r.queue {
		q.sampleState = SampleRead
	}
	r.notify(ctx, samples)
	return samples, nil
}

// KeyValue returns the key holder of an instance: a sample whose key fields
// identify the instance. Other fields carry the last value seen.
func (r *Reader[T]) KeyValue(handle InstanceHandle) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.instances[handle]
	if !ok {
		var zero T
		return zero, fmt.Errorf("key value %s: %w", handle, ErrUnknownInstance)
	}
	return inst.keyHolder, nil
}

// InstanceState returns the current state of an instance
func (r *Reader[T]) InstanceState(handle InstanceHandle) (InstanceState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.instances[handle]
	if !ok {
		return 0, fmt.Errorf("instance state %s: %w", handle, ErrUnknownInstance)
	}
	return inst.state, nil
}

// Wait blocks until samples are available, the timeout elapses or ctx is
// done. It reports whether samples are available.
func (r *Reader[T]) Wait(ctx context.Context, timeout time.Duration) (bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	ticker := time.NewTicker(r.topic.bus.pollInterval)
	defer ticker.Stop()

	for {
		r.mu.Lock()
		err := r.poll(ctx, true)
		available := len(r.queue) > 0
		r.mu.Unlock()

		if err != nil {
			return false, err
		}
		if available {
			return true, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
			return false, nil
		case <-ticker.C:
		}
	}
}

// collect builds the samples in arrival order, must be called with r.mu held
func (r *Reader[T]) collect() []Sample[T] {
	samples := make([]Sample[T], 0, len(r.queue))
	for _, q := range r.queue {
		samples = append(samples, Sample[T]{
			Data: q.data,
			Info: SampleInfo{
				Valid:             q.valid,
				InstanceHandle:    q.inst.handle,
				InstanceState:     q.inst.state,
				SampleState:       q.sampleState,
				ViewState:         q.inst.view,
				SourceTimestamp:   q.source,
				PublicationHandle: q.writer,
			},
		})
	}

	// Every instance in the batch has now been accessed
	for _, q := range r.queue {
		q.inst.view = ViewNotNew
	}
	return samples
}

func (r *Reader[T]) notify(ctx context.Context, samples []Sample[T]) {
	obs := r.topic.bus.observability
	if obs == nil || len(samples) == 0 {
		return
	}

	valid := 0
	for _, s := range samples {
		if s.Info.Valid {
			valid++
		}
	}
	obs.OnTake(ctx, r.topic.name, valid, len(samples)-valid)
}

// poll ingests everything appended since the last poll, must be called with
// r.mu held
func (r *Reader[T]) poll(ctx context.Context, deliver bool) error {
	store := r.topic.bus.store
	for {
		events, next, err := store.Read(ctx, r.offset, readBatch)
		if err != nil {
			return fmt.Errorf("databus: read %s: %w", r.topic.name, err)
		}
		if len(events) == 0 {
			break
		}

		for _, event := range events {
			r.ingest(event, deliver)
		}
		r.offset = next

		if len(events) < readBatch {
			break
		}
	}

	r.expireWriters(deliver)
	return nil
}

// ingest applies one stored change to the instance table
func (r *Reader[T]) ingest(event *StoredEvent, deliver bool) {
	logger := r.topic.bus.logger

	var change Change
	if err := json.Unmarshal(event.Data, &change); err != nil {
		logger.Warn("skipping malformed change", zap.String("offset", string(event.Offset)), zap.Error(err))
		return
	}
	if change.Topic != r.topic.name {
		return
	}

	data, typeName, err := r.topic.bus.upcastRegistry.apply(change.Value, event.Type)
	if err != nil {
		r.topic.bus.reportUpcastError(event.Type, err)
		return
	}
	if typeName != r.topic.typeName {
		logger.Debug("skipping change of foreign type", zap.String("type", typeName), zap.String("topic", change.Topic))
		return
	}

	var value T
	if len(data) > 0 {
		if err := json.Unmarshal(data, &value); err != nil {
			logger.Warn("skipping undecodable sample", zap.String("type", typeName), zap.Error(err))
			return
		}
	}

	handle := handleFor(r.topic.name, change.Key)
	inst, ok := r.instances[handle]
	if !ok {
		inst = newInstance(handle, change.Key, value)
		r.instances[handle] = inst
	}
	source := change.sourceTime(event.Timestamp)
	// Leases run on this reader's clock; writers on other hosts may be skewed
	heard := r.topic.bus.now()

	switch change.Headers.Operation {
	case OperationWrite:
		if inst.state != InstanceAlive {
			if inst.state != 0 {
				inst.view = ViewNew
			}
			inst.state = InstanceAlive
		}
		inst.keyHolder = value
		inst.writers[change.Writer] = heard
		if deliver {
			r.enqueue(&queued[T]{data: value, valid: true, inst: inst, source: source, writer: change.Writer})
		}

	case OperationDispose:
		inst.writers[change.Writer] = heard
		if inst.state != InstanceNotAliveDisposed {
			inst.state = InstanceNotAliveDisposed
			if deliver {
				r.enqueue(&queued[T]{inst: inst, source: source, writer: change.Writer})
			}
		}

	case OperationUnregister:
		delete(inst.writers, change.Writer)
		if len(inst.writers) == 0 && inst.state == InstanceAlive {
			inst.state = InstanceNotAliveNoWriters
			if deliver {
				r.enqueue(&queued[T]{inst: inst, source: source, writer: change.Writer})
			}
		}

	default:
		logger.Warn("skipping change with unknown operation", zap.String("operation", string(change.Headers.Operation)))
	}
}

// enqueue adds a sample, dropping the oldest valid sample of the same
// instance beyond the history depth
func (r *Reader[T]) enqueue(q *queued[T]) {
	q.sampleState = SampleNotRead
	r.queue = append(r.queue, q)
	if !q.valid {
		return
	}

	count := 0
	for _, existing := range r.queue {
		if existing.valid && existing.inst == q.inst {
			count++
		}
	}
	if count <= r.cfg.depth {
		return
	}

	for i, existing := range r.queue {
		if existing.valid && existing.inst == q.inst {
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			return
		}
	}
}

// expireWriters drops writers not heard from for longer than the lease
func (r *Reader[T]) expireWriters(deliver bool) {
	if r.cfg.lease <= 0 {
		return
	}

	now := r.topic.bus.now()
	for _, inst := range r.instances {
		for writer, last := range inst.writers {
			if now.Sub(last) > r.cfg.lease {
				delete(inst.writers, writer)
			}
		}
		if len(inst.writers) == 0 && inst.state == InstanceAlive {
			inst.state = InstanceNotAliveNoWriters
			r.topic.bus.logger.Debug("writer liveliness lost", zap.String("topic", r.topic.name), zap.String("key", inst.key))
			if deliver {
				r.enqueue(&queued[T]{inst: inst, source: now})
			}
		}
	}
}
