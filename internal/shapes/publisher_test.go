package shapes

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	databus "github.com/jilio/shapes"
)

type fakeWriter struct {
	registered []ShapeTypeExtended
	writes     []ShapeTypeExtended
	disposed   []databus.InstanceHandle
	writeErr   error
	disposeErr error
	handle     databus.InstanceHandle
}

func (f *fakeWriter) RegisterInstance(ctx context.Context, shape ShapeTypeExtended) (databus.InstanceHandle, error) {
	f.registered = append(f.registered, shape)
	f.handle = databus.InstanceHandle{1}
	return f.handle, nil
}

func (f *fakeWriter) Write(ctx context.Context, shape ShapeTypeExtended) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, shape)
	return nil
}

func (f *fakeWriter) DisposeInstance(ctx context.Context, handle databus.InstanceHandle) error {
	f.disposed = append(f.disposed, handle)
	return f.disposeErr
}

func noSleep(time.Duration) {}

func TestPublisherSampleCount(t *testing.T) {
	w := &fakeWriter{}
	var out bytes.Buffer
	var slept []time.Duration

	p := NewPublisher(w, Red,
		WithSampleCount(3),
		WithOutput(&out),
		WithSleep(func(d time.Duration) { slept = append(slept, d) }),
		WithPublisherLogger(zaptest.NewLogger(t)))

	written, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), written)
	assert.Equal(t, Done, p.State())

	require.Len(t, w.registered, 1)
	assert.Equal(t, "RED", w.registered[0].Color)

	require.Len(t, w.writes, 3)
	for i, x := range []int{-14, -13, -12} {
		assert.Equal(t, x, w.writes[i].X)
	}
	assert.Equal(t, []databus.InstanceHandle{w.handle}, w.disposed)
	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, slept)

	assert.Equal(t,
		"Writing a RED square at (-14,69), count: 0\n"+
			"Writing a RED square at (-13,73), count: 1\n"+
			"Writing a RED square at (-12,77), count: 2\n",
		out.String())
}

func TestPublisherShutdown(t *testing.T) {
	w := &fakeWriter{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticks := 0
	p := NewPublisher(w, Green, WithSleep(func(time.Duration) {
		ticks++
		if ticks == 2 {
			cancel()
		}
	}))

	written, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), written)
	assert.Len(t, w.writes, 2)
	assert.Len(t, w.disposed, 1)
	assert.Equal(t, Done, p.State())
}

func TestPublisherCancelledBeforeStart(t *testing.T) {
	w := &fakeWriter{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	written, err := NewPublisher(w, Blue, WithSleep(noSleep)).Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, written)
	assert.Empty(t, w.writes)
	assert.Len(t, w.disposed, 1)
}

func TestPublisherWriteError(t *testing.T) {
	w := &fakeWriter{writeErr: errors.New("store unreachable")}

	written, err := NewPublisher(w, Yellow, WithSleep(noSleep)).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write YELLOW")
	assert.Zero(t, written)
	assert.Len(t, w.disposed, 1)
}

func TestPublisherDisposeError(t *testing.T) {
	w := &fakeWriter{disposeErr: errors.New("gone")}

	_, err := NewPublisher(w, Purple, WithSampleCount(1), WithSleep(noSleep)).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dispose PURPLE")
}

func TestPublisherOverBus(t *testing.T) {
	ctx := context.Background()
	bus := databus.New()
	topic, err := databus.NewTopic[ShapeTypeExtended](bus, TopicName)
	require.NoError(t, err)
	reader, err := databus.NewReader(ctx, topic, databus.WithHistoryDepth(10))
	require.NoError(t, err)

	_, err = NewPublisher(NewExtendedWriter(databus.NewWriter(topic)), Orange,
		WithSampleCount(2), WithSleep(noSleep)).Run(ctx)
	require.NoError(t, err)

	samples, err := reader.Take(ctx)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, -14, samples[0].Data.X)
	assert.Equal(t, -13, samples[1].Data.X)
	assert.False(t, samples[2].Info.Valid)
	assert.Equal(t, databus.InstanceNotAliveDisposed, samples[2].Info.InstanceState)
}

func TestLegacyPublisherIsUpcast(t *testing.T) {
	ctx := context.Background()
	bus := databus.New()
	require.NoError(t, RegisterLegacyUpcast(bus))

	legacy, err := databus.NewTopic[ShapeType](bus, TopicName)
	require.NoError(t, err)
	current, err := databus.NewTopic[ShapeTypeExtended](bus, TopicName)
	require.NoError(t, err)
	reader, err := databus.NewReader(ctx, current)
	require.NoError(t, err)

	_, err = NewPublisher(NewLegacyWriter(databus.NewWriter(legacy)), Magenta,
		WithSampleCount(1), WithSleep(noSleep)).Run(ctx)
	require.NoError(t, err)

	samples, err := reader.Take(ctx)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, ShapeTypeExtended{Color: "MAGENTA", X: -14, Y: 69, ShapeSize: 30, FillKind: SolidFill}, samples[0].Data)

	key, err := reader.KeyValue(samples[1].Info.InstanceHandle)
	require.NoError(t, err)
	assert.Equal(t, "MAGENTA", key.Color)
}
