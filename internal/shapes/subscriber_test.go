package shapes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	databus "github.com/jilio/shapes"
)

func newShapeBus(t *testing.T, opts ...databus.Option) (*databus.Topic[ShapeTypeExtended], *databus.Bus) {
	t.Helper()
	bus := databus.New(append([]databus.Option{databus.WithPollInterval(5 * time.Millisecond)}, opts...)...)
	topic, err := databus.NewTopic[ShapeTypeExtended](bus, TopicName)
	require.NoError(t, err)
	return topic, bus
}

func TestSubscriberStopsAtSampleCount(t *testing.T) {
	ctx := context.Background()
	topic, _ := newShapeBus(t)
	reader, err := databus.NewReader(ctx, topic, databus.WithHistoryDepth(10))
	require.NoError(t, err)

	writer := databus.NewWriter(topic)
	tr := NewTrajectory(Red)
	for i := 0; i < 3; i++ {
		require.NoError(t, writer.Write(ctx, tr.Next()))
	}

	sink := &fakeSink{}
	sub := NewSubscriber(reader, sink, 3, zaptest.NewLogger(t))
	sub.SetWaitTimeout(50 * time.Millisecond)

	read, err := sub.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), read)
	require.Len(t, sink.rendered, 3)
	assert.Equal(t, -12, sink.rendered[2].X)
}

func TestSubscriberSeesDispose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	topic, _ := newShapeBus(t)
	reader, err := databus.NewReader(ctx, topic)
	require.NoError(t, err)

	_, err = NewPublisher(NewExtendedWriter(databus.NewWriter(topic)), Red,
		WithSampleCount(1), WithSleep(noSleep)).Run(ctx)
	require.NoError(t, err)

	sink := &fakeSink{}
	sub := NewSubscriber(reader, &cancelOnLog{fakeSink: sink, cancel: cancel}, 0, nil)
	sub.SetWaitTimeout(20 * time.Millisecond)

	read, err := sub.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), read)
	assert.Equal(t, []string{"Instance with key RED changed to NOT_ALIVE_DISPOSED"}, sink.logged)
}

func TestSubscriberLivelinessLost(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	now := time.Unix(1000, 0)
	topic, _ := newShapeBus(t, databus.WithClock(func() time.Time { return now }))
	reader, err := databus.NewReader(ctx, topic, databus.WithLivelinessLease(time.Second))
	require.NoError(t, err)

	require.NoError(t, databus.NewWriter(topic).Write(ctx, NewTrajectory(Red).Next()))

	sink := &fakeSink{}
	logSink := &cancelOnLog{fakeSink: sink, cancel: cancel}
	sub := NewSubscriber(reader, logSink, 0, nil)
	sub.SetWaitTimeout(20 * time.Millisecond)

	// the writer goes silent without unregistering
	logSink.onRender = func() { now = now.Add(2 * time.Second) }

	_, err = sub.Run(ctx)
	require.NoError(t, err)
	assert.Len(t, sink.rendered, 1)
	assert.Equal(t, []string{"Instance with key RED has dropped from the databus"}, sink.logged)
}

func TestSubscriberCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	topic, _ := newShapeBus(t)
	reader, err := databus.NewReader(ctx, topic)
	require.NoError(t, err)

	sub := NewSubscriber(reader, &fakeSink{}, 0, nil)
	sub.SetWaitTimeout(10 * time.Millisecond)

	time.AfterFunc(30*time.Millisecond, cancel)
	read, err := sub.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, read)
}

type failingSource struct {
	SampleSource
}

func (failingSource) Wait(ctx context.Context, timeout time.Duration) (bool, error) {
	return false, errors.New("store closed")
}

func TestSubscriberTransportFault(t *testing.T) {
	_, err := NewSubscriber(failingSource{}, &fakeSink{}, 0, nil).Run(context.Background())
	require.EqualError(t, err, "store closed")
}

// cancelOnLog stops the loop once a lifecycle message was shown
type cancelOnLog struct {
	*fakeSink
	cancel   context.CancelFunc
	onRender func()
}

func (c *cancelOnLog) Render(shape ShapeTypeExtended) error {
	if c.onRender != nil {
		c.onRender()
	}
	return c.fakeSink.Render(shape)
}

func (c *cancelOnLog) Log(line string) error {
	c.cancel()
	return c.fakeSink.Log(line)
}
