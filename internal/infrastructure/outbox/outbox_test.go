package outbox_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domoutbox "github.com/Zhima-Mochi/gameshop/internal/domain/outbox"
	"github.com/Zhima-Mochi/gameshop/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/gameshop/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct{ n int }

func (testEvent) EventName() string { return "test.event" }

func TestBusDeliversInOrderToEverySubscriber(t *testing.T) {
	bus := outbox.NewBus(observability.Nop())

	var mu sync.Mutex
	var a, b []int
	bus.Subscribe("test.event", func(_ context.Context, e domoutbox.Event) error {
		mu.Lock()
		defer mu.Unlock()
		a = append(a, e.(testEvent).n)
		return nil
	})
	bus.Subscribe("test.event", func(_ context.Context, e domoutbox.Event) error {
		mu.Lock()
		defer mu.Unlock()
		b = append(b, e.(testEvent).n)
		return errors.New("handler errors are logged, not propagated")
	})

	ctx := context.Background()
	bus.Start(ctx)
	for i := range 5 {
		require.NoError(t, bus.Publish(ctx, testEvent{n: i}))
	}
	require.NoError(t, bus.Stop(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, a)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, b)
}

func TestBusRecoversFromHandlerPanic(t *testing.T) {
	bus := outbox.NewBus(nil)
	var delivered atomic.Int32
	bus.Subscribe("test.event", func(context.Context, domoutbox.Event) error {
		panic("boom")
	})
	bus.Subscribe("test.event", func(context.Context, domoutbox.Event) error {
		delivered.Add(1)
		return nil
	})

	ctx := context.Background()
	bus.Start(ctx)
	require.NoError(t, bus.Publish(ctx, testEvent{}))
	require.NoError(t, bus.Publish(ctx, testEvent{}))
	require.NoError(t, bus.Stop(ctx))

	assert.Equal(t, int32(2), delivered.Load())
}

func TestBusRejectsPublishAfterStop(t *testing.T) {
	bus := outbox.NewBus(observability.Nop())
	ctx := context.Background()
	bus.Start(ctx)
	require.NoError(t, bus.Stop(ctx))

	assert.ErrorIs(t, bus.Publish(ctx, testEvent{}), outbox.ErrBusClosed)
	assert.NoError(t, bus.Stop(ctx))
}

func TestBusStopWithoutStart(t *testing.T) {
	bus := outbox.NewBus(observability.Nop())
	require.NoError(t, bus.Publish(context.Background(), testEvent{}))
	assert.NoError(t, bus.Stop(context.Background()))
}

func TestBusPublishHonoursContextWhenQueueFull(t *testing.T) {
	bus := outbox.NewBus(observability.Nop(), outbox.WithQueueSize(1))
	require.NoError(t, bus.Publish(context.Background(), testEvent{}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bus.Publish(ctx, testEvent{}), context.DeadlineExceeded)
}

func TestBusStopTimesOutOnSlowHandler(t *testing.T) {
	bus := outbox.NewBus(observability.Nop(), outbox.WithHandlerTimeout(time.Second))
	release := make(chan struct{})
	bus.Subscribe("test.event", func(context.Context, domoutbox.Event) error {
		<-release
		return nil
	})
	bus.Start(context.Background())
	require.NoError(t, bus.Publish(context.Background(), testEvent{}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bus.Stop(ctx), context.DeadlineExceeded)
	close(release)
}
