package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversToAllSubscribers(t *testing.T) {
	ctx := context.Background()
	bus, err := NewInMemoryBus(nil, WithWorkers(4))
	require.NoError(t, err)

	var mu sync.Mutex
	got := map[string]int{}
	for i := 0; i < 2; i++ {
		bus.Subscribe(func(ctx context.Context, ev ObjectCreated) error {
			mu.Lock()
			got[ev.Key]++
			mu.Unlock()
			return nil
		})
	}

	require.NoError(t, bus.Publish(ctx, ObjectCreated{Bucket: "b", Key: "uploads/a.jpg", OccurredAt: time.Now()}))
	require.NoError(t, bus.Publish(ctx, ObjectCreated{Bucket: "b", Key: "uploads/b.jpg", OccurredAt: time.Now()}))

	bus.Shutdown(ctx)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, got["uploads/a.jpg"])
	assert.Equal(t, 2, got["uploads/b.jpg"])
}

func TestBusSwallowsHandlerErrors(t *testing.T) {
	ctx := context.Background()
	bus, err := NewInMemoryBus(nil)
	require.NoError(t, err)

	bus.Subscribe(func(ctx context.Context, ev ObjectCreated) error {
		return errors.New("handler blew up")
	})

	// Handler failures are routed by the handler itself; Publish stays clean.
	assert.NoError(t, bus.Publish(ctx, ObjectCreated{Key: "uploads/a.jpg"}))
	bus.Shutdown(ctx)
}

func TestBusPublishAfterShutdownIsNoop(t *testing.T) {
	ctx := context.Background()
	bus, err := NewInMemoryBus(nil)
	require.NoError(t, err)

	delivered := make(chan struct{}, 1)
	bus.Subscribe(func(ctx context.Context, ev ObjectCreated) error {
		delivered <- struct{}{}
		return nil
	})

	bus.Shutdown(ctx)
	assert.NoError(t, bus.Publish(ctx, ObjectCreated{Key: "uploads/late.jpg"}))
	select {
	case <-delivered:
		t.Fatal("delivery after shutdown")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusShutdownWaitsForInflight(t *testing.T) {
	ctx := context.Background()
	bus, err := NewInMemoryBus(nil)
	require.NoError(t, err)

	done := false
	var mu sync.Mutex
	bus.Subscribe(func(ctx context.Context, ev ObjectCreated) error {
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		done = true
		mu.Unlock()
		return nil
	})

	require.NoError(t, bus.Publish(ctx, ObjectCreated{Key: "uploads/slow.jpg"}))
	bus.Shutdown(ctx)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, done, "shutdown must drain in-flight handlers")
}
