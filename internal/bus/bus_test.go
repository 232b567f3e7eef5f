package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/harvest/pkg/schema"
)

func recvOne(t *testing.T, sub *Subscription) schema.Event {
	t.Helper()
	event, ok, err := sub.Next(context.Background(), time.Second)
	require.NoError(t, err)
	require.True(t, ok, "expected an event before the wait elapsed")
	return event
}

func TestPublishSubscribeOrder(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	for i := 0; i < 5; i++ {
		b.Publish(schema.NewEvent(schema.ProgressPayload{Done: i, Total: 5}))
	}

	for i := 0; i < 5; i++ {
		event := recvOne(t, sub)
		assert.Equal(t, schema.EventProgress, event.Type)
		assert.Equal(t, i, event.Payload.(schema.ProgressPayload).Done)
	}
}

func TestPublishStampsTimestamp(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.Publish(schema.NewEvent(schema.StartPayload{RunID: "r1"}))
	event := recvOne(t, sub)
	assert.False(t, event.Timestamp.IsZero())

	// A preset timestamp is preserved.
	stamped := schema.NewEvent(schema.CompletePayload{})
	stamped.Timestamp = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	b.Publish(stamped)
	event = recvOne(t, sub)
	assert.Equal(t, stamped.Timestamp, event.Timestamp)
}

func TestOverflowDropsOldest(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	// 1001 events into a capacity-1000 buffer: the subscriber sees exactly
	// the last 1000 in publication order, no duplicates.
	for i := 0; i < DefaultCapacity+1; i++ {
		b.Publish(schema.NewEvent(schema.ProgressPayload{Done: i}))
	}

	require.Equal(t, DefaultCapacity, sub.Pending())
	for i := 1; i <= DefaultCapacity; i++ {
		event := recvOne(t, sub)
		assert.Equal(t, i, event.Payload.(schema.ProgressPayload).Done)
	}

	_, ok, err := sub.Next(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStalledSubscriberDoesNotBlockOthers(t *testing.T) {
	b := NewWithCapacity(8)
	stalled := b.Subscribe()
	defer b.Unsubscribe(stalled)
	fast := b.Subscribe()
	defer b.Unsubscribe(fast)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Far more events than the stalled subscriber's capacity.
		for i := 0; i < 100; i++ {
			b.Publish(schema.NewEvent(schema.ProgressPayload{Done: i}))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a stalled subscriber")
	}

	// The fast subscriber can drain its window independently.
	received := 0
	for {
		_, ok, err := fast.Next(context.Background(), 20*time.Millisecond)
		require.NoError(t, err)
		if !ok {
			break
		}
		received++
	}
	assert.Equal(t, 8, received)
	assert.Equal(t, 8, stalled.Pending())
}

func TestKeepAliveOnIdle(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	start := time.Now()
	_, ok, err := sub.Next(context.Background(), 30*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestNextHonorsContextCancellation(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := sub.Next(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUnsubscribeIdempotent(t *testing.T) {
	b := New()
	sub := b.Subscribe()

	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	b.Unsubscribe(nil)

	_, _, err := sub.Next(context.Background(), time.Second)
	assert.ErrorIs(t, err, ErrClosed)

	// Publishing to a bus with no subscribers is a no-op.
	b.Publish(schema.NewEvent(schema.CompletePayload{}))
}

func TestUnsubscribeWakesBlockedReader(t *testing.T) {
	b := New()
	sub := b.Subscribe()

	errCh := make(chan error, 1)
	go func() {
		_, _, err := sub.Next(context.Background(), 5*time.Second)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	b.Unsubscribe(sub)

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("blocked reader was not woken by unsubscribe")
	}
}

func TestConcurrentAccess(t *testing.T) {
	b := NewWithCapacity(64)
	const goroutines = 20
	const eventsPerGoroutine = 50

	var wg sync.WaitGroup

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < eventsPerGoroutine; j++ {
				b.Publish(schema.NewEvent(schema.ProgressPayload{Done: j}))
			}
		}()
	}

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := b.Subscribe()
			for range 5 {
				_, _, _ = sub.Next(context.Background(), 10*time.Millisecond)
			}
			b.Unsubscribe(sub)
		}()
	}

	wg.Wait()
}
