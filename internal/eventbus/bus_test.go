package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFansOut(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(4)
	c, unsubC := b.Subscribe(4)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: "watch.cycle"})

	for _, ch := range []<-chan Event{a, c} {
		e := <-ch
		assert.Equal(t, "watch.cycle", e.Type)
		assert.False(t, e.Time.IsZero(), "time is stamped")
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "one"})
	b.Publish(Event{Type: "two"})
	assert.Equal(t, uint64(1), b.Dropped())
}

func TestUnsubscribeClosesAndIsIdempotent(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	_, ok := <-ch
	assert.False(t, ok)
	assert.NotPanics(t, func() { b.Publish(Event{Type: "after"}) })
}

func TestConsumeStopsOnCancel(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	var got []string
	done := make(chan error, 1)
	started := make(chan struct{})
	go func() {
		close(started)
		done <- Consume(ctx, b, 8, func(e Event) {
			mu.Lock()
			got = append(got, e.Type)
			mu.Unlock()
		})
	}()
	<-started

	require.Eventually(t, func() bool {
		b.Publish(Event{Type: "ping"})
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestListenDeliversBufferedEventsOnCancel(t *testing.T) {
	b := New()
	var got []string
	run := Listen(b, 8, func(e Event) { got = append(got, e.Type) })

	// Published before the loop runs.
	b.Publish(Event{Type: "watch.baseline"})
	b.Publish(Event{Type: "watch.fatal"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, run(ctx), context.Canceled)
	assert.Equal(t, []string{"watch.baseline", "watch.fatal"}, got)
}
