// Package eventbus is an in-memory fanout of watch events. The poll loop
// publishes; audit, metrics and systemd status subscribe.
package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Event is a small in-memory signal.
//
// Publish never blocks. Subscribers get buffered channels and a slow
// subscriber loses events rather than stalling the publisher. Data should be
// JSON-serializable; the audit journal stores it as-is.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// MemBus is the default Bus. It owns no goroutines.
type MemBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64

	dropped atomic.Uint64
}

func New() *MemBus {
	return &MemBus{subs: map[uint64]chan Event{}}
}

func (b *MemBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// A concurrent unsubscribe may close ch between snapshot and send.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
				b.dropped.Add(1)
			}
		}()
	}
}

func (b *MemBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Dropped is the number of deliveries skipped because a subscriber was full.
func (b *MemBus) Dropped() uint64 { return b.dropped.Load() }

// Consume subscribes and calls fn for every event until ctx is done.
func Consume(ctx context.Context, bus Bus, buffer int, fn func(Event)) error {
	return Listen(bus, buffer, fn)(ctx)
}

// Listen subscribes now and returns the delivery loop, to be run under the
// supervisor. Events published after Listen returns are not missed even if
// the loop starts later. The returned func must be called exactly once.
func Listen(bus Bus, buffer int, fn func(Event)) func(ctx context.Context) error {
	ch, unsub := bus.Subscribe(buffer)
	return func(ctx context.Context) error {
		defer unsub()
		return Drain(ctx, ch, fn)
	}
}

// Drain calls fn for every event on ch until ch closes or ctx is done. On
// cancellation events already buffered are still delivered.
func Drain(ctx context.Context, ch <-chan Event, fn func(Event)) error {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case e, ok := <-ch:
					if !ok {
						return ctx.Err()
					}
					fn(e)
				default:
					return ctx.Err()
				}
			}
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			fn(e)
		}
	}
}
