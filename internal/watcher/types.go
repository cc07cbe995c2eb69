package watcher

import (
	"context"
	"time"
)

// Handle is an opaque, time-bounded authenticated capability.
// Fetchers type-assert it to whatever concrete session they understand.
type Handle interface {
	AcquiredAt() time.Time
}

// Authenticator performs the login handshake.
type Authenticator interface {
	Authenticate(ctx context.Context) (Handle, error)
}

// Fetcher requests the current record list with an authenticated handle.
// Failures should be *FetchError; anything else is treated as a transport failure.
type Fetcher interface {
	Fetch(ctx context.Context, h Handle) ([]Record, error)
}

// Message is what a Notifier delivers.
type Message struct {
	Title   string
	Body    string
	Options map[string]string
}

// Notifier delivers one message to an external channel.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Formatter composes the notification for a newly seen record.
type Formatter interface {
	Format(r Record) Message
}

// Sleeper suspends the caller for d, returning early with ctx.Err() on cancel.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

// TimerSleeper sleeps on a real timer.
var TimerSleeper Sleeper = SleeperFunc(func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
})
