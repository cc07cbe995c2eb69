package watcher

import (
	"context"
	"time"

	logx "gradewatch/pkg/logx"
)

// Retrier composes SessionProvider and Fetcher into a bounded
// re-authenticate-and-fetch loop with a fixed delay between attempts.
//
// It is the only place that retries. Re-authentication is part of every
// attempt, which is what recovers an expired session.
type Retrier struct {
	sessions *SessionProvider
	fetcher  Fetcher
	sleep    Sleeper
	log      logx.Logger
}

func NewRetrier(sessions *SessionProvider, fetcher Fetcher, sleep Sleeper, log logx.Logger) *Retrier {
	if sleep == nil {
		sleep = TimerSleeper
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Retrier{sessions: sessions, fetcher: fetcher, sleep: sleep, log: log}
}

// AcquireAndFetch makes up to maxAttempts attempts. On exhaustion it returns
// *RetryExhaustedError wrapping the last failure. If ctx is cancelled while
// waiting or while an attempt runs, ctx.Err() is returned instead.
func (r *Retrier) AcquireAndFetch(ctx context.Context, maxAttempts int, delay time.Duration) (Handle, []Record, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		h, records, err := r.attempt(ctx)
		if err == nil {
			if attempt > 1 {
				r.log.Info("recovered after retry", logx.Int("attempt", attempt))
			}
			return h, records, nil
		}
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		lastErr = err
		r.log.Warn("attempt failed",
			logx.Int("attempt", attempt),
			logx.Int("max", maxAttempts),
			logx.String("reason", reasonLabel(err)),
			logx.Err(err),
		)

		if attempt >= maxAttempts {
			break
		}
		if err := r.sleep.Sleep(ctx, delay); err != nil {
			return nil, nil, err
		}
	}
	return nil, nil, &RetryExhaustedError{Attempts: maxAttempts, Last: lastErr}
}

func (r *Retrier) attempt(ctx context.Context) (Handle, []Record, error) {
	h, err := r.sessions.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	records, err := fetchTyped(ctx, r.fetcher, h)
	if err != nil {
		return nil, nil, err
	}
	return h, records, nil
}

func reasonLabel(err error) string {
	if reason := FetchReasonOf(err); reason != "" {
		return string(reason)
	}
	if IsRetryExhausted(err) {
		return "retry_exhausted"
	}
	return "auth"
}
