package watcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "gradewatch/pkg/logx"
)

func newTestRetrier(auth Authenticator, f Fetcher, s Sleeper) *Retrier {
	return NewRetrier(NewSessionProvider(auth, logx.Nop()), f, s, logx.Nop())
}

func TestRetrierExhaustsAfterMaxAttempts(t *testing.T) {
	auth := &fakeAuth{failAll: errAuth}
	sl := &scriptedSleeper{}
	r := newTestRetrier(auth, &fakeFetcher{}, sl)

	h, rs, err := r.AcquireAndFetch(context.Background(), 3, 30*time.Second)
	require.Error(t, err)
	assert.Nil(t, h)
	assert.Nil(t, rs)

	var re *RetryExhaustedError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, 3, re.Attempts)
	var ae *AuthError
	assert.True(t, errors.As(re.Last, &ae))

	assert.Equal(t, 3, auth.Calls())
	assert.Equal(t, []time.Duration{30 * time.Second, 30 * time.Second}, sl.slept, "exactly two inter-attempt delays")
}

func TestRetrierReauthenticatesEveryAttempt(t *testing.T) {
	auth := &fakeAuth{}
	f := &fakeFetcher{steps: []fetchStep{
		{err: errLoginPage},
		{err: &FetchError{Reason: ReasonApplication, Code: "-1"}},
		{ids: []string{"101"}},
	}}
	sl := &scriptedSleeper{}
	r := newTestRetrier(auth, f, sl)

	h, rs, err := r.AcquireAndFetch(context.Background(), 3, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3, h.(fakeHandle).id)
	assert.Equal(t, []string{"101"}, ids(rs))
	assert.Equal(t, []int{1, 2, 3}, f.handles, "each fetch uses the handle from the same attempt")
	assert.Len(t, sl.slept, 2)
}

func TestRetrierWrapsUntypedFetchFailure(t *testing.T) {
	r := newTestRetrier(&fakeAuth{}, &fakeFetcher{steps: []fetchStep{{err: errBoom}}}, &scriptedSleeper{})

	_, _, err := r.AcquireAndFetch(context.Background(), 1, time.Second)
	require.True(t, IsRetryExhausted(err))
	assert.Equal(t, ReasonTransport, FetchReasonOf(err))
	assert.ErrorIs(t, err, errBoom)
}

func TestRetrierSingleAttemptHasNoDelay(t *testing.T) {
	sl := &scriptedSleeper{}
	r := newTestRetrier(&fakeAuth{failAll: errAuth}, &fakeFetcher{}, sl)

	_, _, err := r.AcquireAndFetch(context.Background(), 1, time.Second)
	require.True(t, IsRetryExhausted(err))
	assert.Empty(t, sl.slept)
}

func TestRetrierStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sl := SleeperFunc(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	})
	auth := &fakeAuth{failAll: errAuth}
	r := newTestRetrier(auth, &fakeFetcher{}, sl)

	_, _, err := r.AcquireAndFetch(ctx, 3, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsRetryExhausted(err))
	assert.Equal(t, 1, auth.Calls())
}

func TestSessionProviderRejectsNilHandle(t *testing.T) {
	p := NewSessionProvider(nilAuth{}, logx.Nop())
	_, err := p.Acquire(context.Background())
	var ae *AuthError
	require.True(t, errors.As(err, &ae))
}

type nilAuth struct{}

func (nilAuth) Authenticate(context.Context) (Handle, error) { return nil, nil }

func TestTimerSleeperHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := TimerSleeper.Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
