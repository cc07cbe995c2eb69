package watcher

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"gradewatch/internal/eventbus"
	logx "gradewatch/pkg/logx"
)

// Process exit statuses decided by the loop.
const (
	ExitStopped         = 0
	ExitBootstrapFailed = 1
	ExitRuntimeFailed   = 2
)

// Phase is a state of the loop's state machine.
type Phase string

const (
	PhaseBootstrapping Phase = "bootstrap"
	PhasePolling       Phase = "poll"
	PhaseRecovering    Phase = "recover"
)

// Config holds the loop's timing and dedup knobs.
//
// Defaults (when zero):
//   - Attempts: 3
//   - RetryDelay: none; zero retries immediately (config.Resolve supplies 30s)
//   - MinInterval: 10s, MaxInterval: 120s
//   - IdentityField: "KCH"
type Config struct {
	Attempts      int
	RetryDelay    time.Duration
	MinInterval   time.Duration
	MaxInterval   time.Duration
	IdentityField string
}

const (
	DefaultAttempts      = 3
	DefaultMinInterval   = 10 * time.Second
	DefaultMaxInterval   = 120 * time.Second
	DefaultIdentityField = "KCH"
)

func (c Config) withDefaults() Config {
	if c.Attempts <= 0 {
		c.Attempts = DefaultAttempts
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.MinInterval <= 0 {
		c.MinInterval = DefaultMinInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = DefaultMaxInterval
	}
	if c.MaxInterval < c.MinInterval {
		c.MaxInterval = c.MinInterval
	}
	if c.IdentityField == "" {
		c.IdentityField = DefaultIdentityField
	}
	return c
}

// Deps are the loop's collaborators. Auth, Fetcher, Notifier and Formatter
// are required; the rest default sensibly.
type Deps struct {
	Auth      Authenticator
	Fetcher   Fetcher
	Notifier  Notifier
	Formatter Formatter
	Escalator *Escalator
	Sleeper   Sleeper
	Rand      *rand.Rand
	Bus       eventbus.Bus
	Log       logx.Logger
}

// Result is how a Run ended. Phase is the state the loop was in when it
// stopped; after Run returns the loop itself is Terminated.
type Result struct {
	Code  int
	Phase Phase
	Err   error
}

// loopState is everything that survives across cycles.
// Only the goroutine running Loop.Run touches it.
type loopState struct {
	handle Handle
	seen   SeenSet
	cycles uint64
}

// Loop is the poll/session state machine.
type Loop struct {
	cfg       Config
	sessions  *SessionProvider
	fetcher   Fetcher
	retrier   *Retrier
	detector  Detector
	notifier  Notifier
	formatter Formatter
	escalator *Escalator
	sleep     Sleeper
	rng       *rand.Rand
	bus       eventbus.Bus
	log       logx.Logger

	state *loopState
}

func New(cfg Config, d Deps) *Loop {
	cfg = cfg.withDefaults()
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	sleep := d.Sleeper
	if sleep == nil {
		sleep = TimerSleeper
	}
	rng := d.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	esc := d.Escalator
	if esc == nil {
		esc = NewEscalator(d.Notifier, "", nil, log.With(logx.String("comp", "escalator")))
	}
	sessions := NewSessionProvider(d.Auth, log.With(logx.String("comp", "session")))
	return &Loop{
		cfg:       cfg,
		sessions:  sessions,
		fetcher:   d.Fetcher,
		retrier:   NewRetrier(sessions, d.Fetcher, sleep, log.With(logx.String("comp", "retry"))),
		detector:  NewDetector(cfg.IdentityField),
		notifier:  d.Notifier,
		formatter: d.Formatter,
		escalator: esc,
		sleep:     sleep,
		rng:       rng,
		bus:       d.Bus,
		log:       log,
	}
}

// Run bootstraps and then polls until ctx is cancelled or an irrecoverable
// failure occurs. Cancellation yields ExitStopped with ctx.Err().
func (l *Loop) Run(ctx context.Context) Result {
	st, err := l.bootstrap(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Result{Code: ExitStopped, Phase: PhaseBootstrapping, Err: ctx.Err()}
		}
		return l.terminate(ctx, PhaseBootstrapping, ExitBootstrapFailed, err)
	}
	l.state = st

	for {
		phase, err := l.cycle(ctx, st)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return Result{Code: ExitStopped, Phase: phase, Err: ctx.Err()}
		}
		return l.terminate(ctx, phase, ExitRuntimeFailed, err)
	}
}

// SeenIdentities returns the current seen-set, sorted.
// Only call it after Run has returned.
func (l *Loop) SeenIdentities() []string {
	if l.state == nil {
		return nil
	}
	return l.state.seen.Sorted()
}

func (l *Loop) bootstrap(ctx context.Context) (*loopState, error) {
	h, records, err := l.retrier.AcquireAndFetch(ctx, l.cfg.Attempts, l.cfg.RetryDelay)
	if err != nil {
		return nil, err
	}
	st := &loopState{handle: h, seen: NewSeenSet()}
	l.detector.Seed(records, st.seen)

	l.log.Info("baseline recorded; existing records will not be notified",
		logx.Int("baseline", st.seen.Len()),
		logx.Int("fetched", len(records)),
	)
	l.publish(EventBaseline, WatchEvent{Phase: PhaseBootstrapping, Seen: st.seen.Len()})
	return st, nil
}

// cycle runs one sleep -> fetch -> detect -> notify pass. A non-nil error is
// either ctx's or a fatal failure of the recovery path.
func (l *Loop) cycle(ctx context.Context, st *loopState) (Phase, error) {
	wait := l.nextInterval()
	l.log.Debug("sleeping until next poll", logx.Duration("wait", wait))
	if err := l.sleep.Sleep(ctx, wait); err != nil {
		return PhasePolling, err
	}
	st.cycles++

	phase := PhasePolling
	records, err := fetchTyped(ctx, l.fetcher, st.handle)
	if err != nil {
		if ctx.Err() != nil {
			return phase, ctx.Err()
		}
		l.log.Warn("poll fetch failed; re-authenticating",
			logx.String("reason", reasonLabel(err)),
			logx.Err(err),
		)
		l.publish(EventFetchFailed, WatchEvent{Phase: PhasePolling, Reason: reasonLabel(err), Error: err.Error()})

		phase = PhaseRecovering
		h, recovered, rerr := l.retrier.AcquireAndFetch(ctx, l.cfg.Attempts, l.cfg.RetryDelay)
		if rerr != nil {
			return phase, rerr
		}
		// The old handle is discarded wholesale.
		st.handle = h
		records = recovered
		l.publish(EventRecovered, WatchEvent{Phase: PhaseRecovering})
	}

	fresh, _ := l.detector.Partition(records, st.seen)
	failed := l.notifyAll(ctx, fresh)

	if len(fresh) == 0 {
		l.log.Info("no new records", logx.Int("seen", st.seen.Len()))
	} else {
		l.log.Info("new records found",
			logx.Int("new", len(fresh)),
			logx.Int("notify_failed", failed),
			logx.Int("seen", st.seen.Len()),
		)
	}
	l.publish(EventCycle, WatchEvent{Phase: phase, Seen: st.seen.Len(), New: len(fresh), Failed: failed})
	return PhasePolling, nil
}

// notifyAll delivers one notification per record. A failure is logged and
// never stops the remaining deliveries.
func (l *Loop) notifyAll(ctx context.Context, fresh []Record) (failed int) {
	for _, r := range fresh {
		id := Identity(r, l.cfg.IdentityField)
		msg := l.format(r)
		err := l.deliver(ctx, msg)
		if err != nil {
			failed++
			nerr := &NotificationError{Identity: id, Err: err}
			l.log.Warn("notification failed", logx.String("identity", id), logx.Err(nerr))
			l.publish(EventNotifyFailed, WatchEvent{Identity: id, Title: msg.Title, Error: err.Error()})
			continue
		}
		l.publish(EventNewRecord, WatchEvent{Identity: id, Title: msg.Title})
	}
	return failed
}

func (l *Loop) deliver(ctx context.Context, msg Message) (err error) {
	if l.notifier == nil {
		return errors.New("no notifier configured")
	}
	// A misbehaving backend must not take the loop down with it.
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("notifier panicked")
			l.log.Error("notifier panicked", logx.Any("panic", r))
		}
	}()
	return l.notifier.Notify(ctx, msg)
}

func (l *Loop) format(r Record) Message {
	if l.formatter == nil {
		return Message{Title: Identity(r, l.cfg.IdentityField)}
	}
	return l.formatter.Format(r)
}

func (l *Loop) terminate(ctx context.Context, phase Phase, code int, cause error) Result {
	l.log.Error("irrecoverable failure; terminating",
		logx.String("phase", string(phase)),
		logx.Int("exit_code", code),
		logx.Err(cause),
	)
	l.escalator.EscalateFatal(ctx, cause)
	l.publish(EventFatal, WatchEvent{Phase: phase, Code: code, Error: cause.Error()})
	return Result{Code: code, Phase: phase, Err: cause}
}

func (l *Loop) nextInterval() time.Duration {
	span := l.cfg.MaxInterval - l.cfg.MinInterval
	if span <= 0 {
		return l.cfg.MinInterval
	}
	return l.cfg.MinInterval + time.Duration(l.rng.Int63n(int64(span)+1))
}
