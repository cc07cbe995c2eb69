package notifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/time/rate"

	"gradewatch/internal/watcher"
	logx "gradewatch/pkg/logx"
)

var ErrNoBackends = errors.New("no notification backends configured")

// Backend delivers one message to one channel.
type Backend interface {
	Name() string
	Send(ctx context.Context, msg watcher.Message) error
}

type Options struct {
	// RatePerSec bounds backend calls across the whole service. Default 2.
	RatePerSec int
	// Timeout bounds each backend call. Default 20s.
	Timeout time.Duration
}

// Service implements watcher.Notifier. It is safe for concurrent use.
type Service struct {
	backends []Backend
	limiter  *rate.Limiter
	timeout  time.Duration
	log      logx.Logger
}

func New(backends []Backend, opt Options, log logx.Logger) *Service {
	if opt.RatePerSec <= 0 {
		opt.RatePerSec = 2
	}
	if opt.Timeout <= 0 {
		opt.Timeout = 20 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		backends: backends,
		// Burst = rate so a handful of new records go out without waiting.
		limiter: rate.NewLimiter(rate.Limit(opt.RatePerSec), opt.RatePerSec),
		timeout: opt.Timeout,
		log:     log,
	}
}

var _ watcher.Notifier = (*Service)(nil)

// Notify sends msg to every backend. It succeeds only if every backend did;
// the error joins each failing backend's error.
func (s *Service) Notify(ctx context.Context, msg watcher.Message) error {
	if len(s.backends) == 0 {
		return ErrNoBackends
	}
	var errs []error
	for _, b := range s.backends {
		if err := s.limiter.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
			break
		}
		start := time.Now()
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		err := b.Send(cctx, msg)
		cancel()
		if err != nil {
			s.log.Warn("backend send failed", logx.String("backend", b.Name()), logx.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
			continue
		}
		s.log.Debug("backend sent",
			logx.String("backend", b.Name()),
			logx.String("title", msg.Title),
			logx.Duration("took", time.Since(start)),
		)
	}
	return errors.Join(errs...)
}

// Backends lists backend names in send order.
func (s *Service) Backends() []string {
	out := make([]string, 0, len(s.backends))
	for _, b := range s.backends {
		out = append(out, b.Name())
	}
	return out
}

// Close releases backends holding connections.
func (s *Service) Close() error {
	var errs []error
	for _, b := range s.backends {
		if c, ok := b.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}
