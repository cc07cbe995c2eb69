// Package telemetry reports fatal failures to Sentry. A nil *Reporter is
// valid and does nothing, so callers never branch on whether a DSN is set.
package telemetry

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	logx "gradewatch/pkg/logx"
)

type Config struct {
	DSN         string
	Environment string
	Release     string
	RunID       string
	// Transport overrides the HTTP transport (tests).
	Transport sentry.Transport
}

type Reporter struct {
	hub *sentry.Hub
	log logx.Logger
}

// New returns nil when no DSN is configured.
func New(cfg Config, log logx.Logger) (*Reporter, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
		SampleRate:  1.0,
		Transport:   cfg.Transport,
		BeforeSend:  scrub,
	})
	if err != nil {
		return nil, errors.New("telemetry: invalid sentry dsn")
	}
	scope := sentry.NewScope()
	if cfg.RunID != "" {
		scope.SetTag("run_id", cfg.RunID)
	}
	return &Reporter{hub: sentry.NewHub(client, scope), log: log}, nil
}

// The host name and user block can identify the student.
func scrub(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	event.ServerName = ""
	event.User = sentry.User{}
	return event
}

// CaptureFatal records the error that ended the loop.
func (r *Reporter) CaptureFatal(err error, phase string, code int) {
	if r == nil || err == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelFatal)
		scope.SetTag("phase", phase)
		scope.SetTag("exit_code", strconv.Itoa(code))
		if id := r.hub.CaptureException(err); id != nil {
			r.log.Debug("fatal error reported", logx.String("event_id", string(*id)))
		}
	})
}

// Flush waits up to timeout for queued events.
func (r *Reporter) Flush(timeout time.Duration) bool {
	if r == nil {
		return true
	}
	return r.hub.Flush(timeout)
}
