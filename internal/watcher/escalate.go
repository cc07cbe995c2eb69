package watcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	logx "gradewatch/pkg/logx"
)

const (
	DefaultEscalationTitle = "Program error"
	escalationTimeout      = 20 * time.Second
)

// Escalator sends one best-effort notice about an irrecoverable failure.
// It never terminates the process itself.
type Escalator struct {
	notifier Notifier
	title    string
	options  map[string]string
	log      logx.Logger
}

func NewEscalator(n Notifier, title string, options map[string]string, log logx.Logger) *Escalator {
	if title == "" {
		title = DefaultEscalationTitle
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Escalator{notifier: n, title: title, options: options, log: log}
}

// EscalateFatal attempts exactly one notification. Its failure is logged and
// swallowed so it can never mask the original condition. ctx may already be
// done; the notice is sent on a fresh bounded context in that case.
func (e *Escalator) EscalateFatal(ctx context.Context, cause error) {
	if e == nil || e.notifier == nil {
		return
	}
	if ctx == nil || ctx.Err() != nil {
		ctx = context.Background()
	}
	cctx, cancel := context.WithTimeout(ctx, escalationTimeout)
	defer cancel()

	msg := Message{Title: e.title, Body: FatalBody(cause), Options: e.options}
	if err := e.notifier.Notify(cctx, msg); err != nil {
		e.log.Warn("fatal notification failed", logx.Err(err))
	}
}

// FatalBody renders the escalation body for cause.
func FatalBody(cause error) string {
	attempts := 0
	var re *RetryExhaustedError
	if errors.As(cause, &re) {
		attempts = re.Attempts
		if re.Last != nil {
			cause = re.Last
		}
	}
	errText := "<nil>"
	if cause != nil {
		errText = cause.Error()
	}
	if attempts > 0 {
		return fmt.Sprintf("The program failed %d consecutive times and has exited.\n\nLast error:\n%s", attempts, errText)
	}
	return fmt.Sprintf("The program has exited.\n\nLast error:\n%s", errText)
}
