package watcher

import (
	"context"
	"errors"
	"time"

	logx "gradewatch/pkg/logx"
)

// SessionProvider turns an Authenticator into "fresh handle or *AuthError".
// It never retries; that is the Retrier's job.
type SessionProvider struct {
	auth Authenticator
	log  logx.Logger
}

func NewSessionProvider(auth Authenticator, log logx.Logger) *SessionProvider {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &SessionProvider{auth: auth, log: log}
}

func (p *SessionProvider) Acquire(ctx context.Context) (Handle, error) {
	if p == nil || p.auth == nil {
		return nil, &AuthError{Reason: "no authenticator configured"}
	}
	start := time.Now()
	h, err := p.auth.Authenticate(ctx)
	if err != nil {
		var ae *AuthError
		if errors.As(err, &ae) {
			return nil, err
		}
		return nil, &AuthError{Err: err}
	}
	if h == nil {
		return nil, &AuthError{Reason: "authenticator returned no handle"}
	}
	p.log.Debug("session acquired", logx.Duration("took", time.Since(start)))
	return h, nil
}

// fetchTyped runs f.Fetch and normalizes untyped failures to ReasonTransport.
func fetchTyped(ctx context.Context, f Fetcher, h Handle) ([]Record, error) {
	if f == nil {
		return nil, &FetchError{Reason: ReasonTransport, Detail: "no fetcher configured"}
	}
	records, err := f.Fetch(ctx, h)
	if err == nil {
		return records, nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return nil, err
	}
	return nil, &FetchError{Reason: ReasonTransport, Err: err}
}
