package auth

import (
	"net/http"
	"time"
)

// Session is an authenticated cookie session. It satisfies watcher.Handle.
// A Session is never refreshed in place; callers log in again instead.
type Session struct {
	client    *http.Client
	userAgent string
	acquired  time.Time
}

func (s *Session) AcquiredAt() time.Time { return s.acquired }

// Client returns the HTTP client carrying the session cookies.
func (s *Session) Client() *http.Client { return s.client }

func (s *Session) UserAgent() string { return s.userAgent }
