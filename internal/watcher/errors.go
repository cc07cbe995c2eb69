package watcher

import (
	"errors"
	"fmt"
	"strings"
)

// AuthError means the login handshake did not yield a usable handle.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	var b strings.Builder
	b.WriteString("auth failed")
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *AuthError) Unwrap() error { return e.Err }

// FetchReason classifies why a fetch did not produce a record list.
type FetchReason string

const (
	// ReasonUnparsable: the body is not the expected structured format.
	// This is how a silently expired session shows up (a login page is served).
	ReasonUnparsable FetchReason = "unparsable_response"
	// ReasonApplication: the payload parsed but carries a non-success code.
	ReasonApplication FetchReason = "application_error"
	// ReasonMalformed: success code, but the record list is absent or not a list.
	ReasonMalformed FetchReason = "malformed_payload"
	// ReasonTransport: the request itself failed (dial, timeout, bad handle).
	ReasonTransport FetchReason = "transport"
)

// FetchError is the typed failure of a Fetcher.
type FetchError struct {
	Reason FetchReason

	// Code is the application status code (ReasonApplication only).
	Code string
	// Status and ContentType describe the HTTP response when one was received.
	Status      int
	ContentType string

	Detail string
	Err    error
}

func (e *FetchError) Error() string {
	var b strings.Builder
	b.WriteString("fetch failed (")
	b.WriteString(string(e.Reason))
	b.WriteString(")")
	switch e.Reason {
	case ReasonApplication:
		fmt.Fprintf(&b, ": code=%s", e.Code)
	case ReasonUnparsable:
		fmt.Fprintf(&b, ": status=%d content-type=%q, session may have expired", e.Status, e.ContentType)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *FetchError) Unwrap() error { return e.Err }

// RetryExhaustedError is returned once every acquire+fetch attempt failed.
// It is fatal: the loop escalates and terminates.
type RetryExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("failed %d consecutive attempts: %v", e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Last }

// NotificationError wraps a failed delivery for one new record.
// It is logged only; the record stays seen.
type NotificationError struct {
	Identity string
	Err      error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify %s: %v", e.Identity, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

// IsRetryExhausted reports whether err carries a RetryExhaustedError.
func IsRetryExhausted(err error) bool {
	var re *RetryExhaustedError
	return errors.As(err, &re)
}

// FetchReasonOf returns the FetchReason carried by err, or "" if none.
func FetchReasonOf(err error) FetchReason {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Reason
	}
	return ""
}
