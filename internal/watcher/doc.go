// Package watcher implements the poll/session lifecycle of gradewatch.
//
// A Loop acquires an authenticated handle, takes a baseline of the records
// visible at startup, then keeps polling the record source at random
// intervals. Every record whose identity was not seen before produces exactly
// one notification. Fetch failures fall back to a bounded
// re-authenticate-and-fetch retry; once that budget is spent the failure is
// escalated and the loop terminates with a distinct exit status.
//
// The package is protocol-free: logging in, fetching and delivering are
// injected through the Authenticator, Fetcher and Notifier interfaces.
package watcher
