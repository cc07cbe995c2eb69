package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures the journal.
//
// Driver values:
//   - "file": JSON Lines file, dependency-free
//   - "sqlite": SQLite database file
//
// An empty Driver or "none" disables the journal.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Entry is one journaled event. Keep it compact and schema-stable.
type Entry struct {
	ID       int64           `json:"id,omitempty"`
	At       time.Time       `json:"at"`
	RunID    string          `json:"run_id,omitempty"`
	Type     string          `json:"type"`
	Phase    string          `json:"phase,omitempty"`
	Identity string          `json:"identity,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Store is the journal API.
type Store interface {
	AppendEvent(ctx context.Context, e Entry) error
	// RecentEvents returns up to limit entries, newest first.
	RecentEvents(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}
