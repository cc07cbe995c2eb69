package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "gradewatch/pkg/logx"
)

// fileStore appends one JSON object per line to <prefix>.events.jsonl.
type fileStore struct {
	log  logx.Logger
	path string

	mu   sync.Mutex
	f    *os.File
	next int64
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	eventsPath := filepath.Join(dir, base) + ".events.jsonl"

	// Continue numbering after whatever is already on disk.
	existing, err := readEntries(eventsPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	var next int64 = 1
	if n := len(existing); n > 0 {
		next = existing[n-1].ID + 1
	}

	f, err := os.OpenFile(eventsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	log.Debug("event journal opened", logx.String("path", eventsPath), logx.Int("existing", len(existing)))
	return &fileStore{log: log, path: eventsPath, f: f, next: next}, nil
}

func (s *fileStore) AppendEvent(_ context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrClosed
	}
	e.ID = s.next
	if err := json.NewEncoder(s.f).Encode(e); err != nil {
		return err
	}
	s.next++
	return nil
}

func (s *fileStore) RecentEvents(_ context.Context, limit int) ([]Entry, error) {
	s.mu.Lock()
	closed := s.f == nil
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	all, err := readEntries(s.path)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]Entry, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// readEntries skips lines that do not decode (a torn final write, say).
func readEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil || e.Type == "" {
			continue
		}
		out = append(out, e)
	}
	return out, sc.Err()
}
