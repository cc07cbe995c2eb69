package app

import (
	"fmt"
	"sync"
	"time"

	"gradewatch/internal/eventbus"
	rtsup "gradewatch/internal/runtime/supervisor"
	"gradewatch/internal/watcher"
)

// Status is the loop's externally visible state, rebuilt from bus events so
// nothing outside the loop goroutine touches loop state.
type Status struct {
	mu          sync.Mutex
	runID       string
	started     time.Time
	staleAfter  time.Duration
	phase       string
	cycles      uint64
	seen        int
	newTotal    uint64
	failedTotal uint64
	lastSuccess time.Time
	lastError   string
	fatal       bool

	now func() time.Time
	sup func() rtsup.Snapshot
}

// Health is the /healthz body.
type Health struct {
	Status      string          `json:"status"`
	RunID       string          `json:"run_id"`
	Phase       string          `json:"phase"`
	Uptime      string          `json:"uptime"`
	Cycles      uint64          `json:"cycles"`
	Seen        int             `json:"seen"`
	NewTotal    uint64          `json:"new_total"`
	FailedTotal uint64          `json:"notify_failed_total"`
	LastSuccess *time.Time      `json:"last_success,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	Supervisor  *rtsup.Snapshot `json:"supervisor,omitempty"`
}

// NewStatus: staleAfter is how long without a successful cycle before
// /healthz reports unhealthy; 0 disables the check.
func NewStatus(runID string, staleAfter time.Duration) *Status {
	return &Status{
		runID:      runID,
		staleAfter: staleAfter,
		phase:      string(watcher.PhaseBootstrapping),
		now:        time.Now,
		started:    time.Now(),
	}
}

// Observe folds one watch event into the status.
func (s *Status) Observe(e eventbus.Event) {
	ev, ok := e.Data.(watcher.WatchEvent)
	if !ok {
		return
	}
	at := e.Time
	if at.IsZero() {
		at = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch e.Type {
	case watcher.EventBaseline:
		s.phase = string(watcher.PhasePolling)
		s.seen = ev.Seen
		s.lastSuccess = at
	case watcher.EventCycle:
		s.phase = string(watcher.PhasePolling)
		s.cycles++
		s.seen = ev.Seen
		s.lastSuccess = at
	case watcher.EventFetchFailed:
		s.phase = string(watcher.PhaseRecovering)
		s.lastError = ev.Error
	case watcher.EventNewRecord:
		s.newTotal++
	case watcher.EventNotifyFailed:
		s.failedTotal++
		s.lastError = ev.Error
	case watcher.EventFatal:
		s.phase = "terminated"
		s.fatal = true
		s.lastError = ev.Error
	}
}

// Line is the one-line summary used for the systemd status.
func (s *Status) Line() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSuccess.IsZero() {
		return s.phase
	}
	return fmt.Sprintf("%s: %d seen, %d new, %d cycles", s.phase, s.seen, s.newTotal, s.cycles)
}

// Health reports ok=false after a fatal exit or when no cycle succeeded
// within staleAfter.
func (s *Status) Health() (bool, any) {
	s.mu.Lock()
	now := s.now()
	h := Health{
		Status:      "ok",
		RunID:       s.runID,
		Phase:       s.phase,
		Uptime:      now.Sub(s.started).Truncate(time.Second).String(),
		Cycles:      s.cycles,
		Seen:        s.seen,
		NewTotal:    s.newTotal,
		FailedTotal: s.failedTotal,
		LastError:   s.lastError,
	}
	ok := !s.fatal
	ref := s.lastSuccess
	if ref.IsZero() {
		ref = s.started
	} else {
		ls := s.lastSuccess
		h.LastSuccess = &ls
	}
	if s.staleAfter > 0 && now.Sub(ref) > s.staleAfter {
		ok = false
	}
	sup := s.sup
	s.mu.Unlock()

	if sup != nil {
		snap := sup()
		h.Supervisor = &snap
	}
	if !ok {
		h.Status = "unhealthy"
	}
	return ok, h
}

func (s *Status) attachSupervisor(fn func() rtsup.Snapshot) {
	s.mu.Lock()
	s.sup = fn
	s.mu.Unlock()
}
