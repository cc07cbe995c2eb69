package storage

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"gradewatch/internal/eventbus"
	logx "gradewatch/pkg/logx"
)

const appendTimeout = 2 * time.Second

// Recorder journals bus events with the given type prefix. Failures are
// logged and dropped; the journal never blocks the watcher.
type Recorder struct {
	store  Store
	runID  string
	prefix string
	log    logx.Logger
}

func NewRecorder(store Store, runID, prefix string, log logx.Logger) *Recorder {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Recorder{store: store, runID: runID, prefix: prefix, log: log}
}

// Listen subscribes to bus now and returns the journaling loop.
func (r *Recorder) Listen(bus eventbus.Bus) func(ctx context.Context) error {
	ch, unsub := bus.Subscribe(64)
	return func(ctx context.Context) error {
		defer unsub()
		return eventbus.Drain(ctx, ch, func(e eventbus.Event) { r.Record(ctx, e) })
	}
}

func (r *Recorder) Record(ctx context.Context, e eventbus.Event) {
	if r.store == nil || !strings.HasPrefix(e.Type, r.prefix) {
		return
	}
	entry, err := r.entry(e)
	if err != nil {
		r.log.Warn("event not journaled", logx.String("type", e.Type), logx.Err(err))
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), appendTimeout)
	defer cancel()
	if err := r.store.AppendEvent(actx, entry); err != nil {
		r.log.Warn("journal append failed", logx.String("type", e.Type), logx.Err(err))
	}
}

func (r *Recorder) entry(e eventbus.Event) (Entry, error) {
	entry := Entry{At: e.Time, RunID: r.runID, Type: e.Type}
	if e.Data == nil {
		return entry, nil
	}
	b, err := json.Marshal(e.Data)
	if err != nil {
		return Entry{}, err
	}
	var keys struct {
		Phase    string `json:"phase"`
		Identity string `json:"identity"`
	}
	_ = json.Unmarshal(b, &keys)
	entry.Phase = keys.Phase
	entry.Identity = keys.Identity
	entry.Payload = b
	return entry, nil
}
