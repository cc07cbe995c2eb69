package watcher

import (
	"time"

	"gradewatch/internal/eventbus"
)

// Event types published by the Loop.
const (
	EventBaseline     = "watch.baseline"
	EventCycle        = "watch.cycle"
	EventFetchFailed  = "watch.fetch_failed"
	EventNewRecord    = "watch.new_record"
	EventNotifyFailed = "watch.notify_failed"
	EventRecovered    = "watch.recovered"
	EventFatal        = "watch.fatal"
)

// WatchEvent is the payload of every watch.* event.
// Keep it flat; the audit journal stores it as JSON.
type WatchEvent struct {
	Phase    Phase  `json:"phase,omitempty"`
	Identity string `json:"identity,omitempty"`
	Title    string `json:"title,omitempty"`
	Seen     int    `json:"seen,omitempty"`
	New      int    `json:"new,omitempty"`
	Failed   int    `json:"failed,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Code     int    `json:"code,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (l *Loop) publish(typ string, ev WatchEvent) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
}
