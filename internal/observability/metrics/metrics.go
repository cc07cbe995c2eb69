// Package metrics exposes Prometheus metrics for the watch loop. Everything is
// derived from watch.* bus events, so the loop itself has no metrics
// dependency.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"gradewatch/internal/eventbus"
	"gradewatch/internal/watcher"
)

const namespace = "gradewatch"

// WatchMetrics holds the loop metrics and the registry they live in.
type WatchMetrics struct {
	CyclesTotal        prometheus.Counter
	FetchFailures      *prometheus.CounterVec // by reason
	RecoveriesTotal    prometheus.Counter
	NewRecordsTotal    prometheus.Counter
	NotifyFailures     prometheus.Counter
	FatalTotal         *prometheus.CounterVec // by exit code
	SeenRecords        prometheus.Gauge
	LastSuccessSeconds prometheus.Gauge
	BusDropped         prometheus.GaugeFunc

	registry *prometheus.Registry
}

// New registers the metrics (plus Go and process collectors) in a fresh
// registry. dropped may be nil.
func New(dropped func() uint64) (*WatchMetrics, error) {
	reg := prometheus.NewRegistry()
	m := &WatchMetrics{
		registry: reg,
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed poll cycles.",
		}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Failed fetches during polling, by reason.",
		}, []string{"reason"}),
		RecoveriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recoveries_total",
			Help:      "Successful session recoveries.",
		}),
		NewRecordsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "new_records_total",
			Help:      "New records notified.",
		}),
		NotifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_failures_total",
			Help:      "New records whose notification failed.",
		}),
		FatalTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fatal_total",
			Help:      "Fatal loop exits, by exit code.",
		}, []string{"code"}),
		SeenRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "seen_records",
			Help:      "Distinct record identities seen this run.",
		}),
		LastSuccessSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful cycle.",
		}),
	}
	if dropped == nil {
		dropped = func() uint64 { return 0 }
	}
	m.BusDropped = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "bus_dropped_events",
		Help:      "Events dropped by the in-process bus because a subscriber was full.",
	}, func() float64 { return float64(dropped()) })

	for _, c := range []prometheus.Collector{
		m.CyclesTotal, m.FetchFailures, m.RecoveriesTotal, m.NewRecordsTotal,
		m.NotifyFailures, m.FatalTotal, m.SeenRecords, m.LastSuccessSeconds, m.BusDropped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

// Registry is what the ops server exposes on /metrics.
func (m *WatchMetrics) Registry() *prometheus.Registry { return m.registry }

// Observe updates metrics from one bus event. Unknown events are ignored.
func (m *WatchMetrics) Observe(e eventbus.Event) {
	ev, _ := e.Data.(watcher.WatchEvent)
	switch e.Type {
	case watcher.EventBaseline:
		m.SeenRecords.Set(float64(ev.Seen))
		m.LastSuccessSeconds.Set(float64(eventTime(e).Unix()))
	case watcher.EventCycle:
		m.CyclesTotal.Inc()
		m.SeenRecords.Set(float64(ev.Seen))
		m.LastSuccessSeconds.Set(float64(eventTime(e).Unix()))
	case watcher.EventFetchFailed:
		reason := ev.Reason
		if reason == "" {
			reason = "unknown"
		}
		m.FetchFailures.WithLabelValues(reason).Inc()
	case watcher.EventRecovered:
		m.RecoveriesTotal.Inc()
	case watcher.EventNewRecord:
		m.NewRecordsTotal.Inc()
	case watcher.EventNotifyFailed:
		m.NotifyFailures.Inc()
	case watcher.EventFatal:
		m.FatalTotal.WithLabelValues(fmt.Sprint(ev.Code)).Inc()
	}
}

// Listen subscribes to bus now and returns the loop feeding Observe.
func (m *WatchMetrics) Listen(bus eventbus.Bus) func(ctx context.Context) error {
	return eventbus.Listen(bus, 64, m.Observe)
}

func eventTime(e eventbus.Event) time.Time {
	if e.Time.IsZero() {
		return time.Now()
	}
	return e.Time
}
