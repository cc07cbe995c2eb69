// Package app wires gradewatch together: config, logging, the watch loop and
// the supervised auxiliaries around it.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"gradewatch/internal/auth"
	"gradewatch/internal/config"
	"gradewatch/internal/eventbus"
	"gradewatch/internal/notifier"
	"gradewatch/internal/observability/metrics"
	"gradewatch/internal/observability/ops"
	rtsup "gradewatch/internal/runtime/supervisor"
	"gradewatch/internal/source"
	"gradewatch/internal/storage"
	"gradewatch/internal/telemetry"
	"gradewatch/internal/watcher"
	logx "gradewatch/pkg/logx"
	"gradewatch/pkg/systemd"
)

// Exit statuses besides the loop's own 0, 1 and 2.
const (
	// ExitStartupFailed: the app cannot be built or started (invalid config,
	// unopenable journal, ...).
	ExitStartupFailed = 3
	// ExitCommandFailed: a one-shot command (check, notify-test, journal) or
	// the command line itself failed.
	ExitCommandFailed = 4
)

const (
	telemetryFlushTimeout = 5 * time.Second
	shutdownTimeout       = 8 * time.Second
)

// App holds every long-lived component. Build it with New, then call one of
// Run, Check or NotifyTest.
type App struct {
	version string
	runID   string

	cfgm     *config.Manager
	cfg      *config.Config
	settings config.Settings

	log  logx.Logger
	logs *logx.Service
	bus  *eventbus.MemBus

	auth      *auth.CAS
	fetcher   *source.Fetcher
	notif     *notifier.Service
	formatter notifier.Formatter

	status  *Status
	sd      *systemd.Notifier
	store   storage.Store
	metrics *metrics.WatchMetrics
	ops     *ops.Server
	report  *telemetry.Reporter
	sup     *rtsup.Supervisor
}

// New loads and validates the config at cfgPath and builds the core
// components. Nothing touches the network yet.
func New(cfgPath, version string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	settings, err := config.Resolve(cfg)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logs, base := logx.New(mapLogConfig(cfg.Logging))
	base = base.With(logx.String("run_id", runID))
	log := base.With(logx.String("comp", "app"))
	cfgm.SetLogger(base.With(logx.String("comp", "config")))

	backends, err := notifier.Backends(cfg.Notify, settings.NotifyTimeout, runID, base.With(logx.String("comp", "notifier")))
	if err != nil {
		_ = logs.Close()
		return nil, err
	}

	a := &App{
		version:  version,
		runID:    runID,
		cfgm:     cfgm,
		cfg:      cfg,
		settings: settings,
		log:      log,
		logs:     logs,
		bus:      eventbus.New(),
		auth:     auth.NewCAS(mapAuthConfig(cfg, settings), auth.WithLogger(base.With(logx.String("comp", "auth")))),
		fetcher:  source.New(mapSourceConfig(settings), base.With(logx.String("comp", "source"))),
		notif: notifier.New(backends, notifier.Options{
			RatePerSec: settings.NotifyRate,
			Timeout:    settings.NotifyTimeout,
		}, base.With(logx.String("comp", "notifier"))),
		formatter: notifier.FromSettings(settings, cfg.Notify.Options),
		status:    NewStatus(runID, staleAfter(settings)),
		sd:        systemd.New(cfg.Systemd.Notify),
	}
	return a, nil
}

func (a *App) RunID() string { return a.runID }

func (a *App) Logger() logx.Logger { return a.log }

// Run starts the auxiliaries, runs the watch loop until it ends and shuts
// everything down. The result is the process exit status.
func (a *App) Run(ctx context.Context) int {
	if err := a.start(ctx); err != nil {
		a.log.Error("startup failed", logx.Err(err))
		a.shutdown(context.Background())
		return ExitStartupFailed
	}
	a.log.Info("gradewatch started",
		logx.String("version", a.version),
		logx.Strings("backends", a.notif.Backends()),
		logx.Duration("min_interval", a.settings.MinInterval),
		logx.Duration("max_interval", a.settings.MaxInterval),
		logx.Int("attempts", a.settings.Attempts),
	)

	res := a.newLoop().Run(ctx)
	switch {
	case res.Code == watcher.ExitStopped:
		a.log.Info("stopped by user", logx.String("phase", string(res.Phase)))
	default:
		a.report.CaptureFatal(res.Err, string(res.Phase), res.Code)
		if !a.report.Flush(telemetryFlushTimeout) {
			a.log.Warn("telemetry flush timed out")
		}
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	a.shutdown(stopCtx)
	return res.Code
}

func (a *App) newLoop() *watcher.Loop {
	base := a.log.With(logx.String("comp", "watch"))
	return watcher.New(mapLoopConfig(a.settings), watcher.Deps{
		Auth:      a.auth,
		Fetcher:   a.fetcher,
		Notifier:  a.notif,
		Formatter: a.formatter,
		Escalator: watcher.NewEscalator(a.notif, a.settings.EscalationTitle, a.cfg.Notify.Options,
			base.With(logx.String("comp", "escalator"))),
		Bus: a.bus,
		Log: base,
	})
}

// start brings up everything around the loop. Subscriptions are taken before
// start returns so no loop event is missed.
func (a *App) start(ctx context.Context) error {
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		// Auxiliaries are optional; their failure never stops the watcher.
		rtsup.WithCancelOnError(false),
	)
	a.status.attachSupervisor(a.sup.Snapshot)

	var err error
	a.report, err = telemetry.New(telemetry.Config{
		DSN:         a.cfg.Telemetry.SentryDSN,
		Environment: a.cfg.Telemetry.Environment,
		Release:     a.version,
		RunID:       a.runID,
	}, a.log.With(logx.String("comp", "telemetry")))
	if err != nil {
		return err
	}

	if sc, enabled, err := mapStorageConfig(a.cfg); err != nil {
		return err
	} else if enabled {
		st, err := storage.Open(sc, a.log.With(logx.String("comp", "storage")))
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		a.store = st
		rec := storage.NewRecorder(st, a.runID, "watch.", a.log.With(logx.String("comp", "journal")))
		a.sup.Go("storage.recorder", rec.Listen(a.bus))
		a.log.Info("journal enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	a.sup.Go("status", eventbus.Listen(a.bus, 64, a.observe))
	if iv := a.sd.WatchdogInterval(); iv > 0 {
		a.sup.Go0("systemd.watchdog", func(c context.Context) { a.watchdog(c, iv/2) })
	}

	opsCfg, err := mapOpsConfig(a.cfg.Ops)
	if err != nil {
		return err
	}
	if opsCfg.Enabled {
		var gatherer prometheus.Gatherer
		if opsCfg.Metrics {
			m, err := metrics.New(a.bus.Dropped)
			if err != nil {
				return err
			}
			a.metrics = m
			gatherer = m.Registry()
			a.sup.Go("metrics", m.Listen(a.bus))
		}
		a.ops = ops.New(opsCfg, gatherer, a.status.Health, a.log.With(logx.String("comp", "ops")))
		a.ops.Start(a.sup.Context())
	}

	reloads := a.cfgm.Subscribe(4)
	a.sup.Go0("config.reload", func(c context.Context) { a.reloadLoop(c, reloads) })
	a.sup.GoRestart("config.watch", a.cfgm.Watch,
		rtsup.WithRestartBackoff(time.Second, time.Minute),
	)
	return nil
}

// observe mirrors loop events into the status and systemd.
func (a *App) observe(e eventbus.Event) {
	a.status.Observe(e)
	a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))

	var err error
	switch e.Type {
	case watcher.EventBaseline:
		if err = a.sd.Ready(); err == nil {
			err = a.sd.Status(a.status.Line())
		}
	case watcher.EventCycle, watcher.EventFetchFailed, watcher.EventRecovered, watcher.EventFatal:
		err = a.sd.Status(a.status.Line())
	}
	if err != nil {
		a.log.Debug("sd_notify failed", logx.Err(err))
	}
}

// watchdog pings systemd while the loop is healthy. A stale loop stops the
// pings and lets systemd restart the unit.
func (a *App) watchdog(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if ok, _ := a.status.Health(); ok {
				_ = a.sd.Watchdog()
			}
		}
	}
}

// shutdown stops auxiliaries in dependency order, each step bounded.
func (a *App) shutdown(ctx context.Context) {
	_ = a.sd.Stopping()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("ops", 2*time.Second, func(c context.Context) error {
		if a.ops != nil {
			a.ops.Stop(c)
		}
		return nil
	})
	// Cancel then wait, so subscribers flush what the loop already published.
	step("supervisor", 3*time.Second, func(c context.Context) error {
		if a.sup == nil {
			return nil
		}
		return a.sup.Stop(c)
	})
	step("notifier", 2*time.Second, func(context.Context) error { return a.notif.Close() })
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
}
