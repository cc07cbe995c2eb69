package app

import (
	"context"
	"strings"

	"gradewatch/internal/config"
	logx "gradewatch/pkg/logx"
)

// reloadLoop applies validated config reloads. Only logging is applied live;
// every other section is reported as needing a restart.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			last = a.applyReload(last, next)
		}
	}
}

func (a *App) applyReload(prev, next *config.Config) *config.Config {
	if next == nil {
		return prev
	}
	if prev == nil {
		prev = &config.Config{}
	}
	changed, attrs := config.SummarizeConfigChange(prev, next)
	if len(changed) == 0 {
		a.log.Info("config reloaded (no changes)")
		return next
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(changed, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	if next.Logging != prev.Logging {
		a.logs.Apply(mapLogConfig(next.Logging))
	}
	if pending := config.RestartRequired(changed); len(pending) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(pending, ",")),
		)
	}
	a.log.Info("config reloaded", logx.String("changed", strings.Join(changed, ",")))
	return next
}
