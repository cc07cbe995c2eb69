package config

import (
	"reflect"
	"sort"
	"strings"

	logx "gradewatch/pkg/logx"
)

// Sections that take effect without a restart.
var hotSections = map[string]bool{"logging": true}

// SummarizeConfigChange returns the changed section names and safe fields for
// logging them. Secrets (passwords, tokens, send keys, URLs carrying
// credentials) are only ever reported as "set"/"unset".
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	o, n := oldCfg.Account, newCfg.Account
	if o.Username != n.Username || o.Password != n.Password || o.LoginURL != n.LoginURL ||
		o.ServiceURL != n.ServiceURL || o.WarmupURL != n.WarmupURL ||
		o.UsernameField != n.UsernameField || o.PasswordField != n.PasswordField {
		changed = append(changed, "account")
		attrs = append(attrs,
			logx.Bool("account.username_changed", o.Username != n.Username),
			logx.Bool("account.password_changed", o.Password != n.Password),
			logx.String("account.login_url", n.LoginURL),
		)
	}
	if oldCfg.Source != newCfg.Source {
		changed = append(changed, "source")
		attrs = append(attrs,
			logx.String("source.url", newCfg.Source.URL),
			logx.String("source.identity_field", newCfg.Source.IdentityField),
		)
	}
	if oldCfg.Poll != newCfg.Poll {
		changed = append(changed, "poll")
		attrs = append(attrs,
			logx.String("poll.min_interval", newCfg.Poll.MinInterval),
			logx.String("poll.max_interval", newCfg.Poll.MaxInterval),
		)
	}
	if oldCfg.Retry != newCfg.Retry {
		changed = append(changed, "retry")
		attrs = append(attrs,
			logx.Int("retry.attempts", newCfg.Retry.Attempts),
			logx.String("retry.delay", newCfg.Retry.Delay),
		)
	}
	if oldCfg.HTTP != newCfg.HTTP {
		changed = append(changed, "http")
		attrs = append(attrs, logx.String("http.timeout", newCfg.HTTP.Timeout))
	}
	if !reflect.DeepEqual(oldCfg.Notify, newCfg.Notify) {
		changed = append(changed, "notify")
		attrs = append(attrs, logx.Strings("notify.backends", EnabledBackends(newCfg.Notify)))
	}
	if oldCfg.Escalation != newCfg.Escalation {
		changed = append(changed, "escalation")
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		if newCfg.Storage != nil {
			attrs = append(attrs, logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)))
		}
	}
	if !reflect.DeepEqual(oldCfg.Ops, newCfg.Ops) {
		changed = append(changed, "ops")
		attrs = append(attrs,
			logx.Bool("ops.enabled", newCfg.Ops.Enabled),
			logx.String("ops.addr", strings.TrimSpace(newCfg.Ops.Addr)),
			logx.Bool("ops.token_set", strings.TrimSpace(newCfg.Ops.Token) != ""),
		)
	}
	if oldCfg.Telemetry != newCfg.Telemetry {
		changed = append(changed, "telemetry")
		attrs = append(attrs, logx.Bool("telemetry.sentry_set", newCfg.Telemetry.SentryDSN != ""))
	}
	if oldCfg.Systemd != newCfg.Systemd {
		changed = append(changed, "systemd")
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired filters changed down to the sections that only apply on
// the next start.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		if !hotSections[s] {
			out = append(out, s)
		}
	}
	return out
}

// EnabledBackends lists the enabled notify backends in a fixed order.
func EnabledBackends(n NotifyConfig) []string {
	var out []string
	if n.ServerChan != nil && n.ServerChan.Enabled {
		out = append(out, "serverchan")
	}
	if n.Shoutrrr != nil && n.Shoutrrr.Enabled {
		out = append(out, "shoutrrr")
	}
	if n.Telegram != nil && n.Telegram.Enabled {
		out = append(out, "telegram")
	}
	if n.MQTT != nil && n.MQTT.Enabled {
		out = append(out, "mqtt")
	}
	if n.Console != nil && n.Console.Enabled {
		out = append(out, "console")
	}
	return out
}
