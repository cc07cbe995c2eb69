package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	logx "gradewatch/pkg/logx"
)

// Validate reports every problem in cfg at once, joined with errors.Join.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if strings.TrimSpace(cfg.Account.Username) == "" {
		add("account.username is required")
	}
	if cfg.Account.Password == "" {
		add("account.password is required")
	}
	for path, raw := range map[string]string{
		"account.login_url":   cfg.Account.LoginURL,
		"account.service_url": cfg.Account.ServiceURL,
		"source.url":          cfg.Source.URL,
	} {
		if err := checkURL(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	if w := strings.TrimSpace(cfg.Account.WarmupURL); w != "-" {
		if err := checkURL("account.warmup_url", w); err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.Retry.Attempts < 0 {
		add("retry.attempts must be >= 1")
	}

	durations := map[string]string{
		"poll.min_interval": cfg.Poll.MinInterval,
		"poll.max_interval": cfg.Poll.MaxInterval,
		"retry.delay":       cfg.Retry.Delay,
		"http.timeout":      cfg.HTTP.Timeout,
		"notify.timeout":    cfg.Notify.Timeout,
		"ops.read_timeout":  cfg.Ops.ReadTimeout,
		"ops.write_timeout": cfg.Ops.WriteTimeout,
		"ops.idle_timeout":  cfg.Ops.IdleTimeout,
	}
	if cfg.Storage != nil {
		durations["storage.busy_timeout"] = cfg.Storage.BusyTimeout
	}
	durOK := true
	for path, raw := range durations {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
			durOK = false
		}
	}
	if durOK {
		if s, err := Resolve(cfg); err == nil && s.MinInterval > s.MaxInterval {
			add("poll.min_interval (%s) must not exceed poll.max_interval (%s)", s.MinInterval, s.MaxInterval)
		}
	}

	errs = append(errs, validateNotify(cfg.Notify)...)

	if !logx.ValidLevel(cfg.Logging.Level) {
		add("logging.level: unknown level %q", cfg.Logging.Level)
	}
	if cfg.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
		case "", "none", "file", "sqlite":
		default:
			add("storage.driver: unknown driver %q", cfg.Storage.Driver)
		}
	}
	return errors.Join(errs...)
}

func validateNotify(n NotifyConfig) []error {
	var errs []error
	enabled := 0
	if c := n.ServerChan; c != nil && c.Enabled {
		enabled++
		if strings.TrimSpace(c.SendKey) == "" {
			errs = append(errs, errors.New("notify.serverchan.sendkey is required"))
		}
	}
	if c := n.Shoutrrr; c != nil && c.Enabled {
		enabled++
		if len(c.URLs) == 0 {
			errs = append(errs, errors.New("notify.shoutrrr.urls is required"))
		}
	}
	if c := n.Telegram; c != nil && c.Enabled {
		enabled++
		if strings.TrimSpace(c.Token) == "" || c.ChatID == 0 {
			errs = append(errs, errors.New("notify.telegram needs token and chat_id"))
		}
	}
	if c := n.MQTT; c != nil && c.Enabled {
		enabled++
		if strings.TrimSpace(c.Broker) == "" {
			errs = append(errs, errors.New("notify.mqtt.broker is required"))
		}
		if c.QoS > 2 {
			errs = append(errs, fmt.Errorf("notify.mqtt.qos must be 0, 1 or 2 (got %d)", c.QoS))
		}
	}
	if c := n.Console; c != nil && c.Enabled {
		enabled++
	}
	if enabled == 0 {
		errs = append(errs, errors.New("notify: at least one backend must be enabled"))
	}
	for i, f := range n.BodyFields {
		if strings.TrimSpace(f.Field) == "" {
			errs = append(errs, fmt.Errorf("notify.body_fields[%d].field is required", i))
		}
	}
	if n.RatePerSec < 0 {
		errs = append(errs, errors.New("notify.rate_per_sec must be >= 0"))
	}
	return errs
}

// checkURL accepts "" (default applies) or an absolute http(s) URL.
func checkURL(path, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("%s: must be an absolute http(s) URL", path)
	}
	return nil
}
