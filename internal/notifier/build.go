package notifier

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"gradewatch/internal/config"
	logx "gradewatch/pkg/logx"
)

// Backends builds every enabled backend in a fixed order: serverchan,
// shoutrrr, telegram, mqtt, console. runID seeds the default MQTT client id.
func Backends(cfg config.NotifyConfig, timeout time.Duration, runID string, log logx.Logger) ([]Backend, error) {
	var (
		out  []Backend
		errs []error
	)
	add := func(b Backend, err error) {
		if err != nil {
			errs = append(errs, err)
			return
		}
		out = append(out, b)
	}

	if c := cfg.ServerChan; c != nil && c.Enabled {
		add(NewServerChan(c.SendKey, c.Endpoint, &http.Client{Timeout: timeout}))
	}
	if c := cfg.Shoutrrr; c != nil && c.Enabled {
		add(NewShoutrrr(c.URLs, timeout))
	}
	if c := cfg.Telegram; c != nil && c.Enabled {
		add(NewTelegram(TelegramConfig{
			Token:     c.Token,
			ChatID:    c.ChatID,
			ThreadID:  c.ThreadID,
			ParseMode: c.ParseMode,
		}))
	}
	if c := cfg.MQTT; c != nil && c.Enabled {
		id := c.ClientID
		if id == "" && runID != "" {
			id = "gradewatch-" + runID
		}
		add(NewMQTT(MQTTConfig{
			Broker:   c.Broker,
			Topic:    c.Topic,
			ClientID: id,
			Username: c.Username,
			Password: c.Password,
			QoS:      c.QoS,
			Retained: c.Retained,
		}, log.With(logx.String("backend", "mqtt"))))
	}
	if c := cfg.Console; c != nil && c.Enabled {
		add(NewConsole(log.With(logx.String("backend", "console"))), nil)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("notify: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrNoBackends
	}
	return out, nil
}

// FromSettings builds the formatter from resolved settings.
func FromSettings(s config.Settings, options map[string]string) Formatter {
	fields := make([]BodyField, 0, len(s.BodyFields))
	for _, bf := range s.BodyFields {
		fields = append(fields, BodyField{Label: bf.Label, Field: bf.Field})
	}
	return Formatter{TitleTemplate: s.TitleTemplate, BodyFields: fields, Options: options}
}
