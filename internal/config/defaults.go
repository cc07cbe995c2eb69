package config

import (
	"strings"
	"time"
)

const (
	DefaultLoginURL   = "https://authserver.nju.edu.cn/authserver/login"
	DefaultServiceURL = "https://ehall.nju.edu.cn:443/login?service=https%3A%2F%2Fehall.nju.edu.cn%2FappShow%3FappId%3D4768574631264620"
	DefaultWarmupURL  = "https://ehall.nju.edu.cn/appShow?appId=4768574631264620"
	DefaultSourceURL  = "https://ehallapp.nju.edu.cn/jwapp/sys/cjcx/modules/cjcx/cxxscjd.do"
	DefaultUserAgent  = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

	DefaultRowsPath      = "datas.cxxscjd.rows"
	DefaultSuccessCode   = "0"
	DefaultIdentityField = "KCH"
	DefaultTitleTemplate = "New grade: {KCM}"
	DefaultMQTTTopic     = "gradewatch/notify"
	DefaultOpsAddr       = "127.0.0.1:9464"

	DefaultMinInterval   = 10 * time.Second
	DefaultMaxInterval   = 2 * time.Minute
	DefaultRetryDelay    = 30 * time.Second
	DefaultRetryAttempts = 3
	DefaultHTTPTimeout   = 20 * time.Second
	DefaultNotifyTimeout = 20 * time.Second
	DefaultNotifyRate    = 2
)

// DefaultBodyFields: course, credits, score.
var DefaultBodyFields = []BodyField{
	{Label: "Course", Field: "KCM"},
	{Label: "Credits", Field: "XF"},
	{Label: "Score", Field: "ZCJ"},
}

// Settings is the resolved form of Config: defaults applied, durations parsed.
type Settings struct {
	LoginURL      string
	ServiceURL    string
	WarmupURL     string
	UsernameField string
	PasswordField string

	SourceURL     string
	Referer       string
	IdentityField string
	RowsPath      []string
	SuccessCode   string

	MinInterval time.Duration
	MaxInterval time.Duration
	Attempts    int
	RetryDelay  time.Duration

	HTTPTimeout time.Duration
	UserAgent   string

	TitleTemplate string
	BodyFields    []BodyField
	NotifyRate    int
	NotifyTimeout time.Duration

	EscalationTitle string
}

// Resolve applies defaults and parses every duration. Validate reports the
// same parse errors; Resolve returns the first.
func Resolve(cfg *Config) (Settings, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	s := Settings{
		LoginURL:      or(cfg.Account.LoginURL, DefaultLoginURL),
		ServiceURL:    or(cfg.Account.ServiceURL, DefaultServiceURL),
		WarmupURL:     or(cfg.Account.WarmupURL, DefaultWarmupURL),
		UsernameField: or(cfg.Account.UsernameField, "username"),
		PasswordField: or(cfg.Account.PasswordField, "password"),

		SourceURL:     or(cfg.Source.URL, DefaultSourceURL),
		IdentityField: or(cfg.Source.IdentityField, DefaultIdentityField),
		RowsPath:      splitPath(or(cfg.Source.RowsPath, DefaultRowsPath)),
		SuccessCode:   or(cfg.Source.SuccessCode, DefaultSuccessCode),

		Attempts:  cfg.Retry.Attempts,
		UserAgent: or(cfg.HTTP.UserAgent, DefaultUserAgent),

		TitleTemplate: or(cfg.Notify.TitleTemplate, DefaultTitleTemplate),
		BodyFields:    cfg.Notify.BodyFields,
		NotifyRate:    cfg.Notify.RatePerSec,

		EscalationTitle: strings.TrimSpace(cfg.Escalation.Title),
	}
	if s.WarmupURL == "-" {
		s.WarmupURL = ""
	}
	s.Referer = or(cfg.Source.Referer, s.WarmupURL)
	if s.Attempts <= 0 {
		s.Attempts = DefaultRetryAttempts
	}
	if len(s.BodyFields) == 0 {
		s.BodyFields = DefaultBodyFields
	}
	if s.NotifyRate <= 0 {
		s.NotifyRate = DefaultNotifyRate
	}

	var err error
	if s.MinInterval, err = ParseDurationOrDefault("poll.min_interval", cfg.Poll.MinInterval, DefaultMinInterval); err != nil {
		return Settings{}, err
	}
	if s.MaxInterval, err = ParseDurationOrDefault("poll.max_interval", cfg.Poll.MaxInterval, DefaultMaxInterval); err != nil {
		return Settings{}, err
	}
	// An explicit "0s" retries back to back; only an unset delay gets the default.
	if s.RetryDelay, err = ParseDurationField("retry.delay", cfg.Retry.Delay); err != nil {
		return Settings{}, err
	}
	if strings.TrimSpace(cfg.Retry.Delay) == "" {
		s.RetryDelay = DefaultRetryDelay
	}
	if s.HTTPTimeout, err = ParseDurationOrDefault("http.timeout", cfg.HTTP.Timeout, DefaultHTTPTimeout); err != nil {
		return Settings{}, err
	}
	if s.NotifyTimeout, err = ParseDurationOrDefault("notify.timeout", cfg.Notify.Timeout, DefaultNotifyTimeout); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func or(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

func splitPath(p string) []string {
	var out []string
	for _, part := range strings.Split(p, ".") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
