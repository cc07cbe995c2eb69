package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings ("30s", "2m"). Zero values fall back
// to the defaults documented on each section.
type Config struct {
	Account    AccountConfig    `json:"account"`
	Source     SourceConfig     `json:"source"`
	Poll       PollConfig       `json:"poll"`
	Retry      RetryConfig      `json:"retry"`
	HTTP       HTTPConfig       `json:"http"`
	Notify     NotifyConfig     `json:"notify"`
	Escalation EscalationConfig `json:"escalation"`
	Logging    LoggingConfig    `json:"logging"`

	Storage   *StorageConfig  `json:"storage,omitempty"`
	Ops       OpsConfig       `json:"ops,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	Systemd   SystemdConfig   `json:"systemd,omitempty"`
}

// AccountConfig holds the identity-provider credentials and endpoints.
//
// Defaults:
//   - login_url: DefaultLoginURL
//   - service_url: DefaultServiceURL
//   - warmup_url: DefaultWarmupURL (set "-" to skip the warmup GET)
//   - username_field / password_field: "username" / "password"
type AccountConfig struct {
	Username string `json:"username"`
	Password string `json:"password"` // never logged

	LoginURL   string `json:"login_url,omitempty"`
	ServiceURL string `json:"service_url,omitempty"`
	WarmupURL  string `json:"warmup_url,omitempty"`

	UsernameField string `json:"username_field,omitempty"`
	PasswordField string `json:"password_field,omitempty"`
}

// SourceConfig describes the record listing endpoint.
//
// Defaults:
//   - url: DefaultSourceURL
//   - referer: account.warmup_url
//   - identity_field: "KCH"
//   - rows_path: "datas.cxxscjd.rows"
//   - success_code: "0"
type SourceConfig struct {
	URL           string `json:"url,omitempty"`
	Referer       string `json:"referer,omitempty"`
	IdentityField string `json:"identity_field,omitempty"`
	RowsPath      string `json:"rows_path,omitempty"`
	SuccessCode   string `json:"success_code,omitempty"`
}

// PollConfig bounds the uniformly random wait between polls.
// Defaults: min_interval "10s", max_interval "2m".
type PollConfig struct {
	MinInterval string `json:"min_interval,omitempty"`
	MaxInterval string `json:"max_interval,omitempty"`
}

// RetryConfig controls re-authenticate-and-fetch attempts.
// Defaults: attempts 3, delay "30s".
type RetryConfig struct {
	Attempts int    `json:"attempts,omitempty"`
	Delay    string `json:"delay,omitempty"`
}

// HTTPConfig applies to the login and listing requests.
// Defaults: timeout "20s", user_agent DefaultUserAgent.
type HTTPConfig struct {
	Timeout   string `json:"timeout,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// NotifyConfig configures message rendering and delivery backends.
// At least one backend must be enabled.
//
// Defaults:
//   - title_template: "New grade: {KCM}"
//   - body_fields: Course/KCM, Credits/XF, Score/ZCJ
//   - rate_per_sec: 2
//   - timeout: "20s" (per backend call)
type NotifyConfig struct {
	TitleTemplate string            `json:"title_template,omitempty"`
	BodyFields    []BodyField       `json:"body_fields,omitempty"`
	Options       map[string]string `json:"options,omitempty"`
	RatePerSec    int               `json:"rate_per_sec,omitempty"`
	Timeout       string            `json:"timeout,omitempty"`

	ServerChan *ServerChanConfig `json:"serverchan,omitempty"`
	Shoutrrr   *ShoutrrrConfig   `json:"shoutrrr,omitempty"`
	Telegram   *TelegramConfig   `json:"telegram,omitempty"`
	MQTT       *MQTTConfig       `json:"mqtt,omitempty"`
	Console    *ConsoleConfig    `json:"console,omitempty"`
}

type BodyField struct {
	Label string `json:"label"`
	Field string `json:"field"`
}

type ServerChanConfig struct {
	Enabled bool   `json:"enabled"`
	SendKey string `json:"sendkey"` // never logged
	// Endpoint overrides the URL derived from the key.
	Endpoint string `json:"endpoint,omitempty"`
}

// ShoutrrrConfig sends through any shoutrrr service URL
// (ntfy://, discord://, smtp://, ...).
type ShoutrrrConfig struct {
	Enabled bool     `json:"enabled"`
	URLs    []string `json:"urls"` // never logged
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	Token    string `json:"token"` // never logged
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
	// ParseMode is passed through ("", "HTML", "Markdown").
	ParseMode string `json:"parse_mode,omitempty"`
}

// MQTTConfig publishes each message as JSON.
// Defaults: topic "gradewatch/notify", qos 0, client_id "gradewatch-<run id>".
type MQTTConfig struct {
	Enabled  bool   `json:"enabled"`
	Broker   string `json:"broker"`
	Topic    string `json:"topic,omitempty"`
	ClientID string `json:"client_id,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"` // never logged
	QoS      byte   `json:"qos,omitempty"`
	Retained bool   `json:"retained,omitempty"`
}

// ConsoleConfig logs each message at info level. Handy for dry runs.
type ConsoleConfig struct {
	Enabled bool `json:"enabled"`
}

// EscalationConfig: title of the one-shot fatal notice. Default "Program error".
type EscalationConfig struct {
	Title string `json:"title,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig enables the audit journal of watch events.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./gradewatch.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// OpsConfig controls the optional operations HTTP server
// (/healthz, /metrics, pprof).
//
// Prefer a loopback addr. A non-loopback addr needs a token or allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`         // default: "127.0.0.1:9464"
	Token         string `json:"token,omitempty"`        // bearer token, never logged
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Metrics       *bool  `json:"metrics,omitempty"`      // default: true
	PprofPrefix   string `json:"pprof_prefix,omitempty"` // "" disables pprof

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

type TelemetryConfig struct {
	SentryDSN   string `json:"sentry_dsn,omitempty"`
	Environment string `json:"environment,omitempty"`
}

// SystemdConfig: when notify is true the daemon reports READY, STATUS and
// WATCHDOG through sd_notify. Outside systemd it is a no-op.
type SystemdConfig struct {
	Notify bool `json:"notify,omitempty"`
}
