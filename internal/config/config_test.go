package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
account:
  username: "201250000"
  password: "hunter2"
poll:
  min_interval: 15s
  max_interval: 1m
notify:
  options:
    tags: grades
  serverchan:
    enabled: true
    sendkey: SCT123
logging:
  level: info
  console: true
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadYAML(t *testing.T) {
	m := NewManager(writeFile(t, "gradewatch.yaml", validYAML))
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Same(t, cfg, m.Get())
	assert.Equal(t, "201250000", cfg.Account.Username)
	assert.Equal(t, "grades", cfg.Notify.Options["tags"])
	require.NotNil(t, cfg.Notify.ServerChan)
	assert.True(t, cfg.Notify.ServerChan.Enabled)
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := Decode("c.yaml", []byte("account:\n  usernme: x\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "usernme")

	for _, body := range []string{`{"poll":{}} {}`, `{"poll":{}} {"poll":{}}`, `{"poll":{}} x`} {
		_, err = Decode("c.json", []byte(body))
		require.Error(t, err, body)
		assert.Contains(t, err.Error(), "trailing data", body)
	}
}

func TestDecodeEmptyYAML(t *testing.T) {
	cfg, err := Decode("c.yml", []byte("# nothing yet\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Account.Username)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := &Config{
		Poll:    PollConfig{MinInterval: "5m", MaxInterval: "1m"},
		Retry:   RetryConfig{Delay: "30"},
		Source:  SourceConfig{URL: "/relative"},
		Logging: LoggingConfig{Level: "loud"},
	}
	err := Validate(cfg)
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"account.username is required",
		"account.password is required",
		"source.url: must be an absolute http(s) URL",
		"retry.delay",
		"missing a unit",
		"at least one backend",
		"logging.level",
	} {
		assert.Contains(t, msg, want)
	}

	cfg.Retry.Delay = ""
	assert.Contains(t, Validate(cfg).Error(), "must not exceed poll.max_interval")
}

func TestValidateAcceptsMinimal(t *testing.T) {
	cfg, err := Decode("c.yaml", []byte(validYAML))
	require.NoError(t, err)
	assert.NoError(t, Validate(cfg))
}

func TestResolveDefaults(t *testing.T) {
	s, err := Resolve(&Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultLoginURL, s.LoginURL)
	assert.Equal(t, DefaultWarmupURL, s.Referer, "referer follows the warmup page")
	assert.Equal(t, []string{"datas", "cxxscjd", "rows"}, s.RowsPath)
	assert.Equal(t, "KCH", s.IdentityField)
	assert.Equal(t, 3, s.Attempts)
	assert.Equal(t, 30*time.Second, s.RetryDelay)
	assert.Equal(t, 10*time.Second, s.MinInterval)
	assert.Equal(t, 2*time.Minute, s.MaxInterval)
	assert.Equal(t, DefaultBodyFields, s.BodyFields)

	s, err = Resolve(&Config{Account: AccountConfig{WarmupURL: "-"}, Source: SourceConfig{RowsPath: "data.items"}})
	require.NoError(t, err)
	assert.Empty(t, s.WarmupURL)
	assert.Empty(t, s.Referer)
	assert.Equal(t, []string{"data", "items"}, s.RowsPath)

	s, err = Resolve(&Config{Retry: RetryConfig{Delay: "0s"}})
	require.NoError(t, err)
	assert.Zero(t, s.RetryDelay, "explicit zero delay is kept")
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDurationOrDefault("x", "", time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)

	_, err = ParseDurationField("x", "-1s")
	assert.ErrorContains(t, err, "must be >= 0")
}

func TestSummarizeNeverLeaksSecrets(t *testing.T) {
	oldCfg, err := Decode("c.yaml", []byte(validYAML))
	require.NoError(t, err)
	newCfg, err := Decode("c.yaml", []byte(strings.Replace(validYAML, "hunter2", "s3cret-pass", 1)))
	require.NoError(t, err)
	newCfg.Logging.Level = "debug"

	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	assert.Equal(t, []string{"account", "logging"}, changed)
	assert.Equal(t, []string{"account"}, RestartRequired(changed))
	assert.NotEmpty(t, attrs)
}

func TestEnabledBackends(t *testing.T) {
	n := NotifyConfig{
		Console:  &ConsoleConfig{Enabled: true},
		Telegram: &TelegramConfig{Enabled: false},
		MQTT:     &MQTTConfig{Enabled: true},
	}
	assert.Equal(t, []string{"mqtt", "console"}, EnabledBackends(n))
}

func TestWatchPublishesValidReload(t *testing.T) {
	path := writeFile(t, "gradewatch.yaml", validYAML)
	m := NewManager(path)
	_, err := m.Load()
	require.NoError(t, err)

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Invalid (unknown key) first: must be ignored.
	bad := validYAML + "bogus: true\n"
	good := strings.Replace(validYAML, "level: info", "level: debug", 1)

	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(bad), 0o600)
		time.Sleep(2 * reloadDebounce)
		_ = os.WriteFile(path, []byte(good), 0o600)
		select {
		case cfg := <-ch:
			return cfg.Logging.Level == "debug"
		case <-time.After(time.Second):
			return false
		}
	}, 10*time.Second, 50*time.Millisecond)
	assert.Equal(t, "debug", m.Get().Logging.Level)
}
