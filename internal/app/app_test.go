package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradewatch/internal/config"
	"gradewatch/internal/eventbus"
	"gradewatch/internal/storage"
	"gradewatch/internal/watcher"
	logx "gradewatch/pkg/logx"
)

const gradesJSON = `{"code":"0","datas":{"cxxscjd":{"rows":[
	{"KCH":"101","KCM":"Calculus","XF":4,"ZCJ":"95"},
	{"KCH":"102","KCM":"Physics","XF":3,"ZCJ":"88"}
]}}}`

// site is a tiny portal plus listing endpoint plus ServerChan sink.
type site struct {
	srv      *httptest.Server
	password string

	mu    sync.Mutex
	sends []map[string]string
	hits  atomic.Int32
}

func newSite(t *testing.T) *site {
	t.Helper()
	s := &site{password: "hunter2"}
	mux := http.NewServeMux()
	mux.HandleFunc("/login", s.login)
	mux.HandleFunc("/app", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>app</html>")
	})
	mux.HandleFunc("/grades", func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		if _, err := r.Cookie("SESSION"); err != nil {
			fmt.Fprint(w, "<html>please log in</html>")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, gradesJSON)
	})
	mux.HandleFunc("/send", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		s.mu.Lock()
		s.sends = append(s.sends, map[string]string{"title": r.PostForm.Get("title"), "desp": r.PostForm.Get("desp")})
		s.mu.Unlock()
		fmt.Fprint(w, `{"code":0}`)
	})
	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *site) login(w http.ResponseWriter, r *http.Request) {
	form := `<html><form method="post" action="/login">
<span id="errorMsg">%s</span>
<input type="text" name="username"><input type="password" name="password">
<input type="hidden" name="lt" value="LT-1"></form></html>`
	if r.Method == http.MethodGet {
		fmt.Fprintf(w, form, "")
		return
	}
	_ = r.ParseForm()
	if r.PostForm.Get("password") != s.password {
		fmt.Fprintf(w, form, "Invalid credentials")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: "SESSION", Value: "ok", Path: "/"})
	http.Redirect(w, r, "/app", http.StatusFound)
}

func (s *site) sent() []map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]string(nil), s.sends...)
}

func (s *site) config(t *testing.T, password string, mutate func(*config.Config)) string {
	t.Helper()
	cfg := config.Config{
		Account: config.AccountConfig{
			Username:   "201250000",
			Password:   password,
			LoginURL:   s.srv.URL + "/login",
			ServiceURL: s.srv.URL + "/app",
			WarmupURL:  s.srv.URL + "/app",
		},
		Source: config.SourceConfig{URL: s.srv.URL + "/grades"},
		Retry:  config.RetryConfig{Attempts: 1, Delay: "1ms"},
		HTTP:   config.HTTPConfig{Timeout: "5s"},
		Notify: config.NotifyConfig{
			ServerChan: &config.ServerChanConfig{Enabled: true, SendKey: "SCTtest", Endpoint: s.srv.URL + "/send"},
		},
		Logging: config.LoggingConfig{Level: "error"},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	b, err := json.Marshal(cfg)
	require.NoError(t, err)
	p := filepath.Join(t.TempDir(), "gradewatch.json")
	require.NoError(t, os.WriteFile(p, b, 0o600))
	return p
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing.yaml"), "test")
	assert.Error(t, err)

	s := newSite(t)
	_, err = New(s.config(t, "", func(c *config.Config) { c.Notify.ServerChan = nil }), "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password")
}

func TestCheckPrintsRecords(t *testing.T) {
	s := newSite(t)
	a, err := New(s.config(t, s.password, nil), "test")
	require.NoError(t, err)

	var out strings.Builder
	require.NoError(t, a.Check(context.Background(), &out))
	assert.Contains(t, out.String(), "101")
	assert.Contains(t, out.String(), "Physics")
	assert.Contains(t, out.String(), "2 records, 2 distinct identities (KCH)")
	assert.Empty(t, s.sent(), "check never notifies")
}

func TestNotifyTest(t *testing.T) {
	s := newSite(t)
	a, err := New(s.config(t, s.password, nil), "test")
	require.NoError(t, err)

	require.NoError(t, a.NotifyTest(context.Background()))
	sent := s.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "gradewatch test notification", sent[0]["title"])
	assert.Contains(t, sent[0]["desp"], a.RunID())
}

func TestRunBootstrapFailureExits1(t *testing.T) {
	s := newSite(t)
	journal := filepath.Join(t.TempDir(), "journal")
	a, err := New(s.config(t, "wrong", func(c *config.Config) {
		c.Storage = &config.StorageConfig{Driver: "file", Path: journal}
		c.Escalation.Title = "gradewatch failed"
	}), "test")
	require.NoError(t, err)

	code := a.Run(context.Background())
	assert.Equal(t, watcher.ExitBootstrapFailed, code)

	sent := s.sent()
	require.Len(t, sent, 1, "exactly one escalation")
	assert.Equal(t, "gradewatch failed", sent[0]["title"])
	assert.Contains(t, sent[0]["desp"], "Invalid credentials")

	st, err := storage.Open(storage.Config{Driver: "file", Path: journal}, a.Logger())
	require.NoError(t, err)
	defer st.Close()
	entries, err := st.RecentEvents(context.Background(), 10)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, watcher.EventFatal, entries[0].Type)
}

func TestRunCancelledExits0(t *testing.T) {
	s := newSite(t)
	a, err := New(s.config(t, s.password, nil), "test")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, watcher.ExitStopped, a.Run(ctx))
	assert.Empty(t, s.sent())
}

func TestRunBaselinesThenStops(t *testing.T) {
	s := newSite(t)
	a, err := New(s.config(t, s.password, func(c *config.Config) {
		c.Poll = config.PollConfig{MinInterval: "1h", MaxInterval: "1h"}
	}), "test")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		ok, _ := a.status.Health()
		return ok && strings.HasPrefix(a.status.Line(), "poll: 2 seen")
	}, 10*time.Second, 20*time.Millisecond)
	cancel()

	select {
	case code := <-done:
		assert.Equal(t, watcher.ExitStopped, code)
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Empty(t, s.sent(), "baseline records are never notified")
}

func TestStatus(t *testing.T) {
	now := time.Unix(1700000000, 0)
	st := NewStatus("run-1", time.Minute)
	st.now = func() time.Time { return now }
	st.started = now

	ok, _ := st.Health()
	assert.True(t, ok)
	assert.Equal(t, "bootstrap", st.Line())

	at := now
	pub := func(typ string, ev watcher.WatchEvent) { st.Observe(eventbus.Event{Type: typ, Time: at, Data: ev}) }
	pub(watcher.EventBaseline, watcher.WatchEvent{Seen: 2})
	pub(watcher.EventNewRecord, watcher.WatchEvent{Identity: "103"})
	pub(watcher.EventCycle, watcher.WatchEvent{Seen: 3, New: 1})
	assert.Equal(t, "poll: 3 seen, 1 new, 1 cycles", st.Line())

	pub(watcher.EventFetchFailed, watcher.WatchEvent{Error: "session may have expired"})
	ok, body := st.Health()
	assert.True(t, ok)
	h := body.(Health)
	assert.Equal(t, "recover", h.Phase)
	assert.Equal(t, "session may have expired", h.LastError)

	now = now.Add(2 * time.Minute)
	ok, body = st.Health()
	assert.False(t, ok, "stale loop is unhealthy")
	assert.Equal(t, "unhealthy", body.(Health).Status)

	now = at
	pub(watcher.EventFatal, watcher.WatchEvent{Code: 2, Error: "boom"})
	ok, _ = st.Health()
	assert.False(t, ok)
}

func TestApplyReloadAppliesLogging(t *testing.T) {
	s := newSite(t)
	a, err := New(s.config(t, s.password, nil), "test")
	require.NoError(t, err)
	defer a.closeCore()

	prev := a.cfgm.Get()
	next := *prev
	next.Logging.Level = "debug"
	next.Poll.MinInterval = "20s"

	got := a.applyReload(prev, &next)
	assert.Same(t, &next, got)
	assert.Equal(t, "debug", a.logs.Config().Level)
}

func TestMapOpsConfig(t *testing.T) {
	oc, err := mapOpsConfig(config.OpsConfig{Enabled: true})
	require.NoError(t, err)
	assert.Equal(t, config.DefaultOpsAddr, oc.Addr)
	assert.True(t, oc.Metrics)
	assert.Equal(t, 10*time.Second, oc.ReadTimeout)

	off := false
	oc, err = mapOpsConfig(config.OpsConfig{Metrics: &off, ReadTimeout: "3"})
	assert.Error(t, err)
	_ = oc
}

func TestMapStorageConfig(t *testing.T) {
	_, enabled, err := mapStorageConfig(&config.Config{})
	require.NoError(t, err)
	assert.False(t, enabled)

	_, _, err = mapStorageConfig(&config.Config{Storage: &config.StorageConfig{Driver: "sqlite"}})
	assert.Error(t, err)

	sc, enabled, err := mapStorageConfig(&config.Config{Storage: &config.StorageConfig{Driver: "SQLite", Path: "x.db", BusyTimeout: "2s"}})
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Equal(t, "sqlite", sc.Driver)
	assert.Equal(t, 2*time.Second, sc.BusyTimeout)
}

func TestJournal(t *testing.T) {
	s := newSite(t)
	path := filepath.Join(t.TempDir(), "j")
	cfgPath := s.config(t, s.password, func(c *config.Config) {
		c.Storage = &config.StorageConfig{Driver: "file", Path: path}
	})

	st, err := storage.Open(storage.Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.AppendEvent(context.Background(), storage.Entry{
		At: time.Now(), RunID: "0123456789abcdef", Type: watcher.EventNewRecord, Identity: "103",
	}))
	require.NoError(t, st.Close())

	a, err := New(cfgPath, "test")
	require.NoError(t, err)
	var out strings.Builder
	require.NoError(t, a.Journal(context.Background(), &out, 10))
	assert.Contains(t, out.String(), "watch.new_record")
	assert.Contains(t, out.String(), "103")
	assert.Contains(t, out.String(), "01234567")
	assert.NotContains(t, out.String(), "0123456789")

	a, err = New(s.config(t, s.password, nil), "test")
	require.NoError(t, err)
	assert.ErrorIs(t, a.Journal(context.Background(), &out, 10), ErrJournalDisabled)
}
