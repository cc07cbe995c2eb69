package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradewatch/internal/config"
	"gradewatch/internal/watcher"
	logx "gradewatch/pkg/logx"
)

type recBackend struct {
	name string
	err  error
	wait bool

	mu     sync.Mutex
	got    []watcher.Message
	closed bool
}

func (b *recBackend) Name() string { return b.name }

func (b *recBackend) Send(ctx context.Context, msg watcher.Message) error {
	if b.wait {
		<-ctx.Done()
		return ctx.Err()
	}
	b.mu.Lock()
	b.got = append(b.got, msg)
	b.mu.Unlock()
	return b.err
}

func (b *recBackend) Close() error {
	b.closed = true
	return nil
}

func (b *recBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.got)
}

func TestService_FansOutAndJoinsErrors(t *testing.T) {
	ok := &recBackend{name: "ok"}
	bad := &recBackend{name: "bad", err: errors.New("boom")}
	svc := New([]Backend{bad, ok}, Options{RatePerSec: 10}, logx.Nop())

	err := svc.Notify(context.Background(), watcher.Message{Title: "t", Body: "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Equal(t, 1, ok.count(), "a failing backend must not stop the others")
	assert.Equal(t, 1, bad.count())
	assert.Equal(t, []string{"bad", "ok"}, svc.Backends())
}

func TestService_NoBackends(t *testing.T) {
	err := New(nil, Options{}, logx.Nop()).Notify(context.Background(), watcher.Message{})
	assert.ErrorIs(t, err, ErrNoBackends)
}

func TestService_PerCallTimeout(t *testing.T) {
	slow := &recBackend{name: "slow", wait: true}
	svc := New([]Backend{slow}, Options{Timeout: 20 * time.Millisecond}, logx.Nop())

	err := svc.Notify(context.Background(), watcher.Message{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestService_RateLimitRespectsContext(t *testing.T) {
	a := &recBackend{name: "a"}
	b := &recBackend{name: "b"}
	svc := New([]Backend{a, b}, Options{RatePerSec: 1}, logx.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := svc.Notify(ctx, watcher.Message{})
	require.Error(t, err)
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 0, b.count())
}

func TestService_CloseClosesBackends(t *testing.T) {
	a := &recBackend{name: "a"}
	require.NoError(t, New([]Backend{a}, Options{}, logx.Nop()).Close())
	assert.True(t, a.closed)
}

func TestFormatter(t *testing.T) {
	r := watcher.NewRecord(map[string]string{"KCH": "101", "KCM": " Calculus ", "XF": "4", "ZCJ": "95"})
	f := Formatter{
		TitleTemplate: "New grade: {KCM} ({MISSING})",
		BodyFields:    []BodyField{{"Course", "KCM"}, {"Credits", "XF"}, {"Score", "ZCJ"}},
		Options:       map[string]string{"tags": "grades"},
	}
	msg := f.Format(r)
	assert.Equal(t, "New grade: Calculus ()", msg.Title)
	assert.Equal(t, "Course: Calculus\nCredits: 4\nScore: 95", msg.Body)
	assert.Equal(t, "grades", msg.Options["tags"])

	msg.Options["tags"] = "mutated"
	assert.Equal(t, "grades", f.Options["tags"])
}

func TestFromSettings(t *testing.T) {
	s, err := config.Resolve(&config.Config{})
	require.NoError(t, err)
	f := FromSettings(s, nil)
	assert.Equal(t, config.DefaultTitleTemplate, f.TitleTemplate)
	require.Len(t, f.BodyFields, len(config.DefaultBodyFields))
	assert.Equal(t, "KCM", f.BodyFields[0].Field)
}

func TestServerChanURL(t *testing.T) {
	assert.Equal(t, "https://sctapi.ftqq.com/SCT123.send", ServerChanURL("SCT123"))
	assert.Equal(t, "https://42.push.ft07.com/send/sctp42tABC.send", ServerChanURL("sctp42tABC"))
}

func TestServerChan_Send(t *testing.T) {
	mt := httpmock.NewMockTransport()
	client := &http.Client{Transport: mt}

	var form map[string]string
	mt.RegisterResponder(http.MethodPost, "https://sctapi.ftqq.com/SCTKEY.send",
		func(req *http.Request) (*http.Response, error) {
			require.NoError(t, req.ParseForm())
			form = map[string]string{
				"title": req.PostForm.Get("title"),
				"desp":  req.PostForm.Get("desp"),
				"tags":  req.PostForm.Get("tags"),
			}
			return httpmock.NewStringResponse(http.StatusOK, `{"code":0,"message":""}`), nil
		})

	sc, err := NewServerChan("SCTKEY", "", client)
	require.NoError(t, err)
	err = sc.Send(context.Background(), watcher.Message{Title: "t", Body: "b", Options: map[string]string{"tags": "x"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"title": "t", "desp": "b", "tags": "x"}, form)
	assert.Equal(t, 1, mt.GetTotalCallCount())
}

func TestServerChan_ErrorCode(t *testing.T) {
	mt := httpmock.NewMockTransport()
	mt.RegisterResponder(http.MethodPost, "https://example.test/send",
		httpmock.NewStringResponder(http.StatusOK, `{"code":40001,"message":"bad key"}`))

	sc, err := NewServerChan("k", "https://example.test/send", &http.Client{Transport: mt})
	require.NoError(t, err)
	err = sc.Send(context.Background(), watcher.Message{Title: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "40001")
}

func TestServerChan_EmptyKey(t *testing.T) {
	_, err := NewServerChan("  ", "", nil)
	assert.Error(t, err)
}

func TestTelegram_SendsChunks(t *testing.T) {
	var (
		mu    sync.Mutex
		texts []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
			http.NotFound(w, r)
			return
		}
		b, _ := io.ReadAll(r.Body)
		var in map[string]any
		_ = json.Unmarshal(b, &in)
		mu.Lock()
		texts = append(texts, in["text"].(string))
		mu.Unlock()
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":1,"chat":{"id":42}}}`)
	}))
	defer srv.Close()

	tg, err := NewTelegram(TelegramConfig{Token: "123:abc", ChatID: 42, APIURL: srv.URL})
	require.NoError(t, err)

	long := strings.Repeat("x", telegramChunkRunes-3)
	require.NoError(t, tg.Send(context.Background(), watcher.Message{Title: "Title", Body: long}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, texts, 2)
	assert.Equal(t, "Title", texts[0])
	assert.Equal(t, long, texts[1])
}

func TestTelegram_RequiresChat(t *testing.T) {
	_, err := NewTelegram(TelegramConfig{Token: "123:abc"})
	assert.Error(t, err)
}

func TestSplitText(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitText("short", 10))
	assert.Equal(t, []string{"aaaa", "bbbb"}, splitText("aaaa\nbbbb", 6))
	assert.Equal(t, []string{"αβγ", "δε"}, splitText("αβγδε", 3))
}

func TestMQTT_ConnectFailure(t *testing.T) {
	m, err := NewMQTT(MQTTConfig{Broker: "tcp://127.0.0.1:1"}, logx.Nop())
	require.NoError(t, err)
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = m.Send(ctx, watcher.Message{Title: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mqtt connect")
}

func TestMQTT_RequiresBroker(t *testing.T) {
	_, err := NewMQTT(MQTTConfig{}, logx.Nop())
	assert.Error(t, err)
}

func TestBackends(t *testing.T) {
	_, err := Backends(config.NotifyConfig{}, time.Second, "run", logx.Nop())
	assert.ErrorIs(t, err, ErrNoBackends)

	bs, err := Backends(config.NotifyConfig{
		ServerChan: &config.ServerChanConfig{Enabled: true, SendKey: "SCT1"},
		MQTT:       &config.MQTTConfig{Enabled: true, Broker: "tcp://127.0.0.1:1"},
		Console:    &config.ConsoleConfig{Enabled: true},
		Telegram:   &config.TelegramConfig{Enabled: false},
	}, time.Second, "run", logx.Nop())
	require.NoError(t, err)
	names := make([]string, 0, len(bs))
	for _, b := range bs {
		names = append(names, b.Name())
	}
	assert.Equal(t, []string{"serverchan", "mqtt", "console"}, names)
	assert.Equal(t, "gradewatch-run", bs[1].(*MQTT).cfg.ClientID)

	_, err = Backends(config.NotifyConfig{
		Telegram: &config.TelegramConfig{Enabled: true},
	}, time.Second, "run", logx.Nop())
	assert.Error(t, err)
}

func TestConsole(t *testing.T) {
	var buf strings.Builder
	c := NewConsole(logx.NewWriter(&buf, "info"))
	require.NoError(t, c.Send(context.Background(), watcher.Message{Title: "hello", Body: "world"}))
	assert.Contains(t, buf.String(), `"title":"hello"`)
}
