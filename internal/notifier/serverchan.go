package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"gradewatch/internal/watcher"
)

var sctpKey = regexp.MustCompile(`^sctp(\d+)t`)

// ServerChan pushes through the ServerChan "send" API.
type ServerChan struct {
	endpoint string
	client   *http.Client
}

// NewServerChan derives the endpoint from key unless endpoint is set.
// client may be nil.
func NewServerChan(key, endpoint string, client *http.Client) (*ServerChan, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("serverchan: empty sendkey")
	}
	if endpoint == "" {
		endpoint = ServerChanURL(key)
	}
	if client == nil {
		client = &http.Client{}
	}
	return &ServerChan{endpoint: endpoint, client: client}, nil
}

// ServerChanURL returns the send URL for key. Keys of the form sctp<N>t...
// go to the per-user push host.
func ServerChanURL(key string) string {
	if m := sctpKey.FindStringSubmatch(key); m != nil {
		return fmt.Sprintf("https://%s.push.ft07.com/send/%s.send", m[1], key)
	}
	return fmt.Sprintf("https://sctapi.ftqq.com/%s.send", key)
}

func (s *ServerChan) Name() string { return "serverchan" }

type serverChanResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *ServerChan) Send(ctx context.Context, msg watcher.Message) error {
	form := url.Values{}
	for k, v := range msg.Options {
		form.Set(k, v)
	}
	form.Set("title", msg.Title)
	form.Set("desp", msg.Body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		// The URL carries the send key.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return fmt.Errorf("serverchan request: %w", uerr.Err)
		}
		return err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var out serverChanResponse
	if err := json.Unmarshal(b, &out); err != nil {
		return fmt.Errorf("serverchan: status %d, unreadable response", resp.StatusCode)
	}
	if out.Code != 0 {
		return fmt.Errorf("serverchan: code %d: %s", out.Code, out.Message)
	}
	return nil
}
