// Package source fetches the record listing from the grade service's JSON
// endpoint and classifies everything that is not a usable list.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/antonholmquist/jason"

	"gradewatch/internal/watcher"
	logx "gradewatch/pkg/logx"
)

const maxBodyBytes = 8 << 20

// Session is what the fetcher needs from an authenticated handle.
type Session interface {
	watcher.Handle
	Client() *http.Client
	UserAgent() string
}

type Config struct {
	URL     string
	Referer string
	// RowsPath locates the record array, e.g. ["datas", "cxxscjd", "rows"].
	RowsPath []string
	// SuccessCode is the expected top-level "code"; default "0".
	SuccessCode string
}

type Fetcher struct {
	cfg Config
	log logx.Logger
}

func New(cfg Config, log logx.Logger) *Fetcher {
	if cfg.SuccessCode == "" {
		cfg.SuccessCode = "0"
	}
	if len(cfg.RowsPath) == 0 {
		cfg.RowsPath = []string{"datas", "cxxscjd", "rows"}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Fetcher{cfg: cfg, log: log}
}

var _ watcher.Fetcher = (*Fetcher)(nil)

func (f *Fetcher) Fetch(ctx context.Context, h watcher.Handle) ([]watcher.Record, error) {
	s, ok := h.(Session)
	if !ok || s.Client() == nil {
		return nil, &watcher.FetchError{Reason: watcher.ReasonTransport, Detail: fmt.Sprintf("unsupported handle %T", h)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.URL, strings.NewReader(""))
	if err != nil {
		return nil, &watcher.FetchError{Reason: watcher.ReasonTransport, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if f.cfg.Referer != "" {
		req.Header.Set("Referer", f.cfg.Referer)
	}
	if ua := s.UserAgent(); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := s.Client().Do(req)
	if err != nil {
		return nil, &watcher.FetchError{Reason: watcher.ReasonTransport, Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &watcher.FetchError{Reason: watcher.ReasonTransport, Status: resp.StatusCode, Err: err}
	}

	records, err := f.parse(body, resp.StatusCode, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}
	f.log.Debug("listing fetched", logx.Int("status", resp.StatusCode), logx.Int("records", len(records)))
	return records, nil
}

// parse classifies body into records or a *watcher.FetchError.
func (f *Fetcher) parse(body []byte, status int, contentType string) ([]watcher.Record, error) {
	obj, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return nil, &watcher.FetchError{Reason: watcher.ReasonUnparsable, Status: status, ContentType: contentType}
	}

	code := "None"
	if v, err := obj.GetValue("code"); err == nil {
		code = scalarString(v)
	}
	if code != f.cfg.SuccessCode {
		fe := &watcher.FetchError{Reason: watcher.ReasonApplication, Code: code, Status: status}
		if msg, err := obj.GetString("msg"); err == nil && msg != "" {
			fe.Detail = msg
		}
		return nil, fe
	}

	rows, err := obj.GetValueArray(f.cfg.RowsPath...)
	if err != nil {
		return nil, &watcher.FetchError{
			Reason: watcher.ReasonMalformed,
			Status: status,
			Detail: fmt.Sprintf("%s is missing or not a list", strings.Join(f.cfg.RowsPath, ".")),
		}
	}

	records := make([]watcher.Record, 0, len(rows))
	for i, v := range rows {
		row, err := v.Object()
		if err != nil {
			raw, _ := v.Marshal()
			f.log.Debug("skipping non-object row", logx.Int("row", i), logx.String("value", clip(string(raw), 64)))
			continue
		}
		records = append(records, toRecord(row))
	}
	return records, nil
}

// toRecord keeps scalar fields as text. Nulls and nested values are dropped.
func toRecord(row *jason.Object) watcher.Record {
	fields := make(map[string]string, len(row.Map()))
	for k, v := range row.Map() {
		if s, ok := scalar(v); ok {
			fields[k] = s
		}
	}
	return watcher.NewRecord(fields)
}

func scalar(v *jason.Value) (string, bool) {
	if s, err := v.String(); err == nil {
		return s, true
	}
	if n, err := v.Number(); err == nil {
		return number(n), true
	}
	if b, err := v.Boolean(); err == nil {
		return strconv.FormatBool(b), true
	}
	return "", false
}

// number drops the fraction of integral values ("3.0" -> "3") and keeps
// any other literal as sent.
func number(n json.Number) string {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10)
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return n.String()
	}
	return strconv.FormatInt(int64(f), 10)
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// scalarString renders v like a loosely typed client would: "0" and 0 are
// the same code, a missing or null code is "None".
func scalarString(v *jason.Value) string {
	if s, ok := scalar(v); ok {
		return s
	}
	if v.Null() == nil {
		return "None"
	}
	b, err := v.Marshal()
	if err != nil {
		return "?"
	}
	return string(b)
}
