package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/publicsuffix"

	"gradewatch/internal/watcher"
	logx "gradewatch/pkg/logx"
)

const maxPageBytes = 2 << 20

// Error elements the portal renders next to a rejected login.
var errorSelectors = []string{"#errorMsg", "#showErrorTip", ".login-error", "#msg", ".auth_error"}

type Config struct {
	LoginURL   string
	ServiceURL string
	// WarmupURL, when set, is fetched after login to settle the redirect
	// and cookie chain of the target application.
	WarmupURL string

	Username string
	Password string

	UsernameField string // default "username"
	PasswordField string // default "password"

	UserAgent string
	Timeout   time.Duration // per request; default 20s
}

// CAS performs a form login. Every Authenticate starts from an empty cookie
// jar, so an expired session never leaks into the next one.
type CAS struct {
	cfg       Config
	transport http.RoundTripper
	now       func() time.Time
	log       logx.Logger
}

type Option func(*CAS)

// WithTransport replaces the HTTP transport (tests, proxies).
func WithTransport(rt http.RoundTripper) Option { return func(c *CAS) { c.transport = rt } }

func WithLogger(log logx.Logger) Option { return func(c *CAS) { c.log = log } }

func NewCAS(cfg Config, opts ...Option) *CAS {
	if cfg.UsernameField == "" {
		cfg.UsernameField = "username"
	}
	if cfg.PasswordField == "" {
		cfg.PasswordField = "password"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	c := &CAS{cfg: cfg, now: time.Now, log: logx.Nop()}
	for _, o := range opts {
		o(c)
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	return c
}

var _ watcher.Authenticator = (*CAS)(nil)

func (c *CAS) Authenticate(ctx context.Context) (watcher.Handle, error) {
	if c.cfg.Username == "" || c.cfg.Password == "" {
		return nil, &watcher.AuthError{Reason: "missing credentials"}
	}
	loginURL, err := c.loginURL()
	if err != nil {
		return nil, &watcher.AuthError{Reason: "bad login url", Err: err}
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, &watcher.AuthError{Err: err}
	}
	client := &http.Client{Jar: jar, Timeout: c.cfg.Timeout, Transport: c.transport}

	page, pageURL, err := c.getDocument(ctx, client, loginURL)
	if err != nil {
		return nil, &watcher.AuthError{Reason: "load login page", Err: err}
	}
	action, form, err := c.fillForm(page, pageURL)
	if err != nil {
		return nil, &watcher.AuthError{Reason: "login form", Err: err}
	}

	result, _, err := c.postForm(ctx, client, action, form, pageURL.String())
	if err != nil {
		return nil, &watcher.AuthError{Reason: "submit login", Err: err}
	}
	if reason := loginFailure(result); reason != "" {
		return nil, &watcher.AuthError{Reason: reason}
	}

	if c.cfg.WarmupURL != "" {
		if err := c.warmup(ctx, client); err != nil {
			return nil, &watcher.AuthError{Reason: "warmup", Err: err}
		}
	}
	c.log.Debug("login succeeded", logx.String("user", c.cfg.Username))
	return &Session{client: client, userAgent: c.cfg.UserAgent, acquired: c.now()}, nil
}

func (c *CAS) loginURL() (*url.URL, error) {
	u, err := url.Parse(c.cfg.LoginURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%q is not absolute", c.cfg.LoginURL)
	}
	if c.cfg.ServiceURL != "" {
		q := u.Query()
		q.Set("service", c.cfg.ServiceURL)
		u.RawQuery = q.Encode()
	}
	return u, nil
}

func (c *CAS) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	return req, nil
}

// getDocument GETs target and parses the final (post-redirect) page.
func (c *CAS) getDocument(ctx context.Context, client *http.Client, target *url.URL) (*goquery.Document, *url.URL, error) {
	req, err := c.newRequest(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, nil, err
	}
	return c.do(client, req)
}

func (c *CAS) postForm(ctx context.Context, client *http.Client, action string, form url.Values, referer string) (*goquery.Document, *url.URL, error) {
	req, err := c.newRequest(ctx, http.MethodPost, action, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", referer)
	return c.do(client, req)
}

func (c *CAS) do(client *http.Client, req *http.Request) (*goquery.Document, *url.URL, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return nil, nil, fmt.Errorf("%s %s: status %d", req.Method, req.URL.Redacted(), resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, nil, err
	}
	return doc, resp.Request.URL, nil
}

// fillForm collects the login form's hidden inputs and sets the credentials.
func (c *CAS) fillForm(doc *goquery.Document, pageURL *url.URL) (string, url.Values, error) {
	form := findLoginForm(doc)
	if form == nil {
		return "", nil, errors.New("no login form on page")
	}

	values := url.Values{}
	salt := ""
	form.Find("input").Each(func(_ int, in *goquery.Selection) {
		typ := strings.ToLower(in.AttrOr("type", "text"))
		name := in.AttrOr("name", "")
		id := in.AttrOr("id", "")
		if id == "pwdEncryptSalt" || name == "pwdEncryptSalt" {
			salt = in.AttrOr("value", "")
		}
		if name == "" || typ != "hidden" {
			return
		}
		values.Set(name, in.AttrOr("value", ""))
	})

	password := c.cfg.Password
	if salt != "" {
		enc, err := encryptPassword(password, salt)
		if err != nil {
			return "", nil, err
		}
		password = enc
	}
	values.Set(c.cfg.UsernameField, c.cfg.Username)
	values.Set(c.cfg.PasswordField, password)

	action, err := pageURL.Parse(form.AttrOr("action", ""))
	if err != nil {
		return "", nil, fmt.Errorf("form action: %w", err)
	}
	return action.String(), values, nil
}

// findLoginForm prefers the form holding a password input.
func findLoginForm(doc *goquery.Document) *goquery.Selection {
	var found *goquery.Selection
	doc.Find("form").EachWithBreak(func(_ int, f *goquery.Selection) bool {
		if f.Find(`input[type="password"]`).Length() > 0 {
			found = f
			return false
		}
		return true
	})
	if found == nil {
		if f := doc.Find("form#casLoginForm, form#pwdFromId"); f.Length() > 0 {
			found = f.First()
		}
	}
	return found
}

// loginFailure returns why the page after submitting is not a success,
// or "" when the login went through.
func loginFailure(doc *goquery.Document) string {
	for _, sel := range errorSelectors {
		if msg := strings.TrimSpace(doc.Find(sel).First().Text()); msg != "" {
			return "rejected: " + msg
		}
	}
	if doc.Find(`input[type="password"]`).Length() > 0 {
		return "still on login page"
	}
	return ""
}

func (c *CAS) warmup(ctx context.Context, client *http.Client) error {
	req, err := c.newRequest(ctx, http.MethodGet, c.cfg.WarmupURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxPageBytes))
	if resp.StatusCode >= 400 {
		return fmt.Errorf("GET %s: status %d", req.URL.Redacted(), resp.StatusCode)
	}
	return nil
}
