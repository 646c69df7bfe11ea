// Package pastebin is a client for the Pastebin HTTP API.
//
// A Client holds one account session. It logs in lazily on the first post,
// reuses the session key for every later post, and fetches raw paste content
// without authentication:
//
//	c, err := pastebin.New(secrets, pastebin.WithLogger(logger))
//	url, err := c.Post(ctx, "hello", pastebin.Options{Expiration: "1 day"})
//	text, ok := c.Get(ctx, "abc123")
package pastebin

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"pbin/pkg/domain"
)

const (
	DefaultBaseURL = "https://pastebin.com/"
	// DefaultTimeout bounds login and post requests.
	DefaultTimeout = 5 * time.Second

	SecretDevKey   = "API_PASTEBIN"
	SecretUserName = "PASTEBIN_USER_NAME"
	SecretPassword = "PASTEBIN_PASSWORD"

	loginPath   = "api/api_login.php"
	postPath    = "api_post.php"
	rawPath     = "raw/"
	maxBodySize = 10 * 1024 * 1024
)

// Doer executes HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SecretSource supplies the developer key and account credentials.
// Values are read on every login, never cached by the client.
type SecretSource interface {
	GetSecret(ctx context.Context, key string) (string, error)
}

// SessionStore persists session keys across processes, keyed by account name.
type SessionStore interface {
	LoadSession(ctx context.Context, account string) (string, error)
	SaveSession(ctx context.Context, account, token string) error
	ClearSession(ctx context.Context, account string) error
}

// Observer is called once per outbound request. status is 0 when no response arrived.
type Observer func(op string, status int, err error, elapsed time.Duration)

type Client struct {
	baseURL   string
	http      Doer
	secrets   SecretSource
	sessions  SessionStore
	timeout   time.Duration
	userAgent string
	log       zerolog.Logger
	observe   Observer

	mu      sync.RWMutex
	token   string
	pending atomic.Bool
	group   singleflight.Group
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

func WithHTTPClient(d Doer) Option {
	return func(c *Client) {
		c.http = d
	}
}

// WithTimeout overrides the login and post request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

func WithSessionStore(s SessionStore) Option {
	return func(c *Client) {
		c.sessions = s
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observe = o
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New builds a Client. The client is meant to be created once and shared.
func New(secrets SecretSource, opts ...Option) (*Client, error) {
	if secrets == nil {
		return nil, errors.New("pastebin: secret source required")
	}
	c := &Client{
		baseURL:   DefaultBaseURL,
		http:      http.DefaultClient,
		secrets:   secrets,
		timeout:   DefaultTimeout,
		userAgent: "pbin/1.0",
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	base, err := normalizeBaseURL(c.baseURL)
	if err != nil {
		return nil, err
	}
	c.baseURL = base
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.timeout <= 0 {
		return nil, errors.New("pastebin: timeout must be positive")
	}
	return c, nil
}

func normalizeBaseURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errors.New("pastebin: base URL required")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", errors.Wrap(err, "pastebin: invalid base URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errors.New("pastebin: base URL must be http or https")
	}
	if u.Host == "" {
		return "", errors.New("pastebin: base URL missing host")
	}
	return strings.TrimSuffix(u.String(), "/") + "/", nil
}

// Authenticated reports whether a session key is held.
func (c *Client) Authenticated() bool {
	return c.sessionKey() != ""
}

// Authenticating reports whether a login request is in flight.
func (c *Client) Authenticating() bool {
	return c.pending.Load()
}

func (c *Client) sessionKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) setSessionKey(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Login obtains a session key unless one is already held. Concurrent callers
// share one login request. It reports whether a session key is held afterwards;
// failures leave the client anonymous rather than returning an error.
func (c *Client) Login(ctx context.Context) bool {
	if c.Authenticated() {
		return true
	}
	// The shared login must not die with whichever caller started it; the
	// request timeout still bounds it.
	shared := context.WithoutCancel(ctx)
	v, _, _ := c.group.Do("login", func() (interface{}, error) {
		if c.Authenticated() {
			return true, nil
		}
		return c.login(shared), nil
	})
	return v.(bool)
}

func (c *Client) login(ctx context.Context) bool {
	c.pending.Store(true)
	defer c.pending.Store(false)

	devKey, err := c.secrets.GetSecret(ctx, SecretDevKey)
	if err != nil {
		c.log.Warn().Err(err).Msg("pastebin login: dev key unavailable")
		c.setSessionKey("")
		return false
	}
	user, err := c.secrets.GetSecret(ctx, SecretUserName)
	if err != nil {
		c.log.Warn().Err(err).Msg("pastebin login: user name unavailable")
		c.setSessionKey("")
		return false
	}
	if c.sessions != nil {
		stored, err := c.sessions.LoadSession(ctx, user)
		if err != nil {
			c.log.Warn().Err(err).Msg("session store read failed")
		} else if stored != "" {
			c.setSessionKey(stored)
			c.log.Debug().Msg("pastebin session restored from store")
			return true
		}
	}
	password, err := c.secrets.GetSecret(ctx, SecretPassword)
	if err != nil {
		c.log.Warn().Err(err).Msg("pastebin login: password unavailable")
		c.setSessionKey("")
		return false
	}

	form := url.Values{}
	form.Set("api_dev_key", devKey)
	form.Set("api_user_name", user)
	form.Set("api_user_password", password)

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	status, body, err := c.do(reqCtx, "login", http.MethodPost, loginPath, form)
	if err != nil || status != http.StatusOK {
		c.log.Warn().Err(err).Int("status", status).Msg("pastebin login failed")
		c.setSessionKey("")
		if c.sessions != nil {
			if err := c.sessions.ClearSession(ctx, user); err != nil {
				c.log.Warn().Err(err).Msg("session store clear failed")
			}
		}
		return false
	}
	c.setSessionKey(body)
	if c.sessions != nil {
		if err := c.sessions.SaveSession(ctx, user, body); err != nil {
			c.log.Warn().Err(err).Msg("session store write failed")
		}
	}
	c.log.Info().Msg("pastebin login succeeded")
	return true
}

// Get returns the raw content of a paste. ok is false for any non-200 response
// or transport failure.
func (c *Client) Get(ctx context.Context, pasteID string) (content string, ok bool) {
	if pasteID == "" {
		return "", false
	}
	status, body, err := c.do(ctx, "get", http.MethodGet, rawPath+url.PathEscape(pasteID), nil)
	if err != nil {
		c.log.Warn().Err(err).Str("paste_id", pasteID).Msg("pastebin get failed")
		return "", false
	}
	if status != http.StatusOK {
		return "", false
	}
	return body, true
}

// Post creates a paste and returns the response body, which on success is the
// paste URL. The body is returned whatever the status; callers that care must
// inspect it. Only invalid options and transport failures produce errors.
func (c *Client) Post(ctx context.Context, text string, opts Options) (string, error) {
	privacy := DefaultPrivacy
	if opts.Privacy != nil {
		p, err := ResolvePrivacy(opts.Privacy)
		if err != nil {
			return "", err
		}
		privacy = p
	}
	expire := DefaultExpiration
	if opts.Expiration != "" {
		e, err := ResolveExpiration(opts.Expiration)
		if err != nil {
			return "", err
		}
		expire = e
	}
	title := opts.Name
	if title == "" {
		title = DefaultTitle
	}

	if !c.Authenticated() {
		c.Login(ctx)
	}

	devKey, err := c.secrets.GetSecret(ctx, SecretDevKey)
	if err != nil {
		return "", errors.Wrap(err, "read dev key")
	}
	form := url.Values{}
	form.Set("api_dev_key", devKey)
	form.Set("api_option", "paste")
	form.Set("api_paste_code", text)
	form.Set("api_paste_name", title)
	form.Set("api_paste_private", privacy)
	form.Set("api_paste_expire_date", expire)
	if token := c.sessionKey(); token != "" {
		form.Set("api_user_key", token)
	}
	if opts.Format != "" {
		form.Set("api_paste_format", opts.Format)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	status, body, err := c.do(reqCtx, "post", http.MethodPost, postPath, form)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		c.log.Warn().Int("status", status).Msg("pastebin post returned non-200")
	}
	return body, nil
}

// Delete is not supported yet.
func (c *Client) Delete(ctx context.Context, pasteID string) error {
	return errors.Wrapf(domain.ErrNotImplemented, "delete paste %q", pasteID)
}

func (c *Client) do(ctx context.Context, op, method, path string, form url.Values) (int, string, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, "", errors.Wrapf(err, "build %s request", op)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	requestID := uuid.New().String()
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		elapsed := time.Since(start)
		if c.observe != nil {
			c.observe(op, 0, err, elapsed)
		}
		c.log.Debug().Err(err).Str("op", op).Str("request_id", requestID).Dur("duration", elapsed).Msg("pastebin request failed")
		return 0, "", errors.Wrapf(err, "%s request", op)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err == nil && len(data) > maxBodySize {
		err = errors.Errorf("%s response exceeds %d bytes", op, maxBodySize)
	}
	elapsed := time.Since(start)
	if c.observe != nil {
		c.observe(op, resp.StatusCode, err, elapsed)
	}
	c.log.Debug().
		Str("op", op).
		Str("request_id", requestID).
		Int("status", resp.StatusCode).
		Int("size", len(data)).
		Dur("duration", elapsed).
		Msg("pastebin request")
	if err != nil {
		return resp.StatusCode, "", errors.Wrapf(err, "read %s response", op)
	}
	return resp.StatusCode, string(data), nil
}
