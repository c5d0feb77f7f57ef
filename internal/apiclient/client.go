// Package apiclient is the authenticated pipeline every backend call goes
// through. A Client composes a chain of middlewares around a plain HTTP
// executor; every error it returns is an *apierr.Error.
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/ErlanBelekov/booking-portal/internal/apierr"
	"github.com/ErlanBelekov/booking-portal/internal/domain"
	"golang.org/x/net/publicsuffix"
)

const (
	defaultAuthScheme  = "Token"
	defaultCSRFCookie  = "csrftoken"
	defaultCSRFHeader  = "X-CSRFToken"
	defaultTimeout     = 30 * time.Second
	defaultDownloadDir = "."
)

// TokenStore is what the client needs from the token store.
type TokenStore interface {
	CredentialStore
	Clear(ctx context.Context) error
}

// Navigator moves the user to another location.
type Navigator interface {
	Navigate(ctx context.Context, location string)
}

type Config struct {
	BaseURL        string
	Timeout        time.Duration
	AuthScheme     string
	CSRFCookieName string
	CSRFHeaderName string
	DownloadDir    string

	// Diagnostics installs request/response debug logging. Keep it off in production.
	Diagnostics bool

	// OnAuthLost replaces the default reaction to a failed refresh, which
	// clears the token store and navigates to the login page.
	OnAuthLost func(ctx context.Context)
	Navigator  Navigator

	Sleep SleepFunc
}

type Client struct {
	do          Doer
	exec        *Executor
	jar         http.CookieJar
	baseURL     *url.URL
	downloadDir string
	logger      *slog.Logger
}

func New(cfg Config, tokens TokenStore, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("parse base url: %q is not absolute", cfg.BaseURL)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.AuthScheme == "" {
		cfg.AuthScheme = defaultAuthScheme
	}
	if cfg.CSRFCookieName == "" {
		cfg.CSRFCookieName = defaultCSRFCookie
	}
	if cfg.CSRFHeaderName == "" {
		cfg.CSRFHeaderName = defaultCSRFHeader
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = defaultDownloadDir
	}

	logger = logger.With("component", "api_client")

	onAuthLost := cfg.OnAuthLost
	if onAuthLost == nil {
		onAuthLost = func(ctx context.Context) {
			if err := tokens.Clear(ctx); err != nil {
				logger.ErrorContext(ctx, "clear tokens after failed refresh", "error", err)
			}
			if cfg.Navigator != nil {
				cfg.Navigator.Navigate(ctx, domain.LoginPath)
			}
		}
	}

	exec := NewExecutor(base, jar, cfg.Timeout)

	var mws []Middleware
	if cfg.Diagnostics {
		mws = append(mws, Diagnostics(logger))
	}
	mws = append(mws,
		RequestID(),
		Metrics(),
		Retry(RetryConfig{
			Tokens:     tokens,
			OnAuthLost: onAuthLost,
			Sleep:      cfg.Sleep,
			Logger:     logger,
		}),
		Authorize(tokens, cfg.AuthScheme, CSRF{
			Jar:        jar,
			BaseURL:    base,
			CookieName: cfg.CSRFCookieName,
			HeaderName: cfg.CSRFHeaderName,
		}),
	)

	return &Client{
		do:          Chain(exec.Do, mws...),
		exec:        exec,
		jar:         jar,
		baseURL:     base,
		downloadDir: cfg.DownloadDir,
		logger:      logger,
	}, nil
}

// Option adjusts a single call.
type Option func(*Request)

func WithHeader(key, value string) Option {
	return func(r *Request) { r.Header.Set(key, value) }
}

func WithParam(key, value string) Option {
	return func(r *Request) { r.Query.Add(key, value) }
}

func WithQuery(q url.Values) Option {
	return func(r *Request) {
		for k, vs := range q {
			for _, v := range vs {
				r.Query.Add(k, v)
			}
		}
	}
}

// WithoutAuthRetry surfaces a 401 as is. Used for calls where 401 means
// bad credentials rather than an expired token.
func WithoutAuthRetry() Option {
	return func(r *Request) { r.SkipAuthRetry = true }
}

func (c *Client) Get(ctx context.Context, path string, out any, opts ...Option) error {
	return c.call(ctx, http.MethodGet, path, nil, out, opts)
}

func (c *Client) Post(ctx context.Context, path string, body, out any, opts ...Option) error {
	return c.call(ctx, http.MethodPost, path, body, out, opts)
}

func (c *Client) Put(ctx context.Context, path string, body, out any, opts ...Option) error {
	return c.call(ctx, http.MethodPut, path, body, out, opts)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any, opts ...Option) error {
	return c.call(ctx, http.MethodPatch, path, body, out, opts)
}

func (c *Client) Delete(ctx context.Context, path string, out any, opts ...Option) error {
	return c.call(ctx, http.MethodDelete, path, nil, out, opts)
}

// Do sends req through the full chain. On a non-2xx status the response is
// returned alongside the normalized error.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	resp, err := c.do(ctx, req.fresh())
	if err != nil {
		return nil, apierr.FromTransport(err)
	}
	if !resp.OK() {
		return resp, apierr.FromResponse(resp.StatusCode, resp.Body)
	}
	return resp, nil
}

// Ping checks that the backend answers at all. Any HTTP status counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.exec.Do(ctx, &Request{Method: http.MethodGet, Path: "/"}); err != nil {
		return fmt.Errorf("ping backend: %w", err)
	}
	return nil
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

func (c *Client) call(ctx context.Context, method, path string, body, out any, opts []Option) error {
	req := newRequest(method, path)
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return apierr.FromTransport(fmt.Errorf("encode request body: %w", err))
		}
		req.Body = b
		req.ContentType = "application/json"
	}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	return decodeData(resp, out)
}

func newRequest(method, path string) *Request {
	return &Request{
		Method: method,
		Path:   path,
		Header: http.Header{},
		Query:  url.Values{},
	}
}

// decodeData unwraps the {"data": T} envelope into out. Bodies without a
// data member are decoded whole.
func decodeData(resp *Response, out any) error {
	if out == nil || len(resp.Body) == 0 {
		return nil
	}

	var env struct {
		Data json.RawMessage `json:"data"`
	}
	payload := resp.Body
	if err := json.Unmarshal(resp.Body, &env); err == nil && len(env.Data) > 0 {
		payload = env.Data
	}

	if err := json.Unmarshal(payload, out); err != nil {
		e := apierr.FromTransport(fmt.Errorf("decode response: %w", err))
		e.Status = resp.StatusCode
		return e
	}
	return nil
}
