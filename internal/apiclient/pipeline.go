package apiclient

import (
	"context"
	"net/http"
	"net/url"
)

// Request describes one backend call in a form that can be dispatched more
// than once. Body is held in memory so a replay sends identical bytes.
type Request struct {
	Method      string
	Path        string
	Header      http.Header
	Query       url.Values
	Body        []byte
	ContentType string

	// Binary asks for a raw body instead of a JSON envelope.
	Binary bool

	// SkipAuthRetry leaves a 401 alone instead of refreshing the access token.
	SkipAuthRetry bool

	authRetried      bool
	rateLimitRetried bool
}

// AuthRetried reports whether the request has already been replayed after a token refresh.
func (r *Request) AuthRetried() bool { return r.authRetried }

// RateLimitRetried reports whether the request has already been replayed after a 429.
func (r *Request) RateLimitRetried() bool { return r.rateLimitRetried }

// fresh returns a copy with its own header map and zeroed retry counters.
func (r *Request) fresh() *Request {
	cp := *r
	cp.Header = r.Header.Clone()
	if cp.Header == nil {
		cp.Header = http.Header{}
	}
	cp.authRetried = false
	cp.rateLimitRetried = false
	return &cp
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// Doer dispatches a request. Non-2xx statuses are returned as responses;
// the error is reserved for calls that produced no response at all.
type Doer func(ctx context.Context, req *Request) (*Response, error)

type Middleware func(next Doer) Doer

// Chain wraps base with mws so that mws[0] sees the call first.
func Chain(base Doer, mws ...Middleware) Doer {
	d := base
	for i := len(mws) - 1; i >= 0; i-- {
		d = mws[i](d)
	}
	return d
}
