package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Executor is the bottom of the chain: it turns a Request into one HTTP round trip.
type Executor struct {
	client  *http.Client
	baseURL *url.URL
	timeout time.Duration
}

func NewExecutor(baseURL *url.URL, jar http.CookieJar, timeout time.Duration) *Executor {
	return &Executor{
		client:  &http.Client{Jar: jar}, // no global timeout, each call sets its own
		baseURL: baseURL,
		timeout: timeout,
	}
}

func (e *Executor) Do(ctx context.Context, r *Request) (*Response, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	target, err := e.resolve(r)
	if err != nil {
		return nil, fmt.Errorf("resolve url: %w", err)
	}

	var body io.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Accept") == "" {
		if r.Binary {
			req.Header.Set("Accept", "application/octet-stream")
		} else {
			req.Header.Set("Accept", "application/json")
		}
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		ct := r.ContentType
		if ct == "" {
			ct = "application/json"
		}
		req.Header.Set("Content-Type", ct)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// read to EOF so the connection goes back to the pool
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func (e *Executor) resolve(r *Request) (string, error) {
	ref, err := url.Parse(r.Path)
	if err != nil {
		return "", err
	}

	u := *e.baseURL
	u.Path = strings.TrimSuffix(e.baseURL.Path, "/") + "/" + strings.TrimPrefix(ref.Path, "/")
	u.RawPath = ""

	q := ref.Query()
	for k, vs := range r.Query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}
