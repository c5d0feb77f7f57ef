package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ErlanBelekov/booking-portal/internal/apierr"
	"github.com/ErlanBelekov/booking-portal/internal/domain"
	"github.com/ErlanBelekov/booking-portal/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// refreshTimeout bounds the shared refresh, which outlives any one caller.
const refreshTimeout = 30 * time.Second

// maxRetryAfterSecs caps a delta-seconds hint well below Duration overflow.
const maxRetryAfterSecs = 24 * 60 * 60

var (
	ErrNoRefreshToken = errors.New("no refresh token stored")
	ErrEmptyToken     = errors.New("refresh response carried no token")
)

// CredentialStore is the slice of the token store the retry controller needs.
type CredentialStore interface {
	AccessToken(ctx context.Context) string
	RefreshToken(ctx context.Context) string
	SetCredentials(ctx context.Context, creds domain.Credentials) error
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type RetryConfig struct {
	Tokens CredentialStore

	// OnAuthLost runs once per request whose refresh failed.
	OnAuthLost func(ctx context.Context)

	// Sleep defaults to a context-aware timer.
	Sleep SleepFunc

	// Now is used to resolve HTTP-date Retry-After values.
	Now func() time.Time

	Logger *slog.Logger
}

type retrier struct {
	cfg   RetryConfig
	group singleflight.Group
}

// Retry recovers a call from one expired access token and one rate-limit
// rejection. The refresh call is dispatched on next, below this middleware,
// so it can never trigger another refresh.
func Retry(cfg RetryConfig) Middleware {
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.OnAuthLost == nil {
		cfg.OnAuthLost = func(context.Context) {}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	r := &retrier{cfg: cfg}
	return r.wrap
}

func (r *retrier) wrap(next Doer) Doer {
	return func(ctx context.Context, req *Request) (*Response, error) {
		sent := r.cfg.Tokens.AccessToken(ctx)
		resp, err := next(ctx, req)

		for {
			if err != nil {
				return nil, err
			}

			switch {
			case resp.StatusCode == http.StatusUnauthorized && !req.authRetried && !req.SkipAuthRetry:
				req.authRetried = true

				// another call may have refreshed while this one was in flight
				if cur := r.cfg.Tokens.AccessToken(ctx); cur == "" || cur == sent {
					if rerr := r.refresh(ctx, next); rerr != nil {
						// the caller gave up; that says nothing about the session
						if ctx.Err() != nil {
							return nil, ctx.Err()
						}
						r.cfg.Logger.WarnContext(ctx, "token refresh failed",
							"method", req.Method, "path", req.Path, "error", rerr)
						metrics.TokenRefreshesTotal.WithLabelValues("failure").Inc()
						r.cfg.OnAuthLost(ctx)
						return resp, nil
					}
					metrics.TokenRefreshesTotal.WithLabelValues("success").Inc()
				}

				metrics.APIRetriesTotal.WithLabelValues("auth").Inc()
				sent = r.cfg.Tokens.AccessToken(ctx)
				resp, err = next(ctx, req)

			case resp.StatusCode == http.StatusTooManyRequests && !req.rateLimitRetried:
				delay, ok := RetryAfter(resp.Header.Get("Retry-After"), r.cfg.Now())
				if !ok {
					return resp, nil
				}
				req.rateLimitRetried = true

				r.cfg.Logger.DebugContext(ctx, "rate limited, backing off",
					"method", req.Method, "path", req.Path, "delay", delay)
				if serr := r.cfg.Sleep(ctx, delay); serr != nil {
					return nil, fmt.Errorf("wait for rate limit: %w", serr)
				}

				metrics.APIRetriesTotal.WithLabelValues("rate_limit").Inc()
				resp, err = next(ctx, req)

			default:
				return resp, nil
			}
		}
	}
}

// refresh exchanges the stored refresh token for a new access token.
// Concurrent refreshes of the same token share one backend call. That call
// runs detached from ctx so one caller leaving cannot fail it for the others.
func (r *retrier) refresh(ctx context.Context, next Doer) error {
	token := r.cfg.Tokens.RefreshToken(ctx)
	if token == "" {
		return ErrNoRefreshToken
	}

	ch := r.group.DoChan(token, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return nil, r.exchange(rctx, next, token)
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (r *retrier) exchange(ctx context.Context, next Doer, token string) error {
	body, err := json.Marshal(map[string]string{"refresh": token})
	if err != nil {
		return fmt.Errorf("encode refresh body: %w", err)
	}

	resp, err := next(ctx, &Request{
		Method:        http.MethodPost,
		Path:          RefreshEndpoint,
		Header:        http.Header{},
		Body:          body,
		SkipAuthRetry: true,
	})
	if err != nil {
		return fmt.Errorf("refresh token: %w", err)
	}
	if !resp.OK() {
		return fmt.Errorf("refresh token: %w", apierr.FromResponse(resp.StatusCode, resp.Body))
	}

	creds, err := parseRefresh(resp.Body)
	if err != nil {
		return err
	}
	if err := r.cfg.Tokens.SetCredentials(ctx, creds); err != nil {
		return fmt.Errorf("store refreshed token: %w", err)
	}
	return nil
}

type refreshPayload struct {
	Token   string `json:"token"`
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// parseRefresh accepts {"data":{"token":...}} as well as a bare {"token":...}.
func parseRefresh(body []byte) (domain.Credentials, error) {
	var env struct {
		Data *refreshPayload `json:"data"`
		refreshPayload
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return domain.Credentials{}, fmt.Errorf("decode refresh response: %w", err)
	}

	p := env.refreshPayload
	if env.Data != nil {
		p = *env.Data
	}
	access := p.Token
	if access == "" {
		access = p.Access
	}
	if access == "" {
		return domain.Credentials{}, ErrEmptyToken
	}
	return domain.Credentials{Access: access, Refresh: p.Refresh}, nil
}

// RetryAfter parses a Retry-After header given either as delta seconds or
// as an HTTP-date. Dates in the past yield a zero delay.
func RetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(min(secs, maxRetryAfterSecs)) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil {
		return max(at.Sub(now), 0), true
	}
	return 0, false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
