package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ErlanBelekov/booking-portal/internal/metrics"
	"github.com/ErlanBelekov/booking-portal/internal/requestid"
)

const maxLoggedBody = 2048

const redacted = "[REDACTED]"

// secretKeys are body fields never written to logs, in either direction.
var secretKeys = map[string]bool{
	"password":         true,
	"password_confirm": true,
	"token":            true,
	"access":           true,
	"refresh":          true,
	"access_token":     true,
	"refresh_token":    true,
	"client_secret":    true,
}

// RequestID propagates the inbound request id, or mints one, as X-Request-ID.
func RequestID() Middleware {
	return func(next Doer) Doer {
		return func(ctx context.Context, req *Request) (*Response, error) {
			if req.Header.Get(requestid.Header) == "" {
				id := requestid.FromContext(ctx)
				if id == "" {
					id = requestid.New()
					ctx = requestid.WithRequestID(ctx, id)
				}
				req.Header.Set(requestid.Header, id)
			}
			return next(ctx, req)
		}
	}
}

// Metrics records the final outcome of a call, retries included.
func Metrics() Middleware {
	return func(next Doer) Doer {
		return func(ctx context.Context, req *Request) (*Response, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			status := "error"
			if err == nil {
				status = strconv.Itoa(resp.StatusCode)
			}
			metrics.APIRequestDuration.WithLabelValues(req.Method, status).Observe(time.Since(start).Seconds())
			metrics.APIRequestsTotal.WithLabelValues(req.Method, status).Inc()
			return resp, err
		}
	}
}

// Diagnostics logs every dispatch and completion at debug level. It is only
// installed outside production.
func Diagnostics(logger *slog.Logger) Middleware {
	return func(next Doer) Doer {
		return func(ctx context.Context, req *Request) (*Response, error) {
			logger.DebugContext(ctx, "api request",
				"method", req.Method,
				"path", req.Path,
				"params", req.Query.Encode(),
				"body", loggableBody(req.Body, req.ContentType),
			)

			resp, err := next(ctx, req)
			if err != nil {
				logger.DebugContext(ctx, "api request failed",
					"method", req.Method, "path", req.Path, "error", err)
				return nil, err
			}

			ct := resp.Header.Get("Content-Type")
			if req.Binary {
				ct = "application/octet-stream"
			}
			logger.DebugContext(ctx, "api response",
				"method", req.Method,
				"path", req.Path,
				"status", resp.StatusCode,
				"body", loggableBody(resp.Body, ct),
			)
			return resp, nil
		}
	}
}

func loggableBody(b []byte, contentType string) string {
	if contentType != "" && !isTextual(contentType) {
		if len(b) == 0 {
			return ""
		}
		return fmt.Sprintf("<%d bytes %s>", len(b), contentType)
	}
	b = redact(b, contentType)

	switch {
	case len(b) == 0:
		return ""
	case len(b) > maxLoggedBody:
		return string(b[:maxLoggedBody]) + "...(truncated)"
	default:
		return string(b)
	}
}

// redact masks secretKeys in JSON and form bodies. Bodies that fail to parse
// as their declared type are logged only by size.
func redact(b []byte, contentType string) []byte {
	if len(b) == 0 {
		return b
	}
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		form, err := url.ParseQuery(string(b))
		if err != nil {
			return []byte(fmt.Sprintf("<%d bytes unparseable form>", len(b)))
		}
		for k := range form {
			if secretKeys[strings.ToLower(k)] {
				form[k] = []string{redacted}
			}
		}
		return []byte(form.Encode())
	}

	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		if strings.HasPrefix(contentType, "application/json") {
			return []byte(fmt.Sprintf("<%d bytes unparseable json>", len(b)))
		}
		return b
	}
	out, err := json.Marshal(maskSecrets(v))
	if err != nil {
		return []byte(fmt.Sprintf("<%d bytes>", len(b)))
	}
	return out
}

func maskSecrets(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if secretKeys[strings.ToLower(k)] {
				t[k] = redacted
				continue
			}
			t[k] = maskSecrets(val)
		}
	case []any:
		for i, val := range t {
			t[i] = maskSecrets(val)
		}
	}
	return v
}

func isTextual(ct string) bool {
	for _, prefix := range []string{"application/json", "text/", "application/x-www-form-urlencoded"} {
		if strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	return false
}
