package apiclient

import (
	"context"
	"net/http"
	"net/url"
)

// AccessTokenSource yields the token to attach, or "" when signed out.
type AccessTokenSource interface {
	AccessToken(ctx context.Context) string
}

// CSRF names the anti-forgery cookie and the header it is echoed into.
type CSRF struct {
	Jar        http.CookieJar
	BaseURL    *url.URL
	CookieName string
	HeaderName string
}

func (c CSRF) token() string {
	if c.Jar == nil || c.BaseURL == nil {
		return ""
	}
	for _, ck := range c.Jar.Cookies(c.BaseURL) {
		if ck.Name == c.CookieName {
			return ck.Value
		}
	}
	return ""
}

// Authorize attaches "Authorization: <scheme> <token>" when a token is stored
// and, for every verb except GET, the CSRF header when the cookie is present.
// Headers are read fresh on every dispatch so a replay picks up a refreshed token.
func Authorize(tokens AccessTokenSource, scheme string, csrf CSRF) Middleware {
	return func(next Doer) Doer {
		return func(ctx context.Context, req *Request) (*Response, error) {
			out := *req
			out.Header = req.Header.Clone()
			if out.Header == nil {
				out.Header = http.Header{}
			}

			if tok := tokens.AccessToken(ctx); tok != "" {
				out.Header.Set("Authorization", scheme+" "+tok)
			}

			if req.Method != http.MethodGet && csrf.HeaderName != "" {
				if v := csrf.token(); v != "" {
					out.Header.Set(csrf.HeaderName, v)
				}
			}

			return next(ctx, &out)
		}
	}
}
