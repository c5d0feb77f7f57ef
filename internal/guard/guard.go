// Package guard decides whether a request may see an authenticated view.
package guard

import (
	"net/url"

	"github.com/ErlanBelekov/booking-portal/internal/domain"
	"github.com/ErlanBelekov/booking-portal/internal/session"
)

type Outcome int

const (
	// Allow renders the protected view.
	Allow Outcome = iota
	// Loading renders a neutral placeholder; the initial auth check is still running.
	Loading
	// Redirect sends the visitor to the login page.
	Redirect
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case Loading:
		return "loading"
	case Redirect:
		return "redirect"
	default:
		return "unknown"
	}
}

type Decision struct {
	Outcome  Outcome
	Location string
	User     *domain.User
}

// Evaluate never redirects before loading has resolved.
func Evaluate(state session.State, requestURI, loginPath string) Decision {
	switch {
	case state.Loading:
		return Decision{Outcome: Loading}
	case state.User == nil:
		return Decision{Outcome: Redirect, Location: LoginURL(loginPath, requestURI)}
	default:
		return Decision{Outcome: Allow, User: state.User}
	}
}

// LoginURL appends the current path as the redirect parameter.
func LoginURL(loginPath, requestURI string) string {
	if requestURI == "" {
		return loginPath
	}
	q := url.Values{domain.RedirectParam: {requestURI}}
	return loginPath + "?" + q.Encode()
}
