package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/ErlanBelekov/booking-portal/internal/domain"
	"github.com/ErlanBelekov/booking-portal/internal/guard"
	ctxlog "github.com/ErlanBelekov/booking-portal/internal/log"
	"github.com/ErlanBelekov/booking-portal/internal/session"
	"github.com/gin-gonic/gin"
)

// StateSource is satisfied by *session.Manager.
type StateSource interface {
	State() session.State
}

// RequireSession gates a route on the session. While the initial check is
// running it answers 503 with Retry-After so nothing protected and no login
// redirect is shown. Signed-out visitors are sent to the login page, or get
// a JSON 401 when they asked for JSON. On success "user" is set in the gin context.
func RequireSession(src StateSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := guard.Evaluate(src.State(), c.Request.URL.RequestURI(), domain.LoginPath)

		switch d.Outcome {
		case guard.Loading:
			c.Header("Retry-After", "1")
			c.Header("Cache-Control", "no-store")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "loading"})
		case guard.Redirect:
			if WantsJSON(c) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized, "redirect": d.Location})
				return
			}
			c.Redirect(http.StatusFound, d.Location)
			c.Abort()
		default:
			c.Set("user", d.User)
			c.Request = c.Request.WithContext(ctxlog.WithAttrs(c.Request.Context(), slog.String("user_id", d.User.ID)))
			c.Next()
		}
	}
}

// WantsJSON reports whether the caller is an API client rather than a page load.
func WantsJSON(c *gin.Context) bool {
	return strings.HasPrefix(c.Request.URL.Path, "/api/") ||
		strings.Contains(c.GetHeader("Accept"), "application/json")
}
