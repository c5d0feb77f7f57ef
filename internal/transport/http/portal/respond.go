package portal

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ErlanBelekov/booking-portal/internal/apierr"
	"github.com/ErlanBelekov/booking-portal/internal/session"
	"github.com/ErlanBelekov/booking-portal/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"
)

const (
	navigationKey  = "navigation"
	redirectHeader = "X-Portal-Redirect"
)

// Navigation gives every request a slot for session transitions to write
// their destination into. Handlers that write nothing get a redirect (or a
// JSON {"redirect": ...}) to it.
func Navigation() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, nav := session.WithNavigation(c.Request.Context())
		c.Request = c.Request.WithContext(ctx)
		c.Set(navigationKey, nav)
		c.Next()

		loc := nav.Location()
		if loc == "" || c.Writer.Written() {
			return
		}
		if middleware.WantsJSON(c) {
			c.JSON(http.StatusOK, gin.H{"redirect": loc})
			return
		}
		c.Redirect(http.StatusSeeOther, loc)
	}
}

func location(c *gin.Context) string {
	if v, ok := c.Get(navigationKey); ok {
		if nav, ok := v.(*session.Navigation); ok {
			return nav.Location()
		}
	}
	return ""
}

// respond wraps data in the {"data": ...} envelope and adds the pending
// navigation, if any.
func respond(c *gin.Context, status int, data any) {
	body := gin.H{"data": data}
	if loc := location(c); loc != "" {
		body["redirect"] = loc
		c.Header(redirectHeader, loc)
	}
	c.JSON(status, body)
}

// writeError relays a normalized backend error. Transport failures become
// 502 since the portal itself is fine.
func writeError(c *gin.Context, logger *slog.Logger, err error) {
	if loc := location(c); loc != "" {
		c.Header(redirectHeader, loc)
	}

	if errors.Is(err, session.ErrSessionChanged) {
		c.JSON(http.StatusConflict, apierr.Error{Message: "Your session changed. Please try again."})
		return
	}

	e, ok := apierr.As(err)
	if !ok {
		logger.ErrorContext(c.Request.Context(), "portal request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, apierr.Error{Message: apierr.DefaultMessage})
		return
	}

	status := e.Status
	switch {
	case e.Transport():
		status = http.StatusBadGateway
		logger.WarnContext(c.Request.Context(), "backend unreachable", "error", e)
	case status < http.StatusBadRequest:
		// the backend answered 2xx with a body we could not decode
		status = http.StatusBadGateway
		logger.ErrorContext(c.Request.Context(), "undecodable backend reply", "error", e)
	}
	c.JSON(status, e)
}
