package portal

import (
	"log/slog"

	"github.com/ErlanBelekov/booking-portal/internal/transport/http/handler"
	"github.com/ErlanBelekov/booking-portal/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"

	sloggin "github.com/samber/slog-gin"
)

// NewRouter builds the portal's HTTP surface. Routes that need a signed-in
// user sit behind RequireSession. tls reports whether the portal is served
// over https.
func NewRouter(logger *slog.Logger, h *Handler, sessions middleware.StateSource, tls bool) *gin.Engine {
	handler.UseJSONFieldNames()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security(tls))
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())
	r.Use(Navigation())

	r.GET("/session", h.Session)

	auth := r.Group("/auth")
	auth.POST("/login", h.Login)
	auth.POST("/register", h.Register)
	auth.POST("/logout", h.Logout)
	auth.POST("/verify-email", h.VerifyEmail)

	protected := r.Group("", middleware.RequireSession(sessions))
	protected.GET("/profile", h.Profile)
	protected.PATCH("/profile", h.UpdateProfile)
	protected.GET("/integrations/connect", h.Connect)
	protected.POST("/integrations/connect", h.Connect)
	protected.GET("/integrations/callback", h.Callback)
	protected.POST("/contacts/import", h.ImportContacts)
	protected.GET("/contacts/export", h.ExportContacts)

	r.Any("/api/v1/*path", h.Proxy)

	return r
}
