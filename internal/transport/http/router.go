package httptransport

import (
	"log/slog"

	"github.com/ErlanBelekov/booking-portal/internal/repository"
	"github.com/ErlanBelekov/booking-portal/internal/transport/http/handler"
	"github.com/ErlanBelekov/booking-portal/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"

	sloggin "github.com/samber/slog-gin"
)

// Handlers groups everything the development backend serves.
type Handlers struct {
	Auth         *handler.AuthHandler
	Integrations *handler.IntegrationHandler
	Contacts     *handler.ContactsHandler
	Provider     *handler.ProviderHandler
}

type CSRFConfig struct {
	CookieName string
	HeaderName string
	Secure     bool
}

// NewRouter builds the development backend's REST API.
func NewRouter(logger *slog.Logger, h Handlers, userRepo repository.UserRepository, hmacKey []byte, csrf CSRFConfig) *gin.Engine {
	handler.UseJSONFieldNames()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security(csrf.Secure))
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	api := r.Group("/api/v1", middleware.CSRF(csrf.CookieName, csrf.HeaderName, csrf.Secure))

	authMW := middleware.Auth(hmacKey)
	ensureUser := middleware.EnsureUser(userRepo, logger)

	// Public user routes
	users := api.Group("/users")
	users.POST("/login/", h.Auth.Login)
	users.POST("/register/", h.Auth.Register)
	users.POST("/refresh/", h.Auth.Refresh)
	users.POST("/verify-email/", h.Auth.VerifyEmail)

	// Protected user routes
	me := api.Group("/users", authMW, ensureUser)
	me.POST("/logout/", h.Auth.Logout)
	me.GET("/profile/", h.Auth.Profile)
	me.PATCH("/profile/", h.Auth.UpdateProfile)

	integrations := api.Group("/integrations", authMW, ensureUser)
	integrations.GET("/", h.Integrations.List)
	integrations.POST("/oauth/initiate/", h.Integrations.Initiate)
	integrations.POST("/oauth/callback/", h.Integrations.Callback)

	contacts := api.Group("/contacts", authMW, ensureUser)
	contacts.POST("/import/", h.Contacts.Import)
	contacts.GET("/export/", h.Contacts.Export)

	// Stand-in OAuth provider
	dev := r.Group("/dev/oauth")
	dev.GET("/authorize", h.Provider.Authorize)
	dev.POST("/token", h.Provider.Token)

	return r
}
