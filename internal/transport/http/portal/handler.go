// Package portal serves the local web surface: session endpoints backed by
// the session manager, and authenticated access to the backend through the
// API client.
package portal

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"

	"github.com/ErlanBelekov/booking-portal/internal/apiclient"
	"github.com/ErlanBelekov/booking-portal/internal/apierr"
	"github.com/ErlanBelekov/booking-portal/internal/domain"
	"github.com/ErlanBelekov/booking-portal/internal/integration"
	"github.com/ErlanBelekov/booking-portal/internal/session"
	"github.com/ErlanBelekov/booking-portal/internal/transport/http/handler"
	"github.com/ErlanBelekov/booking-portal/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"
)

type sessionManager interface {
	State() session.State
	Login(ctx context.Context, creds domain.LoginCredentials, redirect string) (string, error)
	Register(ctx context.Context, data domain.RegisterData) error
	Logout(ctx context.Context)
	RefreshUser(ctx context.Context) error
	UpdateProfile(ctx context.Context, partial map[string]any) error
}

type backend interface {
	Post(ctx context.Context, path string, body, out any, opts ...apiclient.Option) error
	Do(ctx context.Context, req *apiclient.Request) (*apiclient.Response, error)
	Upload(ctx context.Context, path string, form apiclient.Form, out any, opts ...apiclient.Option) error
	Download(ctx context.Context, path, filename string, opts ...apiclient.Option) (string, error)
}

type handshake interface {
	Initiate(ctx context.Context, provider string, typ domain.IntegrationType) (string, error)
	Complete(ctx context.Context, p integration.CallbackParams) (*domain.Integration, error)
}

type Handler struct {
	session sessionManager
	api     backend
	oauth   handshake
	logger  *slog.Logger
}

func NewHandler(mgr sessionManager, api backend, oauth handshake, logger *slog.Logger) *Handler {
	return &Handler{
		session: mgr,
		api:     api,
		oauth:   oauth,
		logger:  logger.With("component", "portal_handler"),
	}
}

type sessionResponse struct {
	Authenticated bool         `json:"authenticated"`
	Loading       bool         `json:"loading"`
	User          *domain.User `json:"user"`
}

// GET /session
func (h *Handler) Session(c *gin.Context) {
	st := h.session.State()
	respond(c, http.StatusOK, sessionResponse{Authenticated: st.Authenticated(), Loading: st.Loading, User: st.User})
}

type loginRequest struct {
	domain.LoginCredentials
	Redirect string `json:"redirect"`
}

// POST /auth/login
// The destination comes from the body or the ?redirect= the guard added.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}
	if req.Redirect == "" {
		req.Redirect = c.Query(domain.RedirectParam)
	}

	if _, err := h.session.Login(c.Request.Context(), req.LoginCredentials, req.Redirect); err != nil {
		writeError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, h.session.State().User)
}

// POST /auth/register
func (h *Handler) Register(c *gin.Context) {
	var data domain.RegisterData
	if err := c.ShouldBindJSON(&data); err != nil {
		handler.BindError(c, err)
		return
	}

	if err := h.session.Register(c.Request.Context(), data); err != nil {
		writeError(c, h.logger, err)
		return
	}
	respond(c, http.StatusCreated, h.session.State().User)
}

// POST /auth/logout
func (h *Handler) Logout(c *gin.Context) {
	h.session.Logout(c.Request.Context())
	respond(c, http.StatusOK, nil)
}

type verifyEmailRequest struct {
	Token string `json:"token" binding:"required"`
}

// POST /auth/verify-email
func (h *Handler) VerifyEmail(c *gin.Context) {
	var req verifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}

	var user domain.User
	ctx := c.Request.Context()
	if err := h.api.Post(ctx, apiclient.VerifyEmailEndpoint, req, &user, apiclient.WithoutAuthRetry()); err != nil {
		writeError(c, h.logger, err)
		return
	}
	if h.session.State().Authenticated() {
		if err := h.session.RefreshUser(ctx); err != nil {
			h.logger.WarnContext(ctx, "refresh user after verification", "error", err)
		}
	}
	respond(c, http.StatusOK, user)
}

// GET /profile
func (h *Handler) Profile(c *gin.Context) {
	respond(c, http.StatusOK, h.session.State().User)
}

// PATCH /profile
// The body is forwarded as a partial update.
func (h *Handler) UpdateProfile(c *gin.Context) {
	var partial map[string]any
	if err := c.ShouldBindJSON(&partial); err != nil {
		handler.BindError(c, err)
		return
	}

	if err := h.session.UpdateProfile(c.Request.Context(), partial); err != nil {
		writeError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, h.session.State().User)
}

type connectRequest struct {
	Provider string                 `json:"provider"         form:"provider"         binding:"required"`
	Type     domain.IntegrationType `json:"integration_type" form:"integration_type" binding:"required,oneof=calendar video"`
}

// GET|POST /integrations/connect
// Page loads are redirected to the provider; API clients get the URL.
func (h *Handler) Connect(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBind(&req); err != nil {
		handler.BindError(c, err)
		return
	}

	authURL, err := h.oauth.Initiate(c.Request.Context(), req.Provider, req.Type)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	if middleware.WantsJSON(c) {
		respond(c, http.StatusOK, gin.H{"authorization_url": authURL})
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

// GET /integrations/callback
// Where the provider sends the browser back. The outcome is reported on
// the integrations page.
func (h *Handler) Callback(c *gin.Context) {
	integ, err := h.oauth.Complete(c.Request.Context(), integration.CallbackParams{
		Code:  c.Query("code"),
		State: c.Query("state"),
		Error: c.Query("error"),
	})

	q := url.Values{}
	if err != nil {
		msg := callbackMessage(err, c.Query("error"))
		h.logger.WarnContext(c.Request.Context(), "oauth callback failed", "error", err)
		if middleware.WantsJSON(c) {
			c.JSON(http.StatusBadRequest, apierr.Error{Message: msg})
			return
		}
		q.Set("error", msg)
	} else {
		if middleware.WantsJSON(c) {
			respond(c, http.StatusOK, integ)
			return
		}
		q.Set("connected", integ.Provider)
	}
	c.Redirect(http.StatusFound, domain.IntegrationsPath+"?"+q.Encode())
}

func callbackMessage(err error, providerErr string) string {
	switch {
	case errors.Is(err, integration.ErrProviderDenied):
		return "OAuth error: " + providerErr
	case errors.Is(err, domain.ErrOAuthMissingParams):
		return "Missing code or state parameter"
	case errors.Is(err, domain.ErrOAuthExpired):
		return "OAuth session expired. Please try again."
	case errors.Is(err, domain.ErrOAuthStateMismatch):
		return "Invalid state parameter"
	}
	if e, ok := apierr.As(err); ok {
		return e.Message
	}
	return apierr.DefaultMessage
}

// POST /contacts/import (multipart, field "file")
func (h *Handler) ImportContacts(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, apierr.Error{
			Message:     "Invalid input.",
			Code:        "validation_error",
			FieldErrors: map[string][]string{"file": {"No file was submitted."}},
		})
		return
	}
	f, err := fh.Open()
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	defer f.Close()

	var result domain.ImportResult
	err = h.api.Upload(c.Request.Context(), apiclient.ContactsImportEndpoint, apiclient.Form{
		Files: []apiclient.File{{
			Field:       "file",
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Content:     f,
		}},
	}, &result)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, result)
}

// GET /contacts/export
// The file is kept in the download directory and also sent back.
func (h *Handler) ExportContacts(c *gin.Context) {
	path, err := h.api.Download(c.Request.Context(), apiclient.ContactsExportEndpoint, "contacts.csv")
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}
