package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ErlanBelekov/booking-portal/internal/domain"
	"github.com/gin-gonic/gin"
)

// authUsecaser is the subset of AuthUsecase the handler needs.
// Defined here (point of use) so tests can inject a fake.
type authUsecaser interface {
	Login(ctx context.Context, creds domain.LoginCredentials, ip string) (*domain.AuthResponse, error)
	Register(ctx context.Context, data domain.RegisterData) (*domain.AuthResponse, error)
	Refresh(ctx context.Context, rawRefresh string) (*domain.TokenPair, error)
	Logout(ctx context.Context, userID string) error
	Profile(ctx context.Context, userID string) (*domain.User, error)
	UpdateProfile(ctx context.Context, userID string, upd domain.ProfileUpdate) (*domain.User, error)
	VerifyEmail(ctx context.Context, rawToken string) (*domain.User, error)
}

type AuthHandler struct {
	authUsecase authUsecaser
	logger      *slog.Logger
}

func NewAuthHandler(authUsecase authUsecaser, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		authUsecase: authUsecase,
		logger:      logger.With("component", "auth_handler"),
	}
}

// POST /api/v1/users/login/
func (h *AuthHandler) Login(c *gin.Context) {
	var creds domain.LoginCredentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		BindError(c, err)
		return
	}

	resp, err := h.authUsecase.Login(c.Request.Context(), creds, c.ClientIP())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, resp)
}

// POST /api/v1/users/register/
func (h *AuthHandler) Register(c *gin.Context) {
	var data domain.RegisterData
	if err := c.ShouldBindJSON(&data); err != nil {
		BindError(c, err)
		return
	}

	resp, err := h.authUsecase.Register(c.Request.Context(), data)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	respond(c, http.StatusCreated, resp)
}

type refreshRequest struct {
	Refresh string `json:"refresh" binding:"required"`
}

// POST /api/v1/users/refresh/
// Unauthenticated: the caller's access token is usually the expired one.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BindError(c, err)
		return
	}

	pair, err := h.authUsecase.Refresh(c.Request.Context(), req.Refresh)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, pair)
}

// POST /api/v1/users/logout/
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.authUsecase.Logout(c.Request.Context(), c.GetString("userID")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"detail": "Logged out"})
}

// GET /api/v1/users/profile/
func (h *AuthHandler) Profile(c *gin.Context) {
	user, err := h.authUsecase.Profile(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, user)
}

// PATCH /api/v1/users/profile/
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	var upd domain.ProfileUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		BindError(c, err)
		return
	}

	user, err := h.authUsecase.UpdateProfile(c.Request.Context(), c.GetString("userID"), upd)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, user)
}

type verifyEmailRequest struct {
	Token string `json:"token" binding:"required"`
}

// POST /api/v1/users/verify-email/
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req verifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BindError(c, err)
		return
	}

	user, err := h.authUsecase.VerifyEmail(c.Request.Context(), req.Token)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, user)
}
