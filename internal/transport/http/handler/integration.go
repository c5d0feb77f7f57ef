package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ErlanBelekov/booking-portal/internal/domain"
	"github.com/gin-gonic/gin"
)

type integrationUsecaser interface {
	Initiate(ctx context.Context, userID string, req domain.OAuthInitiateRequest) (*domain.OAuthInitiation, error)
	Complete(ctx context.Context, userID string, cb domain.OAuthCallback) (*domain.Integration, error)
	List(ctx context.Context, userID string) ([]domain.Integration, error)
}

type IntegrationHandler struct {
	uc     integrationUsecaser
	logger *slog.Logger
}

func NewIntegrationHandler(uc integrationUsecaser, logger *slog.Logger) *IntegrationHandler {
	return &IntegrationHandler{uc: uc, logger: logger.With("component", "integration_handler")}
}

// POST /api/v1/integrations/oauth/initiate/
func (h *IntegrationHandler) Initiate(c *gin.Context) {
	var req domain.OAuthInitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BindError(c, err)
		return
	}

	out, err := h.uc.Initiate(c.Request.Context(), c.GetString("userID"), req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, out)
}

// POST /api/v1/integrations/oauth/callback/
func (h *IntegrationHandler) Callback(c *gin.Context) {
	var cb domain.OAuthCallback
	if err := c.ShouldBindJSON(&cb); err != nil {
		BindError(c, err)
		return
	}

	integ, err := h.uc.Complete(c.Request.Context(), c.GetString("userID"), cb)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, integ)
}

// GET /api/v1/integrations/
func (h *IntegrationHandler) List(c *gin.Context) {
	list, err := h.uc.List(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, list)
}
