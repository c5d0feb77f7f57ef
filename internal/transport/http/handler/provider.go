package handler

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const providerCodeTTL = time.Minute

type issuedCode struct {
	redirectURI string
	expiresAt   time.Time
}

// ProviderHandler is a stand-in OAuth provider for local development: it
// approves every consent request and trades codes for opaque tokens.
type ProviderHandler struct {
	clientID string
	secret   string
	logger   *slog.Logger

	mu    sync.Mutex
	codes map[string]issuedCode
}

func NewProviderHandler(clientID, secret string, logger *slog.Logger) *ProviderHandler {
	return &ProviderHandler{
		clientID: clientID,
		secret:   secret,
		logger:   logger.With("component", "dev_oauth_provider"),
		codes:    make(map[string]issuedCode),
	}
}

// GET /dev/oauth/authorize
// ?deny=1 simulates the user refusing consent.
func (h *ProviderHandler) Authorize(c *gin.Context) {
	redirectURI := c.Query("redirect_uri")
	target, err := url.Parse(redirectURI)
	if err != nil || !target.IsAbs() || c.Query("client_id") != h.clientID {
		c.String(http.StatusBadRequest, "invalid authorization request")
		return
	}

	q := target.Query()
	q.Set("state", c.Query("state"))
	if c.Query("deny") != "" {
		q.Set("error", "access_denied")
	} else {
		code := randomHex(16)
		h.mu.Lock()
		h.codes[code] = issuedCode{redirectURI: redirectURI, expiresAt: time.Now().Add(providerCodeTTL)}
		h.mu.Unlock()
		q.Set("code", code)
	}
	target.RawQuery = q.Encode()

	h.logger.InfoContext(c.Request.Context(), "consent answered", "provider", c.Query("provider"), "denied", c.Query("deny") != "")
	c.Redirect(http.StatusFound, target.String())
}

// POST /dev/oauth/token
func (h *ProviderHandler) Token(c *gin.Context) {
	id, secret, ok := c.Request.BasicAuth()
	if !ok {
		id, secret = c.PostForm("client_id"), c.PostForm("client_secret")
	}
	if subtle.ConstantTimeCompare([]byte(id), []byte(h.clientID)) != 1 ||
		subtle.ConstantTimeCompare([]byte(secret), []byte(h.secret)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_client"})
		return
	}
	if c.PostForm("grant_type") != "authorization_code" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported_grant_type"})
		return
	}

	code := c.PostForm("code")
	h.mu.Lock()
	issued, found := h.codes[code]
	delete(h.codes, code)
	h.mu.Unlock()

	if !found || time.Now().After(issued.expiresAt) || issued.redirectURI != c.PostForm("redirect_uri") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_grant"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":  randomHex(20),
		"refresh_token": randomHex(20),
		"token_type":    "Bearer",
		"expires_in":    3600,
	})
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
