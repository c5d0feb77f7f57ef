package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/gin-gonic/gin"
)

// CSRF issues a readable anti-forgery cookie and, for unsafe methods from
// clients that carry it, requires the same value echoed in headerName.
// Requests without the cookie are token-authenticated API calls and pass.
func CSRF(cookieName, headerName string, secure bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie, err := c.Cookie(cookieName)
		if err != nil || cookie == "" {
			b := make([]byte, 16)
			_, _ = rand.Read(b)
			http.SetCookie(c.Writer, &http.Cookie{
				Name:     cookieName,
				Value:    hex.EncodeToString(b),
				Path:     "/",
				Secure:   secure,
				SameSite: http.SameSiteLaxMode,
			})
			c.Next()
			return
		}

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
		default:
			if subtle.ConstantTimeCompare([]byte(c.GetHeader(headerName)), []byte(cookie)) != 1 {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"error": "CSRF Failed: CSRF token missing or incorrect.",
					"code":  "csrf_failed",
				})
				return
			}
		}
		c.Next()
	}
}
