package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ErlanBelekov/booking-portal/internal/domain"
	"github.com/gin-gonic/gin"
)

type userFinder interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
}

// EnsureUser runs after Auth. A valid token for an account that no longer
// exists is answered like an invalid token, so clients drop the session.
func EnsureUser(users userFinder, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := users.FindByID(c.Request.Context(), c.GetString("userID"))
		if errors.Is(err, domain.ErrUserNotFound) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not found", "code": "user_not_found"})
			return
		}
		if err != nil {
			logger.ErrorContext(c.Request.Context(), "ensure user lookup", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		if user.AccountStatus == domain.AccountSuspended {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Account is suspended", "code": "account_suspended"})
			return
		}
		c.Next()
	}
}
