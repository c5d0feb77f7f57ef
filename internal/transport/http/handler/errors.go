package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/ErlanBelekov/booking-portal/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"golang.org/x/oauth2"
)

const (
	errInternalServer = "Internal server error"
	errTokenInvalid   = "Token is invalid or expired"
	errInvalidInput   = "Invalid input."
	errInvalidBody    = "Request body is not valid JSON"
	errRateLimited    = "Too many attempts. Try again later."
)

var registerTagName sync.Once

// UseJSONFieldNames makes binding errors name fields the way clients send them.
func UseJSONFieldNames() {
	registerTagName.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	})
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"data": data})
}

// BindError answers a failed ShouldBind* with field errors when the body
// parsed but did not validate.
func BindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBody, "details": err.Error(), "code": "parse_error"})
		return
	}

	fields := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = append(fields[fe.Field()], fieldMessage(fe))
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidInput, "code": "validation_error", "field_errors": fields})
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "url":
		return "Enter a valid URL."
	case "min":
		return "Ensure this field has at least " + fe.Param() + " characters."
	case "max":
		return "Ensure this field has no more than " + fe.Param() + " characters."
	case "eqfield":
		return "Passwords do not match."
	case "oneof":
		return "Must be one of: " + fe.Param() + "."
	default:
		return "Invalid value."
	}
}

// writeError maps usecase errors onto the backend's error envelope.
func writeError(c *gin.Context, logger *slog.Logger, err error) {
	var (
		verr *domain.ValidationError
		rl   *domain.RateLimitError
		re   *oauth2.RetrieveError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidInput, "code": "validation_error", "field_errors": verr.Fields})
	case errors.As(err, &rl):
		if secs := int64(rl.RetryAfter.Seconds()); secs > 0 {
			c.Header("Retry-After", strconv.FormatInt(secs, 10))
		}
		c.JSON(http.StatusTooManyRequests, gin.H{"error": errRateLimited, "code": "rate_limited"})
	case errors.Is(err, domain.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password", "code": "invalid_credentials"})
	case errors.Is(err, domain.ErrAccountSuspended):
		c.JSON(http.StatusForbidden, gin.H{"error": "Account is suspended", "code": "account_suspended"})
	case errors.Is(err, domain.ErrEmailTaken):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":        errInvalidInput,
			"code":         "validation_error",
			"field_errors": map[string][]string{"email": {"A user with this email already exists."}},
		})
	case errors.Is(err, domain.ErrTokenInvalid):
		c.JSON(http.StatusUnauthorized, gin.H{"error": errTokenInvalid, "code": "token_not_valid"})
	case errors.Is(err, domain.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found", "code": "not_found"})
	case errors.Is(err, domain.ErrUnknownProvider):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported provider", "details": err.Error(), "code": "unknown_provider"})
	case errors.Is(err, domain.ErrOAuthExpired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "OAuth session expired. Please try again.", "code": "oauth_expired"})
	case errors.Is(err, domain.ErrOAuthStateMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid state parameter", "code": "oauth_state_mismatch"})
	case errors.Is(err, domain.ErrBadContactsFile):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read the uploaded file", "details": err.Error(), "code": "invalid_file"})
	case errors.As(err, &re):
		logger.WarnContext(c.Request.Context(), "provider rejected code", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Provider rejected the authorization code", "code": "oauth_exchange_failed"})
	default:
		logger.ErrorContext(c.Request.Context(), "unhandled error", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
	}
}
