package middleware

import (
	"github.com/ErlanBelekov/booking-portal/internal/requestid"
	"github.com/gin-gonic/gin"
)

// RequestID keeps a well-formed inbound X-Request-ID and mints one
// otherwise. The id is echoed back and travels on in the request context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := requestid.Accept(c.GetHeader(requestid.Header))
		if id == "" {
			id = requestid.New()
		}

		c.Request = c.Request.WithContext(requestid.WithRequestID(c.Request.Context(), id))
		c.Header(requestid.Header, id)
		c.Next()
	}
}
