package middleware

import (
	"regexp"

	"github.com/Anylayerorg/landing-sub001/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Client supplied ids end up in logs and in backend calls
var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// RequestID tags each request with an id. A well-formed X-Request-ID
// from the caller is kept; anything else is replaced by a fresh uuid.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if !requestIDPattern.MatchString(requestID) {
			requestID = uuid.New().String()
		}

		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), requestID))

		c.Next()
	}
}

// GetRequestID gets the request ID from gin context
func GetRequestID(c *gin.Context) string {
	if requestID, exists := c.Get("request_id"); exists {
		return requestID.(string)
	}
	return ""
}
