package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/Anylayerorg/landing-sub001/pkg/logger"
	"github.com/gin-gonic/gin"
)

// Recovery turns a panic in a handler into a 500 and logs the stack.
// A response that has already started is left as is.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			ctx := c.Request.Context()
			if id := c.Param("id"); id != "" {
				ctx = logger.WithSubmission(ctx, id)
			}
			logger.Error(ctx, "panic recovered",
				"error", rec,
				"method", c.Request.Method,
				"route", c.FullPath(),
				"stack", string(debug.Stack()),
			)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":      "Internal server error",
				"request_id": GetRequestID(c),
			})
		}()

		c.Next()
	}
}
