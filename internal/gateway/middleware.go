package gateway

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vyrodovalexey/routegw/internal/observability"
	"github.com/vyrodovalexey/routegw/internal/util"
)

// recovery turns a panic in any handler into a 500 JSON response.
func recovery(logger observability.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, err any) {
		logger.Error("panic recovered",
			observability.String("path", c.Request.URL.Path),
			observability.String("method", c.Request.Method),
			observability.Any("error", err),
			observability.String("stack", string(debug.Stack())),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	})
}

// requestID stores the inbound request id, or a new one, in the request
// context and echoes it on the response. header returns the header name
// of the active configuration.
func requestID(header func() string) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := header()
		id := c.GetHeader(name)
		if id == "" {
			id = uuid.New().String()
		}

		ctx := util.ContextWithRequestID(c.Request.Context(), id)
		c.Request = c.Request.WithContext(ctx)
		c.Header(name, id)

		c.Next()
	}
}

// accessLog logs every completed request.
func accessLog(logger observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Info("http request",
			observability.String("method", c.Request.Method),
			observability.String("path", c.Request.URL.Path),
			observability.String("query", c.Request.URL.RawQuery),
			observability.Int("status", c.Writer.Status()),
			observability.Int("size", c.Writer.Size()),
			observability.Duration("duration", time.Since(start)),
			observability.String("remote_addr", c.Request.RemoteAddr),
			observability.String("user_agent", c.Request.UserAgent()),
			observability.String("request_id", util.RequestIDFromContext(c.Request.Context())),
		)
	}
}
