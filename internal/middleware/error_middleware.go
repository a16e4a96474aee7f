package middleware

import (
	"huntcall/internal/transport/httpdto"
	huntcall_errors "huntcall/pkg/errors"
	"huntcall/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandler logs errors recorded on the context and writes a response
// when the handler did not.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		status := huntcall_errors.HTTPStatus(err)
		if l != nil {
			log := l.WithContext(c.Request.Context())
			if status >= 500 {
				log.Error("request error", zap.String("path", c.Request.URL.Path), zap.Error(err))
			} else {
				log.Debug("request rejected", zap.String("path", c.Request.URL.Path), zap.Error(err))
			}
		}
		if c.Writer.Written() {
			return
		}
		c.JSON(status, httpdto.FromError(err))
	}
}
