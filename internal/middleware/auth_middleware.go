package middleware

import (
	"context"
	"net/http"
	"strings"

	"huntcall/internal/services"
	"huntcall/internal/transport/httpdto"
	"huntcall/pkg/logger"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware verifies the bearer token and stores the caller identity
// in the request context.
func AuthMiddleware(service *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c)
		claims, err := service.ParseAccessToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
			c.Abort()
			return
		}

		ctx := services.WithIdentity(c.Request.Context(), claims.Identity())
		ctx = context.WithValue(ctx, logger.UserIdKey, claims.UserID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// AdminMiddleware rejects callers whose token lacks the admin claim. It
// must run after AuthMiddleware.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := services.IdentityFromContext(c.Request.Context())
		if !ok || !id.Admin {
			c.JSON(http.StatusForbidden, httpdto.NewErrorResponse("forbidden", "FORBIDDEN"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func extractBearer(c *gin.Context) string {
	value := c.GetHeader("Authorization")
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
