package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/timmy/photovault/internal/logger"
	"github.com/timmy/photovault/internal/service"
)

// UserIDHeader carries the caller identity set by the upstream gateway.
const UserIDHeader = "X-User-ID"

const authKey = "auth"

// RequireUser rejects requests without a caller identity and stores it for handlers.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + UserIDHeader + " header"})
			return
		}
		c.Set(authKey, service.Auth{UserID: userID})
		c.Request = c.Request.WithContext(logger.SetOwnerID(c.Request.Context(), userID))
		c.Next()
	}
}

// GetAuth returns the caller stored by RequireUser.
func GetAuth(c *gin.Context) service.Auth {
	if v, ok := c.Get(authKey); ok {
		if auth, ok := v.(service.Auth); ok {
			return auth
		}
	}
	return service.Auth{}
}
