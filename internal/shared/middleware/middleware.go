package middleware

import (
	"net/http"
	"strconv"

	"tixgate/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
)

// UserContext extracts the authenticated user injected by the API gateway.
// Authentication itself happens upstream; this service trusts the X-User-Id
// header on internal routes.
func UserContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID := c.GetHeader("X-User-Id"); userID != "" {
			c.Set("user_id", userID)
		}
		c.Next()
	}
}

// RequireUser rejects requests that arrived without a gateway-injected user.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get("user_id"); !exists {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "X-User-Id header is required", nil, nil)
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetUserID returns the user id set by UserContext.
func GetUserID(c *gin.Context) (string, bool) {
	v, exists := c.Get("user_id")
	if !exists {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// GetUserIDUint parses the gateway user id as a numeric id.
func GetUserIDUint(c *gin.Context) (uint64, bool) {
	id, ok := GetUserID(c)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
