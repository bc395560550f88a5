// File: internal/common/context_helpers.go
package common

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// GetTokenFromContext retrieves the JWT token string from the Authorization header.
// Returns an empty string if not found.
func GetTokenFromContext(c *gin.Context) string {
	authHeader := c.GetHeader(AuthorizationHeader)
	if authHeader == "" {
		return ""
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], AuthorizationTypeBearer) {
		return ""
	}
	return parts[1]
}

// GetUserIDFromContext retrieves the identity id from the Gin context.
func GetUserIDFromContext(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// GetUserRoleFromContext retrieves the user role from the Gin context.
func GetUserRoleFromContext(c *gin.Context) string {
	return c.GetString(UserRoleKey)
}

// GetSessionIDFromContext retrieves the session id from the Gin context.
func GetSessionIDFromContext(c *gin.Context) string {
	return c.GetString(SessionIDKey)
}

// GetTokenIDFromContext retrieves the token jti from the Gin context.
func GetTokenIDFromContext(c *gin.Context) string {
	return c.GetString(TokenIDKey)
}

// GetTokenExpiryFromContext retrieves the token expiry from the Gin context.
func GetTokenExpiryFromContext(c *gin.Context) time.Time {
	return c.GetTime(TokenExpiryKey)
}

// GetAuthTimeFromContext retrieves when the token's session signed in.
func GetAuthTimeFromContext(c *gin.Context) time.Time {
	return c.GetTime(AuthTimeKey)
}
