// File: internal/common/context_keys.go
package common

const (
	// AuthorizationHeader is the header name for authorization token
	AuthorizationHeader = "Authorization"
	// AuthorizationTypeBearer is the prefix for Bearer tokens
	AuthorizationTypeBearer = "Bearer"
	// UserIDKey is the context key for the authenticated identity id (uid)
	UserIDKey = "userID"
	// UserRoleKey is the context key for the authenticated user's role
	UserRoleKey = "userRole"
	// SessionIDKey is the context key for the session id carried by the token
	SessionIDKey = "sessionID"
	// TokenIDKey is the context key for the token's jti
	TokenIDKey = "tokenID"
	// TokenExpiryKey is the context key for the token's expiry time
	TokenExpiryKey = "tokenExpiry"
	// AuthTimeKey is the context key for when the token's session signed in
	AuthTimeKey = "authTime"
	// SessionKey is the context key for the resolved *session.Manager
	SessionKey = "session"
	// ProfileKey is the context key for the loaded *profile.UserProfile
	ProfileKey = "profile"
)
