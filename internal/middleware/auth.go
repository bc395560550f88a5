// File: internal/middleware/auth.go
package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"live_learning_backend/internal/access"
	"live_learning_backend/internal/auth"
	"live_learning_backend/internal/common"
	"live_learning_backend/internal/profile"
	"live_learning_backend/internal/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TokenMiddleware validates the bearer token and stores its claims in the context.
func TokenMiddleware(tokens auth.TokenService, blocklist auth.TokenBlocklist, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader(common.AuthorizationHeader) == "" {
			logger.Debug("Authorization header missing")
			common.RespondWithError(c, common.ErrUnauthorized.WithDetails("Authorization header is required."))
			return
		}
		tokenString := common.GetTokenFromContext(c)
		if tokenString == "" {
			logger.Debug("Authorization header format invalid")
			common.RespondWithError(c, common.ErrUnauthorized.WithDetails("Authorization header format must be 'Bearer <token>'."))
			return
		}

		claims, err := tokens.ValidateToken(tokenString)
		if err != nil {
			logger.Debug("Token validation failed", zap.Error(err))
			common.RespondWithError(c, common.ErrUnauthorized.WithDetails("Invalid or expired token."))
			return
		}

		revoked, err := blocklist.IsBlocklisted(c.Request.Context(), claims.ID)
		if err != nil {
			logger.Error("Blocklist lookup failed", zap.Error(err))
			common.RespondWithError(c, common.ErrServiceUnavailable)
			return
		}
		if revoked {
			common.RespondWithError(c, common.ErrUnauthorized.WithDetails("Token has been revoked."))
			return
		}

		c.Set(common.UserIDKey, claims.UID)
		c.Set(common.SessionIDKey, claims.SessionID)
		c.Set(common.UserRoleKey, claims.Role)
		c.Set(common.TokenIDKey, claims.ID)
		c.Set(common.AuthTimeKey, claims.AuthenticatedAt())
		if claims.ExpiresAt != nil {
			c.Set(common.TokenExpiryKey, claims.ExpiresAt.Time)
		}
		c.Next()
	}
}

// GuardConfig configures SessionGuard.
type GuardConfig struct {
	// Wait bounds how long a request waits for a loading session to settle.
	Wait time.Duration
	// Redirect is the public entry point unauthenticated clients are sent to.
	Redirect string
}

// SessionGuard admits a request only when its session is Ready. It must run
// after TokenMiddleware. Every other state is rejected with a redirect hint.
func SessionGuard(sessions *session.Registry, cfg GuardConfig, logger *zap.Logger) gin.HandlerFunc {
	deny := func(c *gin.Context, state session.State, reason string) {
		apiErr := common.ErrUnauthorized.WithDetails(gin.H{
			"state":    state,
			"reason":   reason,
			"redirect": cfg.Redirect,
		})
		c.Header("Location", cfg.Redirect)
		c.AbortWithStatusJSON(http.StatusUnauthorized, apiErr)
	}

	return func(c *gin.Context) {
		sid := common.GetSessionIDFromContext(c)
		uid := common.GetUserIDFromContext(c)
		if sid == "" || uid == "" {
			deny(c, session.StateUnauthenticated, "missing session")
			return
		}

		ctx := c.Request.Context()
		if cfg.Wait > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Wait)
			defer cancel()
		}

		m, err := sessions.Resume(ctx, sid, uid, common.GetAuthTimeFromContext(c))
		if err != nil {
			logger.Debug("Session could not be resumed", zap.String("sid", sid), zap.Error(err))
			deny(c, session.StateUnauthenticated, "session not found")
			return
		}

		snap, err := m.AwaitSettled(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				deny(c, snap.State, "session still loading")
				return
			}
			deny(c, snap.State, "session unavailable")
			return
		}

		switch snap.State {
		case session.StateReady:
		case session.StateProfileMissing:
			deny(c, snap.State, "profile missing")
			return
		default:
			deny(c, snap.State, "not signed in")
			return
		}
		if snap.Identity == nil || snap.Identity.UID != uid || snap.Profile == nil {
			deny(c, snap.State, "session belongs to another identity")
			return
		}

		c.Set(common.SessionKey, m)
		c.Set(common.ProfileKey, snap.Profile)
		c.Set(common.UserRoleKey, string(snap.Profile.Role))
		c.Next()
	}
}

// GetProfileFromContext returns the profile stored by SessionGuard.
func GetProfileFromContext(c *gin.Context) *profile.UserProfile {
	val, exists := c.Get(common.ProfileKey)
	if !exists {
		return nil
	}
	p, ok := val.(*profile.UserProfile)
	if !ok {
		return nil
	}
	return p
}

// GetSessionFromContext returns the session stored by SessionGuard.
func GetSessionFromContext(c *gin.Context) *session.Manager {
	val, exists := c.Get(common.SessionKey)
	if !exists {
		return nil
	}
	m, ok := val.(*session.Manager)
	if !ok {
		return nil
	}
	return m
}

// RequireCapability rejects requests whose profile role is not granted cap.
// It must run after SessionGuard.
func RequireCapability(cap access.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := GetProfileFromContext(c)
		if p == nil {
			common.RespondWithError(c, common.ErrForbidden.WithDetails("User profile not found in context."))
			return
		}
		if !access.CanAccess(cap, p.Role) {
			min, _ := access.MinimumRole(cap)
			common.RespondWithError(c, common.ErrForbidden.WithDetails(gin.H{
				"capability":   cap,
				"role":         p.Role,
				"requiredRole": min,
			}))
			return
		}
		c.Next()
	}
}
