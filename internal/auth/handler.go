// File: internal/auth/handler.go
package auth

import (
	"context"
	"errors"
	"net/http"

	"live_learning_backend/internal/common"
	"live_learning_backend/internal/identity"
	"live_learning_backend/internal/profile"
	"live_learning_backend/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Handler struct holds dependencies for auth handlers.
type Handler struct {
	sessions  *session.Registry
	tokens    TokenService
	blocklist TokenBlocklist
	google    *GoogleOAuth
	logger    *zap.Logger
}

// NewHandler creates a new auth handler. google may be nil.
func NewHandler(
	sessions *session.Registry,
	tokens TokenService,
	blocklist TokenBlocklist,
	google *GoogleOAuth,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		sessions:  sessions,
		tokens:    tokens,
		blocklist: blocklist,
		google:    google,
		logger:    logger.Named("auth.handler"),
	}
}

// RegisterRoutes sets up the routes for authentication operations.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup, tokenMiddleware gin.HandlerFunc) {
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", h.register)
		authGroup.POST("/login", h.login)
		authGroup.POST("/google", h.googleCredentialLogin)
		authGroup.GET("/google/login", h.googleLogin)
		authGroup.GET("/google/callback", h.googleCallback)

		authed := authGroup.Group("", tokenMiddleware)
		authed.POST("/logout", h.logout)
		authed.GET("/session", h.getSession)
		authed.DELETE("/session/error", h.clearSessionError)
	}
}

func (h *Handler) bindJSON(c *gin.Context, req interface{}, op string) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.logger.Warn(op+": Invalid request body", zap.Error(err))
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			common.RespondWithError(c, common.NewValidationAPIError(common.FormatValidationErrors(ve)))
			return false
		}
		common.RespondWithError(c, common.ErrBadRequest.WithDetails(err.Error()))
		return false
	}
	return true
}

type signInFunc func(ctx context.Context, m *session.Manager) (*profile.UserProfile, error)

// startSession runs signIn on a fresh session and issues its token. The
// session is dropped again when sign-in does not reach a profile.
func (h *Handler) startSession(c *gin.Context, status int, message string, signIn signInFunc) {
	ctx := c.Request.Context()
	sid, m, err := h.sessions.Create(ctx)
	if err != nil {
		h.logger.Error("Failed to create session", zap.Error(err))
		common.RespondWithError(c, common.ErrServiceUnavailable.WithDetails("Could not start a session."))
		return
	}

	p, err := signIn(ctx, m)
	if err != nil {
		h.sessions.Remove(sid)
		respondSessionError(c, err)
		return
	}

	token, err := h.tokens.GenerateAccessToken(p.ID, sid, p.Role)
	if err != nil {
		h.sessions.Remove(sid)
		common.RespondWithError(c, common.ErrInternalServer.WithDetails("Could not issue session token."))
		return
	}

	common.RespondSuccess(c, status, message, AuthResponse{
		Profile: p,
		Token:   token,
		Session: ToSessionResponse(sid, m.Snapshot()),
	})
}

// respondSessionError maps session failures to API errors.
func respondSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrProfileMissing):
		common.RespondWithError(c, common.ErrProfileMissing)
	case errors.Is(err, session.ErrSignedOut):
		common.RespondWithError(c, common.ErrUnauthorized.WithDetails("Account was signed out."))
	case errors.Is(err, session.ErrDisposed):
		common.RespondWithError(c, common.ErrServiceUnavailable.WithDetails("Session was closed."))
	case errors.Is(err, context.DeadlineExceeded):
		common.RespondWithError(c, common.ErrServiceUnavailable.WithDetails("Identity service timed out."))
	default:
		common.RespondWithError(c, err)
	}
}

func (h *Handler) register(c *gin.Context) {
	var req RegisterRequest
	if !h.bindJSON(c, &req, "Register") {
		return
	}
	h.startSession(c, http.StatusCreated, "Registration successful.", func(ctx context.Context, m *session.Manager) (*profile.UserProfile, error) {
		return m.RegisterWithEmail(ctx, req.Email, req.Password, req.registration())
	})
}

func (h *Handler) login(c *gin.Context) {
	var req LoginRequest
	if !h.bindJSON(c, &req, "Login") {
		return
	}
	h.startSession(c, http.StatusOK, "Login successful.", func(ctx context.Context, m *session.Manager) (*profile.UserProfile, error) {
		return m.LoginWithEmail(ctx, req.Email, req.Password)
	})
}

func (h *Handler) googleCredentialLogin(c *gin.Context) {
	var req GoogleLoginRequest
	if !h.bindJSON(c, &req, "Google login") {
		return
	}
	h.loginWithGoogle(c, req.Credential)
}

func (h *Handler) loginWithGoogle(c *gin.Context, credential string) {
	h.startSession(c, http.StatusOK, "Google login successful.", func(ctx context.Context, m *session.Manager) (*profile.UserProfile, error) {
		p, err := m.LoginWithGoogle(ctx, credential)
		if errors.Is(err, identity.ErrFederationUnavailable) {
			return nil, common.ErrServiceUnavailable.WithDetails("Google sign-in is not configured.")
		}
		return p, err
	})
}

func (h *Handler) googleLogin(c *gin.Context) {
	if h.google == nil {
		common.RespondWithError(c, common.ErrServiceUnavailable.WithDetails("Google sign-in is not configured."))
		return
	}
	authURL, err := h.google.LoginURL(c)
	if err != nil {
		common.RespondWithError(c, err)
		return
	}
	c.Redirect(http.StatusTemporaryRedirect, authURL)
}

func (h *Handler) googleCallback(c *gin.Context) {
	if h.google == nil {
		common.RespondWithError(c, common.ErrServiceUnavailable.WithDetails("Google sign-in is not configured."))
		return
	}
	if errorParam := c.Query("error"); errorParam != "" {
		errorDesc := c.Query("error_description")
		h.logger.Warn("Google OAuth callback error", zap.String("error", errorParam), zap.String("description", errorDesc))
		common.RespondWithError(c, common.ErrUnauthorized.WithDetails("Google login failed: "+errorParam))
		return
	}

	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		common.RespondWithError(c, common.ErrBadRequest.WithDetails("Missing authorization code or state from Google."))
		return
	}

	idToken, err := h.google.ExchangeIDToken(c, code, state)
	if err != nil {
		common.RespondWithError(c, err)
		return
	}
	h.loginWithGoogle(c, idToken)
}

// resolveSession finds or rebuilds the session named by the request token.
func (h *Handler) resolveSession(c *gin.Context) (*session.Manager, error) {
	return h.sessions.Resume(
		c.Request.Context(),
		common.GetSessionIDFromContext(c),
		common.GetUserIDFromContext(c),
		common.GetAuthTimeFromContext(c),
	)
}

func (h *Handler) logout(c *gin.Context) {
	ctx := c.Request.Context()
	sid := common.GetSessionIDFromContext(c)

	if m, err := h.resolveSession(c); err == nil {
		if err := m.Logout(ctx); err != nil {
			h.logger.Warn("Logout: provider sign-out failed, local session cleared", zap.String("sid", sid), zap.Error(err))
		}
	}
	h.sessions.Remove(sid)

	if err := h.blocklist.AddToBlocklist(ctx, common.GetTokenIDFromContext(c), common.GetTokenExpiryFromContext(c)); err != nil {
		h.logger.Error("Logout: failed to blocklist token", zap.Error(err))
	}
	common.RespondOK(c, "Logged out.", nil)
}

func (h *Handler) getSession(c *gin.Context) {
	m, err := h.resolveSession(c)
	if err != nil {
		if errors.Is(err, identity.ErrAccountNotFound) {
			common.RespondWithError(c, common.ErrUnauthorized.WithDetails("Account no longer exists."))
			return
		}
		respondSessionError(c, err)
		return
	}
	common.RespondOK(c, "Session retrieved.", ToSessionResponse(common.GetSessionIDFromContext(c), m.Snapshot()))
}

func (h *Handler) clearSessionError(c *gin.Context) {
	m, err := h.resolveSession(c)
	if err != nil {
		respondSessionError(c, err)
		return
	}
	m.ClearError()
	common.RespondOK(c, "Session error cleared.", ToSessionResponse(common.GetSessionIDFromContext(c), m.Snapshot()))
}
