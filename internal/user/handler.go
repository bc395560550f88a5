// File: internal/user/handler.go
package user

import (
	"errors"

	"live_learning_backend/internal/common"
	"live_learning_backend/internal/middleware"
	"live_learning_backend/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Handler serves the signed-in user's profile and capability table.
type Handler struct {
	logger *zap.Logger
}

// NewHandler creates a new user handler.
func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{
		logger: logger.Named("user.handler"),
	}
}

// RegisterRoutes sets up the routes for user operations.
// guard must admit only Ready sessions.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup, guard ...gin.HandlerFunc) {
	userGroup := router.Group("/users", guard...)
	{
		userGroup.GET("/me", h.getMe)
		userGroup.PATCH("/me", h.updateMe)
	}
	capHandlers := append(append([]gin.HandlerFunc{}, guard...), h.getCapabilities)
	router.GET("/access/capabilities", capHandlers...)
}

func (h *Handler) getMe(c *gin.Context) {
	p := middleware.GetProfileFromContext(c)
	if p == nil {
		h.logger.Error("Profile not found in context for /me", zap.String("path", c.Request.URL.Path))
		common.RespondWithError(c, common.ErrInternalServer.WithDetails("User profile missing."))
		return
	}
	common.RespondOK(c, "User profile retrieved successfully.", ToMeResponse(p))
}

func (h *Handler) updateMe(c *gin.Context) {
	var req UpdateMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Update profile: Invalid request body", zap.Error(err))
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			common.RespondWithError(c, common.NewValidationAPIError(common.FormatValidationErrors(ve)))
			return
		}
		common.RespondWithError(c, common.ErrBadRequest.WithDetails(err.Error()))
		return
	}
	if req.Empty() {
		common.RespondWithError(c, common.ErrBadRequest.WithDetails("No editable field was provided."))
		return
	}

	m := middleware.GetSessionFromContext(c)
	if m == nil {
		common.RespondWithError(c, common.ErrInternalServer.WithDetails("Session missing."))
		return
	}
	updated, err := m.UpdateDetails(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, session.ErrNotSignedIn) {
			common.RespondWithError(c, common.ErrUnauthorized.WithDetails("Session is no longer signed in."))
			return
		}
		h.logger.Error("Failed to update profile", zap.String("uid", common.GetUserIDFromContext(c)), zap.Error(err))
		common.RespondWithError(c, err)
		return
	}
	common.RespondOK(c, "User profile updated successfully.", ToMeResponse(updated))
}

func (h *Handler) getCapabilities(c *gin.Context) {
	p := middleware.GetProfileFromContext(c)
	if p == nil {
		common.RespondWithError(c, common.ErrInternalServer.WithDetails("User profile missing."))
		return
	}
	common.RespondOK(c, "Capabilities retrieved successfully.", ToCapabilitiesResponse(p.Role))
}
