// File: internal/content/handler.go
package content

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"live_learning_backend/internal/access"
	"live_learning_backend/internal/common"
	"live_learning_backend/internal/filestorage"
	"live_learning_backend/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Images stores uploaded cover images.
type Images interface {
	SaveImage(fileHeader *multipart.FileHeader, subDir string) (*filestorage.SavedImage, error)
	DeleteImage(rel string) error
	// PathForURL maps a URL served by the store back to its stored path.
	PathForURL(raw string) (string, bool)
}

// imageReferrer is implemented by forms that carry an uploaded image.
type imageReferrer interface {
	imageRef() string
}

// Handler struct holds dependencies for content handlers.
type Handler struct {
	service Service
	images  Images
	logger  *zap.Logger
}

// NewHandler creates a new content handler. images may be nil, which
// disables the upload route.
func NewHandler(service Service, images Images, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		images:  images,
		logger:  logger.Named("content.handler"),
	}
}

// RegisterRoutes mounts create and list routes for every kind plus search.
// guard must admit only Ready sessions; capabilities are checked per route.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup, guard ...gin.HandlerFunc) {
	guarded := router.Group("", guard...)
	for _, spec := range kindSpecs {
		spec := spec
		group := guarded.Group("/" + spec.Path)
		group.POST("", middleware.RequireCapability(access.CapCreateContent), h.create(spec))
		group.GET("", middleware.RequireCapability(access.CapBrowse), h.list(spec))
	}
	guarded.GET("/content/search", middleware.RequireCapability(access.CapBrowse), h.search)
	if h.images != nil {
		guarded.POST("/content/images", middleware.RequireCapability(access.CapCreateContent), h.uploadImage)
	}
}

func (h *Handler) create(spec KindSpec) gin.HandlerFunc {
	return func(c *gin.Context) {
		form := spec.NewForm()
		if err := c.ShouldBindJSON(form); err != nil {
			h.logger.Warn("Create content: Invalid request body", zap.String("kind", string(spec.Kind)), zap.Error(err))
			var ve validator.ValidationErrors
			if errors.As(err, &ve) {
				common.RespondWithError(c, common.NewValidationAPIError(common.FormatValidationErrors(ve)))
				return
			}
			common.RespondWithError(c, common.ErrBadRequest.WithDetails(err.Error()))
			return
		}

		item, err := h.service.Create(c.Request.Context(), spec.Kind, middleware.GetProfileFromContext(c), form)
		if err != nil {
			h.discardUpload(form)
			common.RespondWithError(c, err)
			return
		}
		common.RespondCreated(c, spec.Label+" created successfully.", item)
	}
}

// discardUpload removes the image a failed create referred to, so that
// uploads never attached to content do not pile up.
func (h *Handler) discardUpload(form Form) {
	ref, ok := form.(imageReferrer)
	if !ok || h.images == nil || ref.imageRef() == "" {
		return
	}
	rel, ok := h.images.PathForURL(ref.imageRef())
	if !ok {
		return
	}
	if err := h.images.DeleteImage(rel); err != nil {
		h.logger.Warn("Failed to discard orphaned upload", zap.String("path", rel), zap.Error(err))
	}
}

func (h *Handler) list(spec KindSpec) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q ListQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			common.RespondWithError(c, common.ErrBadRequest.WithDetails(err.Error()))
			return
		}
		q.Page, q.PageSize = common.GetPaginationParams(c)

		items, pagination, err := h.service.List(c.Request.Context(), spec.Kind, q)
		if err != nil {
			h.logger.Error("Failed to list content", zap.String("kind", string(spec.Kind)), zap.Error(err))
			common.RespondWithError(c, err)
			return
		}
		common.RespondPaginated(c, spec.Label+" list retrieved successfully.", items, pagination)
	}
}

func (h *Handler) search(c *gin.Context) {
	q := SearchQuery{Query: strings.TrimSpace(c.Query("q"))}
	if raw := c.Query("kind"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			kind, ok := ParseKind(strings.TrimSpace(part))
			if !ok {
				common.RespondWithError(c, common.ErrBadRequest.WithDetails("Unknown content kind: "+part))
				return
			}
			q.Kinds = append(q.Kinds, kind)
		}
	}
	q.Page, q.PageSize = common.GetPaginationParams(c)

	results, pagination, err := h.service.Search(c.Request.Context(), q)
	if err != nil {
		common.RespondWithError(c, err)
		return
	}
	common.RespondPaginated(c, "Search results retrieved successfully.", results, pagination)
}

func (h *Handler) uploadImage(c *gin.Context) {
	kind := KindPauseContent
	if raw := c.PostForm("kind"); raw != "" {
		parsed, ok := ParseKind(raw)
		if !ok {
			common.RespondWithError(c, common.ErrBadRequest.WithDetails("Unknown content kind: "+raw))
			return
		}
		kind = parsed
	}
	fileHeader, err := c.FormFile("image")
	if err != nil {
		common.RespondWithError(c, common.ErrBadRequest.WithDetails("An image file is required in the 'image' field."))
		return
	}

	spec, _ := SpecFor(kind)
	saved, err := h.images.SaveImage(fileHeader, spec.Path)
	if err != nil {
		switch {
		case errors.Is(err, filestorage.ErrUnsupportedImage):
			common.RespondWithError(c, common.NewValidationAPIError(gin.H{"image": "The image must be a JPEG, PNG, GIF or WebP file."}))
		case errors.Is(err, filestorage.ErrImageTooLarge):
			common.RespondWithError(c, common.NewAPIError(http.StatusRequestEntityTooLarge, "IMAGE_TOO_LARGE", "The image exceeds the upload limit."))
		default:
			h.logger.Error("Failed to store uploaded image", zap.String("kind", string(kind)), zap.Error(err))
			common.RespondWithError(c, common.NewWriteError("Failed to store image", err))
		}
		return
	}
	common.RespondCreated(c, "Image uploaded successfully.", saved)
}
