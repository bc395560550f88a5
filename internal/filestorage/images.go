// File: internal/filestorage/images.go
package filestorage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrUnsupportedImage is returned for uploads that are not JPEG, PNG, GIF or WebP.
	ErrUnsupportedImage = errors.New("filestorage: unsupported image type")
	// ErrImageTooLarge is returned when an upload exceeds the configured limit.
	ErrImageTooLarge = errors.New("filestorage: image too large")
	// ErrInvalidPath is returned for paths that would leave the storage root.
	ErrInvalidPath = errors.New("filestorage: invalid path")
)

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// SavedImage describes a stored upload.
type SavedImage struct {
	// Path is relative to the storage root, e.g. "pause-content/<uuid>.png".
	Path        string `json:"path"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// ImageStore keeps uploaded content images on local disk.
type ImageStore struct {
	root     string
	baseURL  string
	maxBytes int64
	logger   *zap.Logger
}

// NewImageStore creates the storage root if needed.
func NewImageStore(root, baseURL string, maxBytes int64, logger *zap.Logger) (*ImageStore, error) {
	if root == "" {
		return nil, fmt.Errorf("storage path cannot be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		logger.Error("Failed to create storage path directory", zap.String("path", root), zap.Error(err))
		return nil, fmt.Errorf("failed to create storage path %s: %w", root, err)
	}
	logger.Info("Image store initialized", zap.String("storagePath", root), zap.String("baseURL", baseURL))
	return &ImageStore{
		root:     root,
		baseURL:  strings.TrimRight(baseURL, "/"),
		maxBytes: maxBytes,
		logger:   logger.Named("filestorage"),
	}, nil
}

// Root is the directory served under the base URL.
func (s *ImageStore) Root() string {
	return s.root
}

// BaseURL is the public prefix for stored images.
func (s *ImageStore) BaseURL() string {
	return s.baseURL
}

func cleanRelative(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return clean, nil
}

// SaveImage stores an uploaded image under subDir with a generated name. The
// type is taken from the file content, not the client's header.
func (s *ImageStore) SaveImage(fileHeader *multipart.FileHeader, subDir string) (*SavedImage, error) {
	if fileHeader == nil {
		return nil, fmt.Errorf("fileHeader cannot be nil")
	}
	if s.maxBytes > 0 && fileHeader.Size > s.maxBytes {
		return nil, ErrImageTooLarge
	}
	dir, err := cleanRelative(subDir)
	if err != nil {
		s.logger.Warn("Rejected upload sub-directory", zap.String("subDir", subDir))
		return nil, err
	}

	src, err := fileHeader.Open()
	if err != nil {
		s.logger.Error("Failed to open uploaded file", zap.Error(err))
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read uploaded file: %w", err)
	}
	head = head[:n]
	contentType := http.DetectContentType(head)
	ext, ok := imageExtensions[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedImage, contentType)
	}

	destinationDir := filepath.Join(s.root, dir)
	if err := os.MkdirAll(destinationDir, 0o755); err != nil {
		s.logger.Error("Failed to create sub-directory for file storage", zap.String("path", destinationDir), zap.Error(err))
		return nil, fmt.Errorf("failed to create directory %s: %w", destinationDir, err)
	}

	name := uuid.NewString() + ext
	destinationPath := filepath.Join(destinationDir, name)
	dst, err := os.Create(destinationPath)
	if err != nil {
		s.logger.Error("Failed to create destination file", zap.String("path", destinationPath), zap.Error(err))
		return nil, fmt.Errorf("failed to create file %s: %w", destinationPath, err)
	}
	defer dst.Close()

	var reader io.Reader = io.MultiReader(bytes.NewReader(head), src)
	if s.maxBytes > 0 {
		reader = io.LimitReader(reader, s.maxBytes+1)
	}
	written, err := io.Copy(dst, reader)
	if err == nil && s.maxBytes > 0 && written > s.maxBytes {
		err = ErrImageTooLarge
	}
	if err != nil {
		_ = os.Remove(destinationPath)
		if errors.Is(err, ErrImageTooLarge) {
			return nil, err
		}
		s.logger.Error("Failed to copy uploaded file to destination", zap.String("path", destinationPath), zap.Error(err))
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	rel := filepath.ToSlash(filepath.Join(dir, name))
	s.logger.Info("Image saved", zap.String("path", rel), zap.Int64("size", written))
	return &SavedImage{
		Path:        rel,
		URL:         s.baseURL + "/" + path.Clean(rel),
		ContentType: contentType,
		Size:        written,
	}, nil
}

// PathForURL returns the stored path behind a URL produced by SaveImage. Full
// URLs are matched on their path. It reports false for anything the store
// does not serve.
func (s *ImageStore) PathForURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	prefix := s.baseURL + "/"
	if !strings.HasPrefix(u.Path, prefix) {
		return "", false
	}
	rel, err := cleanRelative(strings.TrimPrefix(u.Path, prefix))
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// DeleteImage removes a stored image by its relative path. Missing files are ignored.
func (s *ImageStore) DeleteImage(rel string) error {
	clean, err := cleanRelative(rel)
	if err != nil {
		s.logger.Warn("Attempt to delete file with path traversal", zap.String("relativePath", rel))
		return err
	}
	fullPath := filepath.Join(s.root, clean)
	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		s.logger.Error("Failed to delete file", zap.String("path", fullPath), zap.Error(err))
		return fmt.Errorf("failed to delete file %s: %w", fullPath, err)
	}
	s.logger.Info("Image deleted", zap.String("path", clean))
	return nil
}
