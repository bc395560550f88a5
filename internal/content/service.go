// File: internal/content/service.go
package content

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"live_learning_backend/internal/access"
	"live_learning_backend/internal/common"
	"live_learning_backend/internal/docstore"
	"live_learning_backend/internal/platform/elasticsearch"
	"live_learning_backend/internal/profile"

	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

// Indexer mirrors content into a search index.
type Indexer interface {
	IndexContent(ctx context.Context, id string, source map[string]interface{}) error
	SearchContent(ctx context.Context, query string, kinds []string, from, size int) ([]elasticsearch.ContentHit, int64, error)
}

// Service defines the interface for content operations.
type Service interface {
	Create(ctx context.Context, kind Kind, creator *profile.UserProfile, form Form) (Item, error)
	List(ctx context.Context, kind Kind, q ListQuery) ([]Item, *common.Pagination, error)
	Search(ctx context.Context, q SearchQuery) ([]SearchResult, *common.Pagination, error)
	SweepEnded(ctx context.Context, grace time.Duration) (int, error)
	Reindex(ctx context.Context, batchSize int, index func(ctx context.Context, docs []elasticsearch.ContentDoc) (int, error)) (int, int, error)
}

// ServiceImplementation implements the content Service.
type ServiceImplementation struct {
	docs     docstore.Store
	indexer  Indexer
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
	location *time.Location
}

// NewService creates a new content service. indexer may be nil.
func NewService(docs docstore.Store, indexer Indexer, logger *zap.Logger) *ServiceImplementation {
	v := validator.New()
	v.SetTagName("binding")
	return &ServiceImplementation{
		docs:     docs,
		indexer:  indexer,
		validate: v,
		logger:   logger.Named("content.service"),
		now:      time.Now,
		location: time.UTC,
	}
}

// WithClock replaces the service clock.
func (s *ServiceImplementation) WithClock(now func() time.Time) *ServiceImplementation {
	s.now = now
	return s
}

// Create writes one document of kind built from form and the creator's
// profile. Only creators with the create_content capability may publish.
func (s *ServiceImplementation) Create(ctx context.Context, kind Kind, creator *profile.UserProfile, form Form) (Item, error) {
	spec, ok := SpecFor(kind)
	if !ok {
		return nil, common.ErrNotFound.WithDetails(fmt.Sprintf("Unknown content kind %q.", kind))
	}
	if creator == nil || creator.ID == "" {
		return nil, common.ErrUnauthorized
	}
	if !access.CanAccess(access.CapCreateContent, creator.Role) {
		s.logger.Warn("Content creation denied",
			zap.String("uid", creator.ID), zap.String("role", string(creator.Role)), zap.String("kind", string(kind)))
		return nil, common.ErrForbidden.WithDetails("Creating content requires the CREATE plan.")
	}
	if form == nil {
		return nil, common.NewValidationError("Form is required")
	}
	if err := s.validate.Struct(form); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			return nil, common.NewValidationError(fmt.Sprintf("Invalid %s form: %s", strings.ToLower(spec.Label), joinFieldErrors(common.FormatValidationErrors(ve))))
		}
		return nil, common.NewValidationError(err.Error())
	}

	doc := form.fields()
	doc[spec.CreatorIDField] = creator.ID
	doc[spec.CreatorNameField] = creator.FullName
	doc[FieldCreatedAt] = s.now().UTC().Format(time.RFC3339)
	doc[FieldStatus] = spec.InitialStatus
	doc[spec.CounterField] = 0
	doc[FieldKind] = string(kind)
	doc[FieldSlug] = slug.Make(form.title())

	id, err := s.docs.Add(ctx, string(kind), doc)
	if err != nil {
		s.logger.Error("Failed to write content document", zap.String("kind", string(kind)), zap.Error(err))
		return nil, common.NewWriteError(fmt.Sprintf("Failed to create %s", spec.Label), err)
	}
	s.logger.Info("Content created", zap.String("kind", string(kind)), zap.String("id", id), zap.String("uid", creator.ID))

	s.index(ctx, spec, id, doc)
	return toItem(id, doc), nil
}

// index mirrors doc into the search index. Failures are logged; the store stays authoritative.
func (s *ServiceImplementation) index(ctx context.Context, spec KindSpec, id string, doc docstore.Document) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.IndexContent(ctx, id, searchSource(spec, doc)); err != nil {
		s.logger.Warn("Failed to index content", zap.String("kind", string(spec.Kind)), zap.String("id", id), zap.Error(err))
	}
}

// searchSource normalises creator fields so every kind shares one mapping.
func searchSource(spec KindSpec, doc docstore.Document) map[string]interface{} {
	src := make(map[string]interface{}, len(doc)+2)
	for k, v := range doc {
		src[k] = v
	}
	src[FieldKind] = string(spec.Kind)
	src["creatorUid"] = doc[spec.CreatorIDField]
	src["creatorName"] = doc[spec.CreatorNameField]
	return src
}

// List returns a page of kind, newest first.
func (s *ServiceImplementation) List(ctx context.Context, kind Kind, q ListQuery) ([]Item, *common.Pagination, error) {
	if _, ok := SpecFor(kind); !ok {
		return nil, nil, common.ErrNotFound.WithDetails(fmt.Sprintf("Unknown content kind %q.", kind))
	}
	pq := normalizePage(q.Page, q.PageSize)
	dq := docstore.Query{Status: q.Status}

	total, err := s.docs.Count(ctx, string(kind), dq)
	if err != nil {
		return nil, nil, fmt.Errorf("counting %s: %w", kind, err)
	}
	dq.Limit = pq.Limit()
	dq.Offset = pq.Offset()
	snaps, err := s.docs.List(ctx, string(kind), dq)
	if err != nil {
		return nil, nil, fmt.Errorf("listing %s: %w", kind, err)
	}

	items := make([]Item, 0, len(snaps))
	for _, snap := range snaps {
		items = append(items, toItem(snap.ID, snap.Data))
	}
	return items, common.NewPagination(total, pq.Page, pq.PageSize), nil
}

func joinFieldErrors(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fields[k])
	}
	return strings.Join(parts, "; ")
}

func normalizePage(page, pageSize int) common.PaginationQuery {
	pq := common.PaginationQuery{Page: page, PageSize: pageSize}
	// Both calls clamp the fields in place.
	pq.Limit()
	pq.Offset()
	return pq
}

// Search runs a full-text query. It needs a configured index.
func (s *ServiceImplementation) Search(ctx context.Context, q SearchQuery) ([]SearchResult, *common.Pagination, error) {
	if s.indexer == nil {
		return nil, nil, common.ErrServiceUnavailable.WithDetails("Search is not configured.")
	}
	pq := normalizePage(q.Page, q.PageSize)
	kinds := make([]string, 0, len(q.Kinds))
	for _, k := range q.Kinds {
		kinds = append(kinds, string(k))
	}

	hits, total, err := s.indexer.SearchContent(ctx, q.Query, kinds, pq.Offset(), pq.Limit())
	if err != nil {
		s.logger.Error("Content search failed", zap.String("query", q.Query), zap.Error(err))
		return nil, nil, common.ErrServiceUnavailable.WithDetails("Search is temporarily unavailable.")
	}
	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, SearchResult{
			ID:    h.ID,
			Kind:  Kind(h.Kind),
			Score: h.Score,
			Item:  toItem(h.ID, h.Source),
		})
	}
	return results, common.NewPagination(total, pq.Page, pq.PageSize), nil
}
