package service

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/noah-isme/uni-enroll-api/internal/models"
	appErrors "github.com/noah-isme/uni-enroll-api/pkg/errors"
)

type periodRepository interface {
	List(ctx context.Context, filter models.PeriodFilter) ([]models.Period, int, error)
	FindByID(ctx context.Context, id string) (*models.Period, error)
	SetActive(ctx context.Context, id string) error
}

type sectionLister interface {
	List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error)
}

type cachedSectionList struct {
	Sections []models.SectionDetail `json:"sections"`
	Total    int                    `json:"total"`
}

type cachedPeriodList struct {
	Periods []models.Period `json:"periods"`
	Total   int             `json:"total"`
}

// CatalogService serves the read-only course/section/period catalog. Seat
// counts shown here are advisory; only the confirmation transaction reads
// them authoritatively.
type CatalogService struct {
	periods  periodRepository
	sections sectionLister
	cache    *CacheService
	logger   *zap.Logger
}

// NewCatalogService constructs CatalogService.
func NewCatalogService(periods periodRepository, sections sectionLister, cache *CacheService, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{periods: periods, sections: sections, cache: cache, logger: logger}
}

// ListSections returns catalog sections with pagination metadata. The
// boolean reports whether the response came from cache.
func (s *CatalogService) ListSections(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, *models.Pagination, bool, error) {
	filter.Page, filter.PageSize = clampPage(filter.Page, filter.PageSize)
	key := SectionsCacheKey(filter)

	if s.cache.Enabled() {
		var cached cachedSectionList
		hit, err := s.cache.Get(ctx, key, &cached)
		if err == nil && hit {
			pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: cached.Total}
			return cached.Sections, pagination, true, nil
		}
	}

	sections, total, err := s.sections.List(ctx, filter)
	if err != nil {
		return nil, nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sections")
	}
	if s.cache.Enabled() {
		if err := s.cache.Set(ctx, key, cachedSectionList{Sections: sections, Total: total}, 0); err != nil {
			s.logger.Warn("section cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return sections, pagination, false, nil
}

// ListPeriods returns enrollment periods with pagination metadata.
func (s *CatalogService) ListPeriods(ctx context.Context, filter models.PeriodFilter) ([]models.Period, *models.Pagination, bool, error) {
	filter.Page, filter.PageSize = clampPage(filter.Page, filter.PageSize)
	key := PeriodsCacheKey(filter)

	if s.cache.Enabled() {
		var cached cachedPeriodList
		hit, err := s.cache.Get(ctx, key, &cached)
		if err == nil && hit {
			pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: cached.Total}
			return cached.Periods, pagination, true, nil
		}
	}

	periods, total, err := s.periods.List(ctx, filter)
	if err != nil {
		return nil, nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list periods")
	}
	if s.cache.Enabled() {
		if err := s.cache.Set(ctx, key, cachedPeriodList{Periods: periods, Total: total}, 0); err != nil {
			s.logger.Warn("period cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return periods, pagination, false, nil
}

// ActivatePeriod makes the given period the single active one and drops
// stale catalog cache entries.
func (s *CatalogService) ActivatePeriod(ctx context.Context, id string) (*models.Period, error) {
	if _, err := s.periods.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "period not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load period")
	}
	if err := s.periods.SetActive(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate period")
	}
	if s.cache.Enabled() {
		_ = s.cache.InvalidatePeriods(ctx)
	}
	period, err := s.periods.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload period")
	}
	return period, nil
}

func clampPage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
