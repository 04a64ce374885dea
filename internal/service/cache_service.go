package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/uni-enroll-api/internal/models"
	appErrors "github.com/noah-isme/uni-enroll-api/pkg/errors"
)

// Cache key namespaces. The catalog is the only cached surface;
// enrollment state is never cached. Confirmations invalidate the
// sections namespace because they change seats_left.
const (
	catalogSectionsKeyPrefix = "catalog:sections"
	catalogPeriodsKeyPrefix  = "catalog:periods"
	catalogSectionsPattern   = catalogSectionsKeyPrefix + ":*"
	catalogPeriodsPattern    = catalogPeriodsKeyPrefix + ":*"
)

// SectionsCacheKey identifies one section-listing query shape. Every
// filter field participates so two different queries never share an entry.
func SectionsCacheKey(filter models.SectionFilter) string {
	return fmt.Sprintf("%s:%s:%s:%t:%d:%d:%s:%s", catalogSectionsKeyPrefix,
		filter.PeriodID, filter.CourseID, filter.OnlyAvailable,
		filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder)
}

// PeriodsCacheKey identifies one period-listing query shape.
func PeriodsCacheKey(filter models.PeriodFilter) string {
	active := "all"
	if filter.IsActive != nil {
		active = fmt.Sprintf("%t", *filter.IsActive)
	}
	return fmt.Sprintf("%s:%s:%d:%d:%s:%s", catalogPeriodsKeyPrefix,
		active, filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder)
}

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService fronts the catalog cache. Reads and writes are
// best-effort: a failing cache degrades to database reads, it never
// fails a request. Invalidation happens per namespace, not per key.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 30 * time.Second
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get attempts to retrieve a cached entry. It returns true when the cache was hit.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	duration := time.Since(start)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordCacheOperation(false, duration)
		}
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return false, nil
		}
		if s.logger != nil {
			s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return false, err
	}
	if s.metrics != nil {
		s.metrics.RecordCacheOperation(true, duration)
	}
	return true, nil
}

// Set stores the value in cache.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	if s.metrics != nil {
		s.metrics.ObserveCacheWrite(time.Since(start))
	}
	if err != nil && s.logger != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// InvalidateSections drops every cached section listing. Runs after a
// confirmation decrements seats and the cached counts go stale.
func (s *CacheService) InvalidateSections(ctx context.Context) error {
	return s.invalidate(ctx, catalogSectionsPattern)
}

// InvalidatePeriods drops every cached period listing. Runs after
// period activation flips is_active flags.
func (s *CacheService) InvalidatePeriods(ctx context.Context) error {
	return s.invalidate(ctx, catalogPeriodsPattern)
}

func (s *CacheService) invalidate(ctx context.Context, pattern string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		if s.logger != nil {
			s.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
		}
		return err
	}
	return nil
}
