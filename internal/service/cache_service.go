package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/akashi1113/student-system-sub001/internal/models"
	appErrors "github.com/akashi1113/student-system-sub001/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService is a read-through cache for slot payloads. Occupancy writes
// invalidate the cached entry, so stale reads last at most one TTL.
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
		defaultTTL = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// GetSlot attempts to retrieve a cached slot. It returns true on a hit.
func (s *CacheService) GetSlot(ctx context.Context, slotID string) (*models.TimeSlot, bool) {
	if !s.Enabled() {
		return nil, false
	}
	start := time.Now()
	var slot models.TimeSlot
	err := s.repo.Get(ctx, slotKey(slotID), &slot)
	duration := time.Since(start)
	if err != nil {
		s.metrics.RecordCacheOperation(false, duration)
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("slot cache get failed", zap.String("slot_id", slotID), zap.Error(err))
		}
		return nil, false
	}
	s.metrics.RecordCacheOperation(true, duration)
	return &slot, true
}

// SetSlot stores the slot payload.
func (s *CacheService) SetSlot(ctx context.Context, slot *models.TimeSlot) {
	if !s.Enabled() || slot == nil {
		return
	}
	start := time.Now()
	if err := s.repo.Set(ctx, slotKey(slot.ID), slot, s.defaultTTL); err != nil {
		s.logger.Warn("slot cache set failed", zap.String("slot_id", slot.ID), zap.Error(err))
		return
	}
	s.metrics.ObserveCacheWrite(time.Since(start))
}

// InvalidateSlot drops the cached entry for a slot.
func (s *CacheService) InvalidateSlot(ctx context.Context, slotID string) error {
	if !s.Enabled() {
		return nil
	}
	return s.repo.DeleteByPattern(ctx, slotKey(slotID))
}

func slotKey(slotID string) string {
	return fmt.Sprintf("slot:%s", slotID)
}
