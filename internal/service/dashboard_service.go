package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/hostel-api/internal/models"
	appErrors "github.com/noah-isme/hostel-api/pkg/errors"
)

const dashboardCachePattern = "dashboard:*"

type dashboardRepository interface {
	Stats(ctx context.Context, today time.Time, month, year int) (*models.DashboardStats, error)
}

// DashboardService assembles staff dashboard counters behind the cache.
type DashboardService struct {
	repo    dashboardRepository
	cache   *CacheService
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewDashboardService constructs the service. cache may be nil or disabled.
func NewDashboardService(repo dashboardRepository, cache *CacheService, metrics *MetricsService, ttl time.Duration, logger *zap.Logger) *DashboardService {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{repo: repo, cache: cache, metrics: metrics, ttl: ttl, logger: logger, now: time.Now}
}

// Stats returns today's counters and reports whether they came from the cache.
func (s *DashboardService) Stats(ctx context.Context) (*models.DashboardStats, bool, error) {
	now := s.now()
	today := Day(now)
	key := fmt.Sprintf("dashboard:stats:%s", today.Format("2006-01-02"))

	stats, hit, err := Fetch(ctx, s.cache, key, s.ttl, func(ctx context.Context) (*models.DashboardStats, error) {
		start := time.Now()
		stats, err := s.repo.Stats(ctx, today, int(now.Month()), now.Year())
		s.metrics.ObserveDBQuery("dashboard_stats", time.Since(start))
		if err != nil {
			return nil, err
		}
		stats.Month = int(now.Month())
		stats.Year = now.Year()
		stats.GeneratedAt = now.UTC()
		return stats, nil
	})
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load dashboard")
	}
	return stats, hit, nil
}

// Refresh drops cached counters so the next read recomputes them.
func (s *DashboardService) Refresh(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, dashboardCachePattern); err != nil {
		s.logger.Warn("dashboard cache refresh failed", zap.Error(err))
	}
}
