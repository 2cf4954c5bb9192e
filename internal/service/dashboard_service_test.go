package service

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/hostel-api/internal/models"
	appErrors "github.com/noah-isme/hostel-api/pkg/errors"
)

type memCacheRepo struct {
	items  map[string][]byte
	getErr error
}

func newMemCacheRepo() *memCacheRepo {
	return &memCacheRepo{items: map[string][]byte{}}
}

func (m *memCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	if m.getErr != nil {
		return m.getErr
	}
	raw, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.items[key] = raw
	return nil
}

func (m *memCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	for key := range m.items {
		if ok, _ := path.Match(pattern, key); ok {
			delete(m.items, key)
		}
	}
	return nil
}

type dashboardRepoStub struct {
	calls int
	err   error
	today time.Time
}

func (s *dashboardRepoStub) Stats(_ context.Context, today time.Time, month, year int) (*models.DashboardStats, error) {
	s.calls++
	s.today = today
	if s.err != nil {
		return nil, s.err
	}
	return &models.DashboardStats{Students: 40, PendingAttendance: 3, MonthBilled: 12500}, nil
}

func newDashboardFixture(cacheRepo CacheRepository, enabled bool) (*DashboardService, *dashboardRepoStub) {
	repo := &dashboardRepoStub{}
	cache := NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), enabled)
	svc := NewDashboardService(repo, cache, nil, time.Minute, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2024, time.March, 14, 9, 30, 0, 0, time.Local) }
	return svc, repo
}

func TestDashboardStatsServedFromCacheOnSecondCall(t *testing.T) {
	svc, repo := newDashboardFixture(newMemCacheRepo(), true)

	first, hit, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 40, first.Students)
	assert.Equal(t, 3, first.Month)
	assert.Equal(t, 2024, first.Year)
	assert.Equal(t, time.Date(2024, time.March, 14, 0, 0, 0, 0, time.Local), repo.today)

	second, hit, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first.MonthBilled, second.MonthBilled)
	assert.Equal(t, 1, repo.calls)
}

func TestDashboardRefreshForcesReload(t *testing.T) {
	svc, repo := newDashboardFixture(newMemCacheRepo(), true)

	_, _, err := svc.Stats(context.Background())
	require.NoError(t, err)
	svc.Refresh(context.Background())

	_, hit, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, repo.calls)
}

func TestDashboardCacheFailureFallsBackToStore(t *testing.T) {
	cacheRepo := newMemCacheRepo()
	cacheRepo.getErr = errors.New("connection refused")
	svc, repo := newDashboardFixture(cacheRepo, true)

	stats, hit, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 40, stats.Students)
	assert.Equal(t, 1, repo.calls)
}

func TestDashboardDisabledCacheAlwaysLoads(t *testing.T) {
	svc, repo := newDashboardFixture(nil, false)

	for i := 0; i < 2; i++ {
		_, hit, err := svc.Stats(context.Background())
		require.NoError(t, err)
		assert.False(t, hit)
	}
	assert.Equal(t, 2, repo.calls)
}

func TestDashboardStoreErrorIsInternal(t *testing.T) {
	svc, repo := newDashboardFixture(newMemCacheRepo(), true)
	repo.err = errors.New("boom")

	_, _, err := svc.Stats(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
}
