package cache

import (
	"context"
	"time"

	"github.com/GaneshKarthi2007/battery-shop/internal/domain"
)

// DashboardCache keeps the computed dashboard summary between requests.
// Writes after a sale invalidate it via Delete.
type DashboardCache interface {
	Get(ctx context.Context, key string) (*domain.DashboardSummary, bool, error)
	Set(ctx context.Context, key string, value *domain.DashboardSummary, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type NoopDashboardCache struct{}

func (NoopDashboardCache) Get(_ context.Context, _ string) (*domain.DashboardSummary, bool, error) {
	return nil, false, nil
}

func (NoopDashboardCache) Set(_ context.Context, _ string, _ *domain.DashboardSummary, _ time.Duration) error {
	return nil
}

func (NoopDashboardCache) Delete(_ context.Context, _ string) error {
	return nil
}
