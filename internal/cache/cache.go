package cache

import (
	"context"
	"time"

	"warunglaba/backend/internal/domain"
)

// ReportCache holds computed stock and profit reports. Reports are pure
// functions of the ledger, so a short TTL keeps them fresh enough while
// sparing the repeated FIFO walks.
type ReportCache interface {
	GetStockReport(ctx context.Context, key string) (*domain.StockReport, bool, error)
	SetStockReport(ctx context.Context, key string, value *domain.StockReport, ttl time.Duration) error
	GetProfitReport(ctx context.Context, key string) (*domain.ProfitReport, bool, error)
	SetProfitReport(ctx context.Context, key string, value *domain.ProfitReport, ttl time.Duration) error
}

type NoopReportCache struct{}

func (NoopReportCache) GetStockReport(_ context.Context, _ string) (*domain.StockReport, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) SetStockReport(_ context.Context, _ string, _ *domain.StockReport, _ time.Duration) error {
	return nil
}

func (NoopReportCache) GetProfitReport(_ context.Context, _ string) (*domain.ProfitReport, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) SetProfitReport(_ context.Context, _ string, _ *domain.ProfitReport, _ time.Duration) error {
	return nil
}
