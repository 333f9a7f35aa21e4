package analytics

import (
	"github.com/shopspring/decimal"

	"warunglaba/backend/internal/domain"
)

// The stable band: relative stock change below two percent of the initial
// quantity reads as noise, not a trend.
var trendStableBand = decimal.NewFromFloat(0.02)

// ClassifyTrend labels the movement between the period-start and current
// stock quantities. An item that started at zero and now holds stock is
// "new"; changes inside the stable band are "stable". The denominator is
// clamped to one so near-zero starting stock does not amplify tiny moves.
func ClassifyTrend(initial decimal.Decimal, current decimal.Decimal) string {
	if initial.IsZero() && current.IsPositive() {
		return domain.TrendNew
	}
	denominator := decimal.Max(initial, decimal.NewFromInt(1))
	change := current.Sub(initial)
	if change.Abs().Div(denominator).LessThan(trendStableBand) {
		return domain.TrendStable
	}
	if change.IsPositive() {
		return domain.TrendGrowing
	}
	return domain.TrendShrinking
}

// ChangePercent returns the relative stock change, or nil when the initial
// quantity is zero and the ratio is undefined.
func ChangePercent(initial decimal.Decimal, current decimal.Decimal) *decimal.Decimal {
	if initial.IsZero() {
		return nil
	}
	percent := current.Sub(initial).Div(initial).Mul(hundred)
	return &percent
}

// BuildStockReportItem assembles one row of the stock report from the
// item's period-start and current ledger positions plus its realized sales
// value over the period.
func BuildStockReportItem(item domain.Item, displayName string, initial domain.StockPosition, current domain.StockPosition, salesValue decimal.Decimal) domain.StockReportItem {
	return domain.StockReportItem{
		Item:               item,
		DisplayName:        displayName,
		InitialStock:       initial.Quantity,
		StockChange:        current.Quantity.Sub(initial.Quantity),
		StockChangePercent: ChangePercent(initial.Quantity, current.Quantity),
		InitialValue:       initial.Value,
		StockValue:         current.Value,
		SalesValue:         salesValue,
		Trend:              ClassifyTrend(initial.Quantity, current.Quantity),
	}
}
