package analytics

import (
	"testing"

	"github.com/shopspring/decimal"

	"warunglaba/backend/internal/domain"
)

func TestClassifyTrend(t *testing.T) {
	cases := []struct {
		name    string
		initial int64
		current int64
		want    string
	}{
		{"zero to stocked is new", 0, 10, domain.TrendNew},
		{"zero to zero is stable", 0, 0, domain.TrendStable},
		{"unchanged is stable", 100, 100, domain.TrendStable},
		{"one percent move is stable", 100, 101, domain.TrendStable},
		{"five percent up is growing", 100, 105, domain.TrendGrowing},
		{"five percent down is shrinking", 100, 95, domain.TrendShrinking},
		{"drained to zero is shrinking", 10, 0, domain.TrendShrinking},
	}
	for _, tc := range cases {
		got := ClassifyTrend(decimal.NewFromInt(tc.initial), decimal.NewFromInt(tc.current))
		if got != tc.want {
			t.Errorf("%s: ClassifyTrend(%d, %d) = %q, want %q", tc.name, tc.initial, tc.current, got, tc.want)
		}
	}
}

func TestClassifyTrendClampsTinyDenominator(t *testing.T) {
	// Starting from a fractional quantity, a small absolute move must not
	// be amplified into a trend.
	initial := decimal.RequireFromString("0.5")
	current := decimal.RequireFromString("0.505")
	if got := ClassifyTrend(initial, current); got != domain.TrendStable {
		t.Fatalf("expected stable for a 0.005 move from 0.5, got %q", got)
	}
}

func TestChangePercent(t *testing.T) {
	if got := ChangePercent(decimal.Zero, decimal.NewFromInt(10)); got != nil {
		t.Fatalf("expected nil change percent from zero initial stock, got %s", got)
	}

	got := ChangePercent(decimal.NewFromInt(20), decimal.NewFromInt(15))
	if got == nil {
		t.Fatal("expected a change percent, got nil")
	}
	if !got.Equal(decimal.NewFromInt(-25)) {
		t.Fatalf("expected -25 percent, got %s", got)
	}
}

func TestBuildStockReportItem(t *testing.T) {
	item := domain.Item{ID: "item-tomat", Name: "Tomat"}
	initial := domain.StockPosition{Quantity: decimal.NewFromInt(20), Value: decimal.NewFromInt(2000)}
	current := domain.StockPosition{Quantity: decimal.NewFromInt(15), Value: decimal.NewFromInt(1500)}

	row := BuildStockReportItem(item, "Tomat", initial, current, decimal.NewFromInt(800))
	if !row.StockChange.Equal(decimal.NewFromInt(-5)) {
		t.Fatalf("expected stock change -5, got %s", row.StockChange)
	}
	if row.StockChangePercent == nil || !row.StockChangePercent.Equal(decimal.NewFromInt(-25)) {
		t.Fatalf("expected change percent -25, got %v", row.StockChangePercent)
	}
	if !row.StockValue.Equal(decimal.NewFromInt(1500)) || !row.SalesValue.Equal(decimal.NewFromInt(800)) {
		t.Fatalf("unexpected values %s / %s", row.StockValue, row.SalesValue)
	}
	if row.Trend != domain.TrendShrinking {
		t.Fatalf("expected shrinking trend, got %q", row.Trend)
	}
}
