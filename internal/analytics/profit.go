package analytics

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"warunglaba/backend/internal/domain"
)

var (
	hundred = decimal.NewFromInt(100)
	// Items with a positive-but-thin margin below this percentage are
	// flagged so the owner can spot products sold nearly at cost.
	lowMarginThresholdPercent = decimal.NewFromInt(5)
)

// BuildProfitReport combines realized per-item sales totals with normalized
// operating expenses over [start, end]. Item rows are ranked by profit
// descending.
func BuildProfitReport(totals []domain.ItemSales, expenses []domain.Expense, start int64, end int64) domain.ProfitReport {
	periodDays := PeriodDays(start, end)

	report := domain.ProfitReport{
		Start:         start,
		End:           end,
		PeriodDays:    periodDays,
		TotalProfit:   decimal.Zero,
		TotalSales:    decimal.Zero,
		TotalCost:     decimal.Zero,
		ProfitMargin:  decimal.Zero,
		ScaledExpense: decimal.Zero,
		NetProfit:     decimal.Zero,
		ItemProfits:   make([]domain.ItemProfit, 0, len(totals)),
	}

	for _, t := range totals {
		profit := t.TotalSales.Sub(t.TotalCost)
		report.ItemProfits = append(report.ItemProfits, domain.ItemProfit{
			ItemID:       t.ItemID,
			ItemName:     t.ItemName,
			TotalProfit:  profit,
			TotalSales:   t.TotalSales,
			TotalCost:    t.TotalCost,
			QuantitySold: t.QuantitySold,
			LowMargin:    isLowMargin(profit, t.TotalSales),
		})
		report.TotalSales = report.TotalSales.Add(t.TotalSales)
		report.TotalCost = report.TotalCost.Add(t.TotalCost)
	}
	report.TotalProfit = report.TotalSales.Sub(report.TotalCost)

	slices.SortStableFunc(report.ItemProfits, func(a, b domain.ItemProfit) int {
		if !a.TotalProfit.Equal(b.TotalProfit) {
			if a.TotalProfit.GreaterThan(b.TotalProfit) {
				return -1
			}
			return 1
		}
		return strings.Compare(a.ItemName, b.ItemName)
	})

	if report.TotalSales.IsPositive() {
		report.ProfitMargin = report.TotalProfit.Div(report.TotalSales).Mul(hundred)
	}

	agg := AggregateExpenses(expenses, periodDays, end)
	report.ScaledExpense = agg.ScaledCost
	report.NetProfit = report.TotalProfit.Sub(report.ScaledExpense)

	// Break-even sales only exist for a positive margin. Zero or negative
	// margin surfaces as null, never 0 or a division blow-up.
	if report.ProfitMargin.IsPositive() {
		breakEven := report.ScaledExpense.Div(report.ProfitMargin).Mul(hundred)
		report.BreakEvenSales = &breakEven
	}

	return report
}

// isLowMargin flags loss-makers and items with a margin under the threshold.
func isLowMargin(profit decimal.Decimal, sales decimal.Decimal) bool {
	if profit.IsNegative() {
		return true
	}
	if !sales.IsPositive() {
		return false
	}
	margin := profit.Div(sales).Mul(hundred)
	return margin.LessThan(lowMarginThresholdPercent)
}
