// Package analytics holds the pure reporting math: expense normalization,
// profitability and stock valuation. Everything here is side-effect free and
// works on decimals so report figures never drift through float rounding.
package analytics

import (
	"github.com/shopspring/decimal"

	"warunglaba/backend/internal/domain"
)

// Frequency divisors use the fixed 7/30/365 day approximations. Daily cost
// and the weekly/monthly projections must round-trip through the same
// constants, so they live in one place.
var frequencyDivisors = map[string]int64{
	domain.FrequencyDaily:   1,
	domain.FrequencyWeekly:  7,
	domain.FrequencyMonthly: 30,
	domain.FrequencyYearly:  365,
}

// FrequencyDivisor returns the day count a given frequency amortizes over,
// or 0 for an unknown frequency.
func FrequencyDivisor(frequency string) int64 {
	return frequencyDivisors[frequency]
}

// DailyCost normalizes an expense amount to its per-day figure.
func DailyCost(expense domain.Expense) decimal.Decimal {
	divisor := FrequencyDivisor(expense.Frequency)
	if divisor < 1 {
		return decimal.Zero
	}
	return expense.Amount.Div(decimal.NewFromInt(divisor))
}

// PeriodDays converts a unix-second range into a day count for expense
// scaling. Partial days round up, and the shortest period is one day.
func PeriodDays(start int64, end int64) int64 {
	if end <= start {
		return 1
	}
	days := (end - start) / 86400
	if (end-start)%86400 != 0 {
		days++
	}
	if days < 1 {
		days = 1
	}
	return days
}

// AggregateExpenses normalizes the expense set to daily figures and scales
// them across the period. Only active expenses that started on or before
// the period end participate.
func AggregateExpenses(expenses []domain.Expense, periodDays int64, periodEnd int64) domain.ExpenseAggregate {
	agg := domain.ExpenseAggregate{
		FixedDailyCost:     decimal.Zero,
		VariableDailyCost:  decimal.Zero,
		DailyOperatingCost: decimal.Zero,
		ScaledCost:         decimal.Zero,
	}
	for _, e := range expenses {
		if !e.Active || e.StartDate > periodEnd {
			continue
		}
		daily := DailyCost(e)
		if e.Category == domain.ExpenseFixed {
			agg.FixedDailyCost = agg.FixedDailyCost.Add(daily)
		} else {
			agg.VariableDailyCost = agg.VariableDailyCost.Add(daily)
		}
		agg.ExpenseCount++
	}
	agg.DailyOperatingCost = agg.FixedDailyCost.Add(agg.VariableDailyCost)
	agg.ScaledCost = agg.DailyOperatingCost.Mul(decimal.NewFromInt(periodDays))
	return agg
}

// BuildDailyCostSummary projects the daily aggregate to weekly and monthly
// figures with the same 7/30 approximation the divisors use.
func BuildDailyCostSummary(expenses []domain.Expense, now int64) domain.DailyCostSummary {
	agg := AggregateExpenses(expenses, 1, now)
	return domain.DailyCostSummary{
		DailyOperatingCost:   agg.DailyOperatingCost,
		FixedDailyCost:       agg.FixedDailyCost,
		VariableDailyCost:    agg.VariableDailyCost,
		WeeklyOperatingCost:  agg.DailyOperatingCost.Mul(decimal.NewFromInt(7)),
		MonthlyOperatingCost: agg.DailyOperatingCost.Mul(decimal.NewFromInt(30)),
		ExpenseCount:         agg.ExpenseCount,
	}
}
