// Package returns computes investment yields. All functions are pure.
package returns

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	core "github.com/israeldewcom/Real-wealth/internal/app/core/service"
	"github.com/israeldewcom/Real-wealth/internal/app/domain/investment"
	"github.com/israeldewcom/Real-wealth/internal/app/domain/plan"
)

var hundred = decimal.NewFromInt(100)

// Day is the length of one accrual period.
const Day = 24 * time.Hour

// DailyEarnings returns amount × dailyRatePercent / 100.
func DailyEarnings(amount, dailyRatePercent decimal.Decimal) decimal.Decimal {
	return amount.Mul(dailyRatePercent).Div(hundred)
}

// TotalReturns returns amount × totalRatePercent / 100.
func TotalReturns(amount, totalRatePercent decimal.Decimal) decimal.Decimal {
	return amount.Mul(totalRatePercent).Div(hundred)
}

// Maturity returns the end date of an investment started at start.
func Maturity(start time.Time, durationDays int) time.Time {
	return start.Add(time.Duration(durationDays) * Day)
}

// Projection is the expected yield of an amount placed in a plan.
type Projection struct {
	PlanID        string
	Amount        decimal.Decimal
	DailyEarnings decimal.Decimal
	TotalReturns  decimal.Decimal
	Profit        decimal.Decimal
	DurationDays  int
	StartDate     time.Time
	EndDate       time.Time
}

// Project validates amount against the plan bounds and computes its yield.
func Project(p plan.Plan, amount decimal.Decimal, start time.Time) (Projection, error) {
	if !amount.IsPositive() {
		return Projection{}, core.NewAmountError("must be positive")
	}
	if !p.InRange(amount) {
		return Projection{}, core.NewAmountError(fmt.Sprintf("must be between %s and %s for plan %s",
			p.MinAmount, p.MaxAmount, p.ID))
	}
	total := TotalReturns(amount, p.TotalInterest)
	return Projection{
		PlanID:        p.ID,
		Amount:        amount,
		DailyEarnings: DailyEarnings(amount, p.DailyInterest),
		TotalReturns:  total,
		Profit:        total.Sub(amount),
		DurationDays:  p.DurationDays,
		StartDate:     start,
		EndDate:       Maturity(start, p.DurationDays),
	}, nil
}

// Accrued returns the earnings an active investment has accrued by asOf,
// counted in whole days and capped at the plan duration. Pending,
// rejected and cancelled investments accrue nothing; completed ones report
// their full daily accrual.
func Accrued(inv investment.Investment, asOf time.Time) decimal.Decimal {
	if inv.StartDate == nil || inv.EndDate == nil {
		return decimal.Zero
	}
	switch inv.Status {
	case investment.StatusActive, investment.StatusCompleted:
	default:
		return decimal.Zero
	}
	end := *inv.EndDate
	if inv.Status == investment.StatusCompleted || asOf.After(end) {
		asOf = end
	}
	if asOf.Before(*inv.StartDate) {
		return decimal.Zero
	}
	days := int64(asOf.Sub(*inv.StartDate) / Day)
	return inv.DailyEarnings.Mul(decimal.NewFromInt(days))
}
