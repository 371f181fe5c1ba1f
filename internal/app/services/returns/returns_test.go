package returns

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "github.com/israeldewcom/Real-wealth/internal/app/core/service"
	"github.com/israeldewcom/Real-wealth/internal/app/domain/investment"
	"github.com/israeldewcom/Real-wealth/internal/app/domain/plan"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func samplePlan() plan.Plan {
	return plan.Plan{
		ID:            "gold",
		MinAmount:     d("1000"),
		MaxAmount:     d("50000"),
		DailyInterest: d("2"),
		TotalInterest: d("120"),
		DurationDays:  10,
		Active:        true,
	}
}

func TestDailyAndTotal(t *testing.T) {
	assert.True(t, DailyEarnings(d("10000"), d("2")).Equal(d("200")))
	assert.True(t, TotalReturns(d("10000"), d("120")).Equal(d("12000")))
	assert.True(t, DailyEarnings(d("333.33"), d("1.5")).Equal(d("4.99995")))
}

func TestProject(t *testing.T) {
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	p, err := Project(samplePlan(), d("10000"), start)
	require.NoError(t, err)
	assert.True(t, p.DailyEarnings.Equal(d("200")))
	assert.True(t, p.TotalReturns.Equal(d("12000")))
	assert.True(t, p.Profit.Equal(d("2000")))
	assert.Equal(t, start.AddDate(0, 0, 10), p.EndDate)
}

func TestProjectRejectsOutOfRange(t *testing.T) {
	for _, amt := range []string{"999.99", "50000.01", "0", "-5"} {
		_, err := Project(samplePlan(), d(amt), time.Now())
		assert.ErrorIs(t, err, core.ErrInvalidAmount, amt)
	}
	for _, amt := range []string{"1000", "50000"} {
		_, err := Project(samplePlan(), d(amt), time.Now())
		assert.NoError(t, err, amt)
	}
}

func TestAccrued(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := Maturity(start, 10)
	inv := investment.Investment{
		Status:        investment.StatusActive,
		DailyEarnings: d("200"),
		StartDate:     &start,
		EndDate:       &end,
	}

	assert.True(t, Accrued(inv, start.Add(-time.Hour)).IsZero())
	assert.True(t, Accrued(inv, start.Add(36*time.Hour)).Equal(d("200")))
	assert.True(t, Accrued(inv, start.AddDate(0, 0, 30)).Equal(d("2000")))

	inv.Status = investment.StatusCompleted
	assert.True(t, Accrued(inv, start).Equal(d("2000")))

	inv.Status = investment.StatusCancelled
	assert.True(t, Accrued(inv, end).IsZero())

	pending := investment.Investment{Status: investment.StatusPending, DailyEarnings: d("200")}
	assert.True(t, Accrued(pending, end).IsZero())
}
