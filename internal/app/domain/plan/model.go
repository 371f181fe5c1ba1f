package plan

import (
	"time"

	"github.com/shopspring/decimal"
)

// Plan is immutable investment reference data. Rates are percentages.
type Plan struct {
	ID            string          `db:"id"`
	Name          string          `db:"name"`
	MinAmount     decimal.Decimal `db:"min_amount"`
	MaxAmount     decimal.Decimal `db:"max_amount"`
	DailyInterest decimal.Decimal `db:"daily_interest"`
	TotalInterest decimal.Decimal `db:"total_interest"`
	DurationDays  int             `db:"duration_days"`
	RiskLevel     string          `db:"risk_level"`
	Active        bool            `db:"active"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// InRange reports whether amount lies within [MinAmount, MaxAmount].
func (p Plan) InRange(amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(p.MinAmount) && amount.LessThanOrEqual(p.MaxAmount)
}

// Totals are aggregate figures derived from the plan's investments on read.
type Totals struct {
	PlanID          string          `db:"plan_id"`
	InvestmentCount int64           `db:"investment_count"`
	TotalInvested   decimal.Decimal `db:"total_invested"`
}
