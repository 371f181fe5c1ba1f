package investment

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status of an investment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusRejected  Status = "rejected"
)

// Investment commits principal to a plan. DailyEarnings and TotalReturns are
// fixed at creation; StartDate and EndDate are set on activation.
type Investment struct {
	ID            string          `db:"id"`
	UserID        string          `db:"user_id"`
	PlanID        string          `db:"plan_id"`
	Amount        decimal.Decimal `db:"amount"`
	DailyEarnings decimal.Decimal `db:"daily_earnings"`
	TotalReturns  decimal.Decimal `db:"total_returns"`
	Status        Status          `db:"status"`
	AutoRenew     bool            `db:"auto_renew"`
	ApprovedBy    string          `db:"approved_by"`
	RenewedFrom   string          `db:"renewed_from"`
	EntryID       string          `db:"entry_id"`
	StartDate     *time.Time      `db:"start_date"`
	EndDate       *time.Time      `db:"end_date"`
	CompletedAt   *time.Time      `db:"completed_at"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// Matured reports whether an active investment has reached its end date.
func (i Investment) Matured(now time.Time) bool {
	return i.Status == StatusActive && i.EndDate != nil && !now.Before(*i.EndDate)
}
