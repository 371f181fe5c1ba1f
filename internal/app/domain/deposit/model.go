package deposit

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status of a deposit request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// Deposit is a user's request to have funds credited after admin review.
type Deposit struct {
	ID              string          `db:"id"`
	UserID          string          `db:"user_id"`
	Amount          decimal.Decimal `db:"amount"`
	PaymentMethod   string          `db:"payment_method"`
	Reference       string          `db:"reference"`
	Status          Status          `db:"status"`
	ApprovedBy      string          `db:"approved_by"`
	RejectionReason string          `db:"rejection_reason"`
	EntryID         string          `db:"entry_id"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
	ProcessedAt     *time.Time      `db:"processed_at"`
}
