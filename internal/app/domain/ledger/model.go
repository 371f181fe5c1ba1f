package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind classifies a balance-affecting event.
type Kind string

const (
	KindDeposit            Kind = "deposit"
	KindWithdrawal         Kind = "withdrawal"
	KindInvestment         Kind = "investment"
	KindInvestmentEarnings Kind = "investment_earnings"
	KindReferralBonus      Kind = "referral_bonus"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindDeposit, KindWithdrawal, KindInvestment, KindInvestmentEarnings, KindReferralBonus:
		return true
	}
	return false
}

// Status is the settlement state of an entry.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the entry can no longer change.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Entry is a single balance-affecting event. Amount is signed: negative for
// outflows. CorrelationID points at the originating deposit, withdrawal or
// investment.
type Entry struct {
	ID             string          `db:"id"`
	UserID         string          `db:"user_id"`
	Kind           Kind            `db:"kind"`
	Amount         decimal.Decimal `db:"amount"`
	Status         Status          `db:"status"`
	CorrelationID  string          `db:"correlation_id"`
	IdempotencyKey string          `db:"idempotency_key"`
	Description    string          `db:"description"`
	CreatedAt      time.Time       `db:"created_at"`
	SettledAt      *time.Time      `db:"settled_at"`
}

// IdempotencyKey builds the key used to suppress duplicate effects for the
// same cause.
func IdempotencyKey(correlationID string, kind Kind) string {
	return correlationID + ":" + string(kind)
}

// Counts reports whether the entry participates in the balance identity:
// completed entries always do, pending debits do because the funds were
// reserved when the entry was recorded.
func (e Entry) Counts() bool {
	switch e.Status {
	case StatusCompleted:
		return true
	case StatusPending:
		return e.Amount.IsNegative()
	default:
		return false
	}
}
