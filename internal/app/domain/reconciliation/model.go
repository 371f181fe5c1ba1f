package reconciliation

import "time"

// Status of an operator reconciliation item.
type Status string

const (
	StatusOpen      Status = "open"
	StatusResolved  Status = "resolved"
	StatusAbandoned Status = "abandoned"
)

// KindReferralBonus marks a referral cascade that failed after the triggering
// approval committed.
const KindReferralBonus = "referral_bonus"

// Item is a side effect that failed and must be retried or reviewed.
type Item struct {
	ID            string    `db:"id"`
	Kind          string    `db:"kind"`
	CorrelationID string    `db:"correlation_id"`
	Attempts      int       `db:"attempts"`
	LastError     string    `db:"last_error"`
	Status        Status    `db:"status"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}
