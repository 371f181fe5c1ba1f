package user

import (
	"time"

	"github.com/shopspring/decimal"
)

// User owns a spendable balance and the running aggregates derived from
// ledger activity. Balance is only changed through the ledger's balance
// accessor.
type User struct {
	ID               string          `db:"id"`
	Email            string          `db:"email"`
	Balance          decimal.Decimal `db:"balance"`
	TotalInvested    decimal.Decimal `db:"total_invested"`
	TotalEarnings    decimal.Decimal `db:"total_earnings"`
	ReferralEarnings decimal.Decimal `db:"referral_earnings"`
	ReferredBy       string          `db:"referred_by"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

// HasReferrer reports whether a referral bonus can cascade from this user.
func (u User) HasReferrer() bool {
	return u.ReferredBy != "" && u.ReferredBy != u.ID
}
