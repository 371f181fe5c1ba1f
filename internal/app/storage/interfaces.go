package storage

import (
	"context"
	"time"

	"github.com/israeldewcom/Real-wealth/internal/app/domain/deposit"
	"github.com/israeldewcom/Real-wealth/internal/app/domain/investment"
	"github.com/israeldewcom/Real-wealth/internal/app/domain/ledger"
	"github.com/israeldewcom/Real-wealth/internal/app/domain/plan"
	"github.com/israeldewcom/Real-wealth/internal/app/domain/reconciliation"
	"github.com/israeldewcom/Real-wealth/internal/app/domain/user"
	"github.com/israeldewcom/Real-wealth/internal/app/domain/withdrawal"
)

// UserStore persists balance owners. LockUser must serialise concurrent
// scopes touching the same user until the enclosing scope ends.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	LockUser(ctx context.Context, id string) (user.User, error)
	UpdateUser(ctx context.Context, u user.User) (user.User, error)
}

// LedgerStore persists ledger entries. CreateEntry fails with ErrConflict
// when a non-empty IdempotencyKey is already taken.
type LedgerStore interface {
	CreateEntry(ctx context.Context, e ledger.Entry) (ledger.Entry, error)
	GetEntry(ctx context.Context, id string) (ledger.Entry, error)
	UpdateEntry(ctx context.Context, e ledger.Entry) (ledger.Entry, error)
	FindEntryByKey(ctx context.Context, key string) (ledger.Entry, bool, error)
	ListEntries(ctx context.Context, userID string) ([]ledger.Entry, error)
}

// DepositStore persists deposit requests.
type DepositStore interface {
	CreateDeposit(ctx context.Context, d deposit.Deposit) (deposit.Deposit, error)
	GetDeposit(ctx context.Context, id string) (deposit.Deposit, error)
	UpdateDeposit(ctx context.Context, d deposit.Deposit) (deposit.Deposit, error)
	ListDeposits(ctx context.Context, userID string) ([]deposit.Deposit, error)
}

// WithdrawalStore persists withdrawal requests.
type WithdrawalStore interface {
	CreateWithdrawal(ctx context.Context, w withdrawal.Withdrawal) (withdrawal.Withdrawal, error)
	GetWithdrawal(ctx context.Context, id string) (withdrawal.Withdrawal, error)
	UpdateWithdrawal(ctx context.Context, w withdrawal.Withdrawal) (withdrawal.Withdrawal, error)
	ListWithdrawals(ctx context.Context, userID string) ([]withdrawal.Withdrawal, error)
}

// InvestmentStore persists investments.
type InvestmentStore interface {
	CreateInvestment(ctx context.Context, inv investment.Investment) (investment.Investment, error)
	GetInvestment(ctx context.Context, id string) (investment.Investment, error)
	UpdateInvestment(ctx context.Context, inv investment.Investment) (investment.Investment, error)
	ListInvestments(ctx context.Context, userID string) ([]investment.Investment, error)
	ListMatured(ctx context.Context, asOf time.Time, limit int) ([]investment.Investment, error)
}

// PlanStore persists plan reference data. Totals are derived from
// investments on read.
type PlanStore interface {
	CreatePlan(ctx context.Context, p plan.Plan) (plan.Plan, error)
	GetPlan(ctx context.Context, id string) (plan.Plan, error)
	ListPlans(ctx context.Context) ([]plan.Plan, error)
	PlanTotals(ctx context.Context, planID string) (plan.Totals, error)
}

// ReconciliationStore persists side effects queued for operator attention.
type ReconciliationStore interface {
	EnqueueReconciliation(ctx context.Context, item reconciliation.Item) (reconciliation.Item, error)
	UpdateReconciliation(ctx context.Context, item reconciliation.Item) (reconciliation.Item, error)
	ListOpenReconciliations(ctx context.Context, limit int) ([]reconciliation.Item, error)
}

// Tx is the view of storage available inside one atomic scope.
type Tx interface {
	UserStore
	LedgerStore
	DepositStore
	WithdrawalStore
	InvestmentStore
	PlanStore
	ReconciliationStore
}

// Store opens atomic scopes. Update commits every write made through tx when
// fn returns nil and discards all of them otherwise. View is read-only.
// Failures of the scope itself surface as core.PersistenceError.
type Store interface {
	Update(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
