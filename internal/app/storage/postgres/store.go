package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	core "github.com/israeldewcom/Real-wealth/internal/app/core/service"
	"github.com/israeldewcom/Real-wealth/internal/app/domain/deposit"
	"github.com/israeldewcom/Real-wealth/internal/app/domain/investment"
	"github.com/israeldewcom/Real-wealth/internal/app/domain/ledger"
	"github.com/israeldewcom/Real-wealth/internal/app/domain/plan"
	"github.com/israeldewcom/Real-wealth/internal/app/domain/reconciliation"
	"github.com/israeldewcom/Real-wealth/internal/app/domain/user"
	"github.com/israeldewcom/Real-wealth/internal/app/domain/withdrawal"
	"github.com/israeldewcom/Real-wealth/internal/app/storage"
	"github.com/israeldewcom/Real-wealth/internal/config"
)

// Store implements storage.Store on PostgreSQL. Each scope is one database
// transaction; rows read for update inside Update are locked with FOR UPDATE
// until the scope ends.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

var _ storage.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithStatementTimeout bounds every statement run inside a scope.
func WithStatementTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// New creates a Store using the provided database handle.
func New(db *sqlx.DB, opts ...Option) *Store {
	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to the configured database and applies the pool limits.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return db, nil
}

func (s *Store) Update(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	return s.scope(ctx, false, fn)
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	return s.scope(ctx, true, fn)
}

func (s *Store) scope(ctx context.Context, readOnly bool, fn func(ctx context.Context, tx storage.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: readOnly})
	if err != nil {
		return core.NewPersistenceError("begin scope", err)
	}
	if s.timeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL statement_timeout = %d", s.timeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return core.NewPersistenceError("set statement timeout", err)
		}
	}
	if err := fn(ctx, &txStore{tx: tx, forUpdate: !readOnly}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if readOnly {
		_ = tx.Rollback()
		return nil
	}
	if err := tx.Commit(); err != nil {
		return core.NewPersistenceError("commit scope", err)
	}
	return nil
}

// txStore is the storage.Tx bound to one transaction.
type txStore struct {
	tx        *sqlx.Tx
	forUpdate bool
}

var _ storage.Tx = (*txStore)(nil)

func (t *txStore) lock() string {
	if t.forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

func now() time.Time { return time.Now().UTC() }

// translate maps driver failures onto the service error taxonomy.
func translate(op, resource, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return core.NewNotFoundError(resource, id)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return core.NewConflictError(resource, id)
		case "23503": // foreign_key_violation
			return core.NewNotFoundError("referenced row", pqErr.Constraint)
		case "23514": // check_violation
			return core.NewValidationError(pqErr.Constraint, pqErr.Message)
		}
	}
	return core.NewPersistenceError(op, err)
}

// --- UserStore ----------------------------------------------------------------

const userColumns = `id, email, balance, total_invested, total_earnings, referral_earnings,
	COALESCE(referred_by, '') AS referred_by, created_at, updated_at`

func (t *txStore) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	ts := now()
	u.CreatedAt, u.UpdatedAt = ts, ts
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO ledger_users (id, email, balance, total_invested, total_earnings, referral_earnings, referred_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)
	`, u.ID, u.Email, u.Balance, u.TotalInvested, u.TotalEarnings, u.ReferralEarnings, u.ReferredBy, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return user.User{}, translate("CreateUser", "user", u.ID, err)
	}
	return u, nil
}

func (t *txStore) GetUser(ctx context.Context, id string) (user.User, error) {
	var u user.User
	err := t.tx.GetContext(ctx, &u, `SELECT `+userColumns+` FROM ledger_users WHERE id = $1`, id)
	if err != nil {
		return user.User{}, translate("GetUser", "user", id, err)
	}
	return u, nil
}

func (t *txStore) LockUser(ctx context.Context, id string) (user.User, error) {
	var u user.User
	err := t.tx.GetContext(ctx, &u, `SELECT `+userColumns+` FROM ledger_users WHERE id = $1`+t.lock(), id)
	if err != nil {
		return user.User{}, translate("LockUser", "user", id, err)
	}
	return u, nil
}

// UpdateUser never rewrites referred_by; the referrer is fixed at creation.
func (t *txStore) UpdateUser(ctx context.Context, u user.User) (user.User, error) {
	var out user.User
	err := t.tx.GetContext(ctx, &out, `
		UPDATE ledger_users
		SET email = $2, balance = $3, total_invested = $4, total_earnings = $5, referral_earnings = $6, updated_at = $7
		WHERE id = $1
		RETURNING `+userColumns,
		u.ID, u.Email, u.Balance, u.TotalInvested, u.TotalEarnings, u.ReferralEarnings, now())
	if err != nil {
		return user.User{}, translate("UpdateUser", "user", u.ID, err)
	}
	return out, nil
}

// --- LedgerStore --------------------------------------------------------------

const entryColumns = `id, user_id, kind, amount, status, correlation_id,
	COALESCE(idempotency_key, '') AS idempotency_key, description, created_at, settled_at`

func (t *txStore) CreateEntry(ctx context.Context, e ledger.Entry) (ledger.Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now()
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, user_id, kind, amount, status, correlation_id, idempotency_key, description, created_at, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10)
	`, e.ID, e.UserID, e.Kind, e.Amount, e.Status, e.CorrelationID, e.IdempotencyKey, e.Description, e.CreatedAt, e.SettledAt)
	if err != nil {
		key := e.IdempotencyKey
		if key == "" {
			key = e.ID
		}
		return ledger.Entry{}, translate("CreateEntry", "ledger entry", key, err)
	}
	return e, nil
}

func (t *txStore) GetEntry(ctx context.Context, id string) (ledger.Entry, error) {
	var e ledger.Entry
	err := t.tx.GetContext(ctx, &e, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1`+t.lock(), id)
	if err != nil {
		return ledger.Entry{}, translate("GetEntry", "ledger entry", id, err)
	}
	return e, nil
}

func (t *txStore) UpdateEntry(ctx context.Context, e ledger.Entry) (ledger.Entry, error) {
	var out ledger.Entry
	err := t.tx.GetContext(ctx, &out, `
		UPDATE ledger_entries
		SET status = $2, description = $3, settled_at = $4
		WHERE id = $1
		RETURNING `+entryColumns,
		e.ID, e.Status, e.Description, e.SettledAt)
	if err != nil {
		return ledger.Entry{}, translate("UpdateEntry", "ledger entry", e.ID, err)
	}
	return out, nil
}

func (t *txStore) FindEntryByKey(ctx context.Context, key string) (ledger.Entry, bool, error) {
	var e ledger.Entry
	err := t.tx.GetContext(ctx, &e, `SELECT `+entryColumns+` FROM ledger_entries WHERE idempotency_key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Entry{}, false, nil
	}
	if err != nil {
		return ledger.Entry{}, false, translate("FindEntryByKey", "ledger entry", key, err)
	}
	return e, true, nil
}

func (t *txStore) ListEntries(ctx context.Context, userID string) ([]ledger.Entry, error) {
	var out []ledger.Entry
	err := t.tx.SelectContext(ctx, &out, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE ($1 = '' OR user_id = $1)
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, translate("ListEntries", "ledger entry", userID, err)
	}
	return out, nil
}

// --- DepositStore -------------------------------------------------------------

const depositColumns = `id, user_id, amount, payment_method, reference, status, approved_by,
	rejection_reason, entry_id, created_at, updated_at, processed_at`

func (t *txStore) CreateDeposit(ctx context.Context, d deposit.Deposit) (deposit.Deposit, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	ts := now()
	d.CreatedAt, d.UpdatedAt = ts, ts
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO ledger_deposits (`+depositColumns+`)
		VALUES (:id, :user_id, :amount, :payment_method, :reference, :status, :approved_by,
			:rejection_reason, :entry_id, :created_at, :updated_at, :processed_at)
	`, d)
	if err != nil {
		return deposit.Deposit{}, translate("CreateDeposit", "deposit", d.ID, err)
	}
	return d, nil
}

func (t *txStore) GetDeposit(ctx context.Context, id string) (deposit.Deposit, error) {
	var d deposit.Deposit
	err := t.tx.GetContext(ctx, &d, `SELECT `+depositColumns+` FROM ledger_deposits WHERE id = $1`+t.lock(), id)
	if err != nil {
		return deposit.Deposit{}, translate("GetDeposit", "deposit", id, err)
	}
	return d, nil
}

func (t *txStore) UpdateDeposit(ctx context.Context, d deposit.Deposit) (deposit.Deposit, error) {
	var out deposit.Deposit
	err := t.tx.GetContext(ctx, &out, `
		UPDATE ledger_deposits
		SET status = $2, approved_by = $3, rejection_reason = $4, entry_id = $5, processed_at = $6, updated_at = $7
		WHERE id = $1
		RETURNING `+depositColumns,
		d.ID, d.Status, d.ApprovedBy, d.RejectionReason, d.EntryID, d.ProcessedAt, now())
	if err != nil {
		return deposit.Deposit{}, translate("UpdateDeposit", "deposit", d.ID, err)
	}
	return out, nil
}

func (t *txStore) ListDeposits(ctx context.Context, userID string) ([]deposit.Deposit, error) {
	var out []deposit.Deposit
	err := t.tx.SelectContext(ctx, &out, `
		SELECT `+depositColumns+` FROM ledger_deposits
		WHERE ($1 = '' OR user_id = $1)
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, translate("ListDeposits", "deposit", userID, err)
	}
	return out, nil
}

// --- WithdrawalStore ----------------------------------------------------------

const withdrawalColumns = `id, user_id, amount, fee, net_amount, method, destination, status,
	processed_by, rejection_reason, entry_id, created_at, updated_at, processed_at`

type withdrawalRow struct {
	ID              string          `db:"id"`
	UserID          string          `db:"user_id"`
	Amount          decimal.Decimal `db:"amount"`
	Fee             decimal.Decimal `db:"fee"`
	NetAmount       decimal.Decimal `db:"net_amount"`
	Method          string          `db:"method"`
	Destination     []byte          `db:"destination"`
	Status          string          `db:"status"`
	ProcessedBy     string          `db:"processed_by"`
	RejectionReason string          `db:"rejection_reason"`
	EntryID         string          `db:"entry_id"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
	ProcessedAt     *time.Time      `db:"processed_at"`
}

func toWithdrawalRow(w withdrawal.Withdrawal) (withdrawalRow, error) {
	dest, err := json.Marshal(w.Destination)
	if err != nil {
		return withdrawalRow{}, fmt.Errorf("encode destination: %w", err)
	}
	return withdrawalRow{
		ID:              w.ID,
		UserID:          w.UserID,
		Amount:          w.Amount,
		Fee:             w.Fee,
		NetAmount:       w.NetAmount,
		Method:          string(w.Method),
		Destination:     dest,
		Status:          string(w.Status),
		ProcessedBy:     w.ProcessedBy,
		RejectionReason: w.RejectionReason,
		EntryID:         w.EntryID,
		CreatedAt:       w.CreatedAt,
		UpdatedAt:       w.UpdatedAt,
		ProcessedAt:     w.ProcessedAt,
	}, nil
}

func (r withdrawalRow) model() (withdrawal.Withdrawal, error) {
	w := withdrawal.Withdrawal{
		ID:              r.ID,
		UserID:          r.UserID,
		Amount:          r.Amount,
		Fee:             r.Fee,
		NetAmount:       r.NetAmount,
		Method:          withdrawal.Method(r.Method),
		Status:          withdrawal.Status(r.Status),
		ProcessedBy:     r.ProcessedBy,
		RejectionReason: r.RejectionReason,
		EntryID:         r.EntryID,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		ProcessedAt:     r.ProcessedAt,
	}
	if len(r.Destination) > 0 {
		if err := json.Unmarshal(r.Destination, &w.Destination); err != nil {
			return withdrawal.Withdrawal{}, fmt.Errorf("decode destination of %s: %w", r.ID, err)
		}
	}
	return w, nil
}

func (t *txStore) CreateWithdrawal(ctx context.Context, w withdrawal.Withdrawal) (withdrawal.Withdrawal, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	ts := now()
	w.CreatedAt, w.UpdatedAt = ts, ts
	row, err := toWithdrawalRow(w)
	if err != nil {
		return withdrawal.Withdrawal{}, err
	}
	_, err = t.tx.NamedExecContext(ctx, `
		INSERT INTO ledger_withdrawals (`+withdrawalColumns+`)
		VALUES (:id, :user_id, :amount, :fee, :net_amount, :method, :destination, :status,
			:processed_by, :rejection_reason, :entry_id, :created_at, :updated_at, :processed_at)
	`, row)
	if err != nil {
		return withdrawal.Withdrawal{}, translate("CreateWithdrawal", "withdrawal", w.ID, err)
	}
	return w, nil
}

func (t *txStore) GetWithdrawal(ctx context.Context, id string) (withdrawal.Withdrawal, error) {
	var row withdrawalRow
	err := t.tx.GetContext(ctx, &row, `SELECT `+withdrawalColumns+` FROM ledger_withdrawals WHERE id = $1`+t.lock(), id)
	if err != nil {
		return withdrawal.Withdrawal{}, translate("GetWithdrawal", "withdrawal", id, err)
	}
	return row.model()
}

func (t *txStore) UpdateWithdrawal(ctx context.Context, w withdrawal.Withdrawal) (withdrawal.Withdrawal, error) {
	var row withdrawalRow
	err := t.tx.GetContext(ctx, &row, `
		UPDATE ledger_withdrawals
		SET status = $2, processed_by = $3, rejection_reason = $4, entry_id = $5, processed_at = $6, updated_at = $7
		WHERE id = $1
		RETURNING `+withdrawalColumns,
		w.ID, w.Status, w.ProcessedBy, w.RejectionReason, w.EntryID, w.ProcessedAt, now())
	if err != nil {
		return withdrawal.Withdrawal{}, translate("UpdateWithdrawal", "withdrawal", w.ID, err)
	}
	return row.model()
}

func (t *txStore) ListWithdrawals(ctx context.Context, userID string) ([]withdrawal.Withdrawal, error) {
	var rows []withdrawalRow
	err := t.tx.SelectContext(ctx, &rows, `
		SELECT `+withdrawalColumns+` FROM ledger_withdrawals
		WHERE ($1 = '' OR user_id = $1)
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, translate("ListWithdrawals", "withdrawal", userID, err)
	}
	out := make([]withdrawal.Withdrawal, 0, len(rows))
	for _, row := range rows {
		w, err := row.model()
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// --- InvestmentStore ----------------------------------------------------------

const investmentColumns = `id, user_id, plan_id, amount, daily_earnings, total_returns, status,
	auto_renew, approved_by, renewed_from, entry_id, start_date, end_date, completed_at, created_at, updated_at`

func (t *txStore) CreateInvestment(ctx context.Context, inv investment.Investment) (investment.Investment, error) {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	ts := now()
	inv.CreatedAt, inv.UpdatedAt = ts, ts
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO ledger_investments (`+investmentColumns+`)
		VALUES (:id, :user_id, :plan_id, :amount, :daily_earnings, :total_returns, :status,
			:auto_renew, :approved_by, :renewed_from, :entry_id, :start_date, :end_date, :completed_at, :created_at, :updated_at)
	`, inv)
	if err != nil {
		return investment.Investment{}, translate("CreateInvestment", "investment", inv.ID, err)
	}
	return inv, nil
}

func (t *txStore) GetInvestment(ctx context.Context, id string) (investment.Investment, error) {
	var inv investment.Investment
	err := t.tx.GetContext(ctx, &inv, `SELECT `+investmentColumns+` FROM ledger_investments WHERE id = $1`+t.lock(), id)
	if err != nil {
		return investment.Investment{}, translate("GetInvestment", "investment", id, err)
	}
	return inv, nil
}

func (t *txStore) UpdateInvestment(ctx context.Context, inv investment.Investment) (investment.Investment, error) {
	var out investment.Investment
	err := t.tx.GetContext(ctx, &out, `
		UPDATE ledger_investments
		SET status = $2, auto_renew = $3, approved_by = $4, entry_id = $5,
			start_date = $6, end_date = $7, completed_at = $8, updated_at = $9
		WHERE id = $1
		RETURNING `+investmentColumns,
		inv.ID, inv.Status, inv.AutoRenew, inv.ApprovedBy, inv.EntryID,
		inv.StartDate, inv.EndDate, inv.CompletedAt, now())
	if err != nil {
		return investment.Investment{}, translate("UpdateInvestment", "investment", inv.ID, err)
	}
	return out, nil
}

func (t *txStore) ListInvestments(ctx context.Context, userID string) ([]investment.Investment, error) {
	var out []investment.Investment
	err := t.tx.SelectContext(ctx, &out, `
		SELECT `+investmentColumns+` FROM ledger_investments
		WHERE ($1 = '' OR user_id = $1)
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, translate("ListInvestments", "investment", userID, err)
	}
	return out, nil
}

// ListMatured returns due investments, oldest maturity first. A zero limit
// means no limit.
func (t *txStore) ListMatured(ctx context.Context, asOf time.Time, limit int) ([]investment.Investment, error) {
	var out []investment.Investment
	err := t.tx.SelectContext(ctx, &out, `
		SELECT `+investmentColumns+` FROM ledger_investments
		WHERE status = 'active' AND end_date IS NOT NULL AND end_date <= $1
		ORDER BY end_date, id
		LIMIT NULLIF($2::int, 0)
	`, asOf, limit)
	if err != nil {
		return nil, translate("ListMatured", "investment", "", err)
	}
	return out, nil
}

// --- PlanStore ----------------------------------------------------------------

const planColumns = `id, name, min_amount, max_amount, daily_interest, total_interest,
	duration_days, risk_level, active, created_at, updated_at`

func (t *txStore) CreatePlan(ctx context.Context, p plan.Plan) (plan.Plan, error) {
	if !p.MinAmount.LessThan(p.MaxAmount) {
		return plan.Plan{}, core.NewValidationError("min_amount", "must be below max_amount")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	ts := now()
	p.CreatedAt, p.UpdatedAt = ts, ts
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO ledger_plans (`+planColumns+`)
		VALUES (:id, :name, :min_amount, :max_amount, :daily_interest, :total_interest,
			:duration_days, :risk_level, :active, :created_at, :updated_at)
	`, p)
	if err != nil {
		return plan.Plan{}, translate("CreatePlan", "plan", p.ID, err)
	}
	return p, nil
}

func (t *txStore) GetPlan(ctx context.Context, id string) (plan.Plan, error) {
	var p plan.Plan
	err := t.tx.GetContext(ctx, &p, `SELECT `+planColumns+` FROM ledger_plans WHERE id = $1`, id)
	if err != nil {
		return plan.Plan{}, translate("GetPlan", "plan", id, err)
	}
	return p, nil
}

func (t *txStore) ListPlans(ctx context.Context) ([]plan.Plan, error) {
	var out []plan.Plan
	if err := t.tx.SelectContext(ctx, &out, `SELECT `+planColumns+` FROM ledger_plans ORDER BY created_at, id`); err != nil {
		return nil, translate("ListPlans", "plan", "", err)
	}
	return out, nil
}

// PlanTotals counts live investments; renewals are counted but their
// capital was already invested once.
func (t *txStore) PlanTotals(ctx context.Context, planID string) (plan.Totals, error) {
	var totals plan.Totals
	err := t.tx.GetContext(ctx, &totals, `
		SELECT $1::text AS plan_id,
			COUNT(*) AS investment_count,
			COALESCE(SUM(amount) FILTER (WHERE renewed_from = ''), 0) AS total_invested
		FROM ledger_investments
		WHERE plan_id = $1 AND status IN ('pending', 'active', 'completed')
	`, planID)
	if err != nil {
		return plan.Totals{}, translate("PlanTotals", "plan", planID, err)
	}
	return totals, nil
}

// --- ReconciliationStore ------------------------------------------------------

const reconciliationColumns = `id, kind, correlation_id, attempts, last_error, status, created_at, updated_at`

func (t *txStore) EnqueueReconciliation(ctx context.Context, item reconciliation.Item) (reconciliation.Item, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Status == "" {
		item.Status = reconciliation.StatusOpen
	}
	ts := now()
	item.CreatedAt, item.UpdatedAt = ts, ts
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO ledger_reconciliations (`+reconciliationColumns+`)
		VALUES (:id, :kind, :correlation_id, :attempts, :last_error, :status, :created_at, :updated_at)
	`, item)
	if err != nil {
		return reconciliation.Item{}, translate("EnqueueReconciliation", "reconciliation item", item.ID, err)
	}
	return item, nil
}

func (t *txStore) UpdateReconciliation(ctx context.Context, item reconciliation.Item) (reconciliation.Item, error) {
	var out reconciliation.Item
	err := t.tx.GetContext(ctx, &out, `
		UPDATE ledger_reconciliations
		SET attempts = $2, last_error = $3, status = $4, updated_at = $5
		WHERE id = $1
		RETURNING `+reconciliationColumns,
		item.ID, item.Attempts, item.LastError, item.Status, now())
	if err != nil {
		return reconciliation.Item{}, translate("UpdateReconciliation", "reconciliation item", item.ID, err)
	}
	return out, nil
}

func (t *txStore) ListOpenReconciliations(ctx context.Context, limit int) ([]reconciliation.Item, error) {
	var out []reconciliation.Item
	err := t.tx.SelectContext(ctx, &out, `
		SELECT `+reconciliationColumns+` FROM ledger_reconciliations
		WHERE status = 'open'
		ORDER BY created_at, id
		LIMIT NULLIF($1::int, 0)
	`, limit)
	if err != nil {
		return nil, translate("ListOpenReconciliations", "reconciliation item", "", err)
	}
	return out, nil
}
