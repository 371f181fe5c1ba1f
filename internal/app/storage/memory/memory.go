package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

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
)

// Store is an in-memory implementation of storage.Store. Every scope holds a
// store-wide lock, so scopes are fully serialised. Update snapshots the state
// and restores it when its function fails; View reads the live state and
// refuses writes. It is intended for tests and local development.
type Store struct {
	mu     sync.Mutex
	st     *state
	faults map[string]error
}

var _ storage.Store = (*Store)(nil)

type state struct {
	nextID int64

	users        map[string]user.User
	entries      map[string]ledger.Entry
	entryKeys    map[string]string
	deposits     map[string]deposit.Deposit
	withdrawals  map[string]withdrawal.Withdrawal
	investments  map[string]investment.Investment
	plans        map[string]plan.Plan
	reconcile    map[string]reconciliation.Item
	entryOrder   []string
	depositOrder []string
	drawOrder    []string
	investOrder  []string
	planOrder    []string
	reconOrder   []string
}

// New creates an empty store.
func New() *Store {
	return &Store{
		st: &state{
			nextID:      1,
			users:       make(map[string]user.User),
			entries:     make(map[string]ledger.Entry),
			entryKeys:   make(map[string]string),
			deposits:    make(map[string]deposit.Deposit),
			withdrawals: make(map[string]withdrawal.Withdrawal),
			investments: make(map[string]investment.Investment),
			plans:       make(map[string]plan.Plan),
			reconcile:   make(map[string]reconciliation.Item),
		},
		faults: make(map[string]error),
	}
}

// InjectFault makes the next call to the named operation (for example
// "CreateEntry") fail with a persistence error wrapping err.
func (s *Store) InjectFault(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = err
}

// Update runs fn in a serialised scope and rolls back on error.
func (s *Store) Update(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return core.NewPersistenceError("begin scope", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(ctx, &view{st: s.st, faults: s.faults}); err != nil {
		s.st = snapshot
		return err
	}
	if err := ctx.Err(); err != nil {
		s.st = snapshot
		return core.NewPersistenceError("commit scope", err)
	}
	return nil
}

// View runs fn in a serialised read-only scope. Writes fail with a
// persistence error, as they would in a read-only database transaction.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return core.NewPersistenceError("begin scope", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return fn(ctx, &view{st: s.st, faults: s.faults, readOnly: true})
}

func (st *state) clone() *state {
	c := &state{
		nextID:       st.nextID,
		users:        make(map[string]user.User, len(st.users)),
		entries:      make(map[string]ledger.Entry, len(st.entries)),
		entryKeys:    make(map[string]string, len(st.entryKeys)),
		deposits:     make(map[string]deposit.Deposit, len(st.deposits)),
		withdrawals:  make(map[string]withdrawal.Withdrawal, len(st.withdrawals)),
		investments:  make(map[string]investment.Investment, len(st.investments)),
		plans:        make(map[string]plan.Plan, len(st.plans)),
		reconcile:    make(map[string]reconciliation.Item, len(st.reconcile)),
		entryOrder:   append([]string(nil), st.entryOrder...),
		depositOrder: append([]string(nil), st.depositOrder...),
		drawOrder:    append([]string(nil), st.drawOrder...),
		investOrder:  append([]string(nil), st.investOrder...),
		planOrder:    append([]string(nil), st.planOrder...),
		reconOrder:   append([]string(nil), st.reconOrder...),
	}
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.entries {
		c.entries[k] = v
	}
	for k, v := range st.entryKeys {
		c.entryKeys[k] = v
	}
	for k, v := range st.deposits {
		c.deposits[k] = v
	}
	for k, v := range st.withdrawals {
		c.withdrawals[k] = v
	}
	for k, v := range st.investments {
		c.investments[k] = v
	}
	for k, v := range st.plans {
		c.plans[k] = v
	}
	for k, v := range st.reconcile {
		c.reconcile[k] = v
	}
	return c
}

// view implements storage.Tx against the locked state.
type view struct {
	st       *state
	faults   map[string]error
	readOnly bool
}

var errReadOnly = errors.New("write in read-only scope")

func (v *view) nextID() string {
	id := v.st.nextID
	v.st.nextID++
	return fmt.Sprintf("%d", id)
}

func (v *view) fault(op string) error {
	if err, ok := v.faults[op]; ok {
		delete(v.faults, op)
		return core.NewPersistenceError(op, err)
	}
	return nil
}

// write guards every mutating call.
func (v *view) write(op string) error {
	if v.readOnly {
		return core.NewPersistenceError(op, errReadOnly)
	}
	return v.fault(op)
}

func now() time.Time { return time.Now().UTC() }

// UserStore -------------------------------------------------------------------

func (v *view) CreateUser(_ context.Context, u user.User) (user.User, error) {
	if err := v.write("CreateUser"); err != nil {
		return user.User{}, err
	}
	if u.ID == "" {
		u.ID = v.nextID()
	} else if _, exists := v.st.users[u.ID]; exists {
		return user.User{}, core.NewConflictError("user", u.ID)
	}
	if u.ReferredBy != "" {
		if _, ok := v.st.users[u.ReferredBy]; !ok {
			return user.User{}, core.NewNotFoundError("referrer", u.ReferredBy)
		}
	}
	ts := now()
	u.CreatedAt, u.UpdatedAt = ts, ts
	v.st.users[u.ID] = u
	return u, nil
}

func (v *view) GetUser(_ context.Context, id string) (user.User, error) {
	if err := v.fault("GetUser"); err != nil {
		return user.User{}, err
	}
	u, ok := v.st.users[id]
	if !ok {
		return user.User{}, core.NewNotFoundError("user", id)
	}
	return u, nil
}

// LockUser is a plain read: the scope already holds the store-wide lock.
func (v *view) LockUser(ctx context.Context, id string) (user.User, error) {
	if err := v.fault("LockUser"); err != nil {
		return user.User{}, err
	}
	return v.GetUser(ctx, id)
}

func (v *view) UpdateUser(_ context.Context, u user.User) (user.User, error) {
	if err := v.write("UpdateUser"); err != nil {
		return user.User{}, err
	}
	original, ok := v.st.users[u.ID]
	if !ok {
		return user.User{}, core.NewNotFoundError("user", u.ID)
	}
	u.CreatedAt = original.CreatedAt
	u.ReferredBy = original.ReferredBy
	u.UpdatedAt = now()
	v.st.users[u.ID] = u
	return u, nil
}

// LedgerStore -----------------------------------------------------------------

func (v *view) CreateEntry(_ context.Context, e ledger.Entry) (ledger.Entry, error) {
	if err := v.write("CreateEntry"); err != nil {
		return ledger.Entry{}, err
	}
	if e.IdempotencyKey != "" {
		if _, taken := v.st.entryKeys[e.IdempotencyKey]; taken {
			return ledger.Entry{}, core.NewConflictError("ledger entry", e.IdempotencyKey)
		}
	}
	if e.ID == "" {
		e.ID = v.nextID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now()
	}
	v.st.entries[e.ID] = e
	v.st.entryOrder = append(v.st.entryOrder, e.ID)
	if e.IdempotencyKey != "" {
		v.st.entryKeys[e.IdempotencyKey] = e.ID
	}
	return e, nil
}

func (v *view) GetEntry(_ context.Context, id string) (ledger.Entry, error) {
	if err := v.fault("GetEntry"); err != nil {
		return ledger.Entry{}, err
	}
	e, ok := v.st.entries[id]
	if !ok {
		return ledger.Entry{}, core.NewNotFoundError("ledger entry", id)
	}
	return e, nil
}

func (v *view) UpdateEntry(_ context.Context, e ledger.Entry) (ledger.Entry, error) {
	if err := v.write("UpdateEntry"); err != nil {
		return ledger.Entry{}, err
	}
	original, ok := v.st.entries[e.ID]
	if !ok {
		return ledger.Entry{}, core.NewNotFoundError("ledger entry", e.ID)
	}
	e.CreatedAt = original.CreatedAt
	e.IdempotencyKey = original.IdempotencyKey
	v.st.entries[e.ID] = e
	return e, nil
}

func (v *view) FindEntryByKey(_ context.Context, key string) (ledger.Entry, bool, error) {
	if err := v.fault("FindEntryByKey"); err != nil {
		return ledger.Entry{}, false, err
	}
	id, ok := v.st.entryKeys[key]
	if !ok {
		return ledger.Entry{}, false, nil
	}
	return v.st.entries[id], true, nil
}

func (v *view) ListEntries(_ context.Context, userID string) ([]ledger.Entry, error) {
	var result []ledger.Entry
	for _, id := range v.st.entryOrder {
		if e := v.st.entries[id]; userID == "" || e.UserID == userID {
			result = append(result, e)
		}
	}
	return result, nil
}

// DepositStore ----------------------------------------------------------------

func (v *view) CreateDeposit(_ context.Context, d deposit.Deposit) (deposit.Deposit, error) {
	if err := v.write("CreateDeposit"); err != nil {
		return deposit.Deposit{}, err
	}
	if d.ID == "" {
		d.ID = v.nextID()
	}
	ts := now()
	d.CreatedAt, d.UpdatedAt = ts, ts
	v.st.deposits[d.ID] = d
	v.st.depositOrder = append(v.st.depositOrder, d.ID)
	return d, nil
}

func (v *view) GetDeposit(_ context.Context, id string) (deposit.Deposit, error) {
	d, ok := v.st.deposits[id]
	if !ok {
		return deposit.Deposit{}, core.NewNotFoundError("deposit", id)
	}
	return d, nil
}

func (v *view) UpdateDeposit(_ context.Context, d deposit.Deposit) (deposit.Deposit, error) {
	if err := v.write("UpdateDeposit"); err != nil {
		return deposit.Deposit{}, err
	}
	original, ok := v.st.deposits[d.ID]
	if !ok {
		return deposit.Deposit{}, core.NewNotFoundError("deposit", d.ID)
	}
	d.CreatedAt = original.CreatedAt
	d.UpdatedAt = now()
	v.st.deposits[d.ID] = d
	return d, nil
}

func (v *view) ListDeposits(_ context.Context, userID string) ([]deposit.Deposit, error) {
	var result []deposit.Deposit
	for _, id := range v.st.depositOrder {
		if d := v.st.deposits[id]; userID == "" || d.UserID == userID {
			result = append(result, d)
		}
	}
	return result, nil
}

// WithdrawalStore -------------------------------------------------------------

func (v *view) CreateWithdrawal(_ context.Context, w withdrawal.Withdrawal) (withdrawal.Withdrawal, error) {
	if err := v.write("CreateWithdrawal"); err != nil {
		return withdrawal.Withdrawal{}, err
	}
	if w.ID == "" {
		w.ID = v.nextID()
	}
	ts := now()
	w.CreatedAt, w.UpdatedAt = ts, ts
	v.st.withdrawals[w.ID] = w
	v.st.drawOrder = append(v.st.drawOrder, w.ID)
	return w, nil
}

func (v *view) GetWithdrawal(_ context.Context, id string) (withdrawal.Withdrawal, error) {
	w, ok := v.st.withdrawals[id]
	if !ok {
		return withdrawal.Withdrawal{}, core.NewNotFoundError("withdrawal", id)
	}
	return w, nil
}

func (v *view) UpdateWithdrawal(_ context.Context, w withdrawal.Withdrawal) (withdrawal.Withdrawal, error) {
	if err := v.write("UpdateWithdrawal"); err != nil {
		return withdrawal.Withdrawal{}, err
	}
	original, ok := v.st.withdrawals[w.ID]
	if !ok {
		return withdrawal.Withdrawal{}, core.NewNotFoundError("withdrawal", w.ID)
	}
	w.CreatedAt = original.CreatedAt
	w.UpdatedAt = now()
	v.st.withdrawals[w.ID] = w
	return w, nil
}

func (v *view) ListWithdrawals(_ context.Context, userID string) ([]withdrawal.Withdrawal, error) {
	var result []withdrawal.Withdrawal
	for _, id := range v.st.drawOrder {
		if w := v.st.withdrawals[id]; userID == "" || w.UserID == userID {
			result = append(result, w)
		}
	}
	return result, nil
}

// InvestmentStore -------------------------------------------------------------

func (v *view) CreateInvestment(_ context.Context, inv investment.Investment) (investment.Investment, error) {
	if err := v.write("CreateInvestment"); err != nil {
		return investment.Investment{}, err
	}
	if inv.ID == "" {
		inv.ID = v.nextID()
	}
	ts := now()
	inv.CreatedAt, inv.UpdatedAt = ts, ts
	v.st.investments[inv.ID] = inv
	v.st.investOrder = append(v.st.investOrder, inv.ID)
	return inv, nil
}

func (v *view) GetInvestment(_ context.Context, id string) (investment.Investment, error) {
	inv, ok := v.st.investments[id]
	if !ok {
		return investment.Investment{}, core.NewNotFoundError("investment", id)
	}
	return inv, nil
}

func (v *view) UpdateInvestment(_ context.Context, inv investment.Investment) (investment.Investment, error) {
	if err := v.write("UpdateInvestment"); err != nil {
		return investment.Investment{}, err
	}
	original, ok := v.st.investments[inv.ID]
	if !ok {
		return investment.Investment{}, core.NewNotFoundError("investment", inv.ID)
	}
	inv.CreatedAt = original.CreatedAt
	inv.UpdatedAt = now()
	v.st.investments[inv.ID] = inv
	return inv, nil
}

func (v *view) ListInvestments(_ context.Context, userID string) ([]investment.Investment, error) {
	var result []investment.Investment
	for _, id := range v.st.investOrder {
		if inv := v.st.investments[id]; userID == "" || inv.UserID == userID {
			result = append(result, inv)
		}
	}
	return result, nil
}

func (v *view) ListMatured(_ context.Context, asOf time.Time, limit int) ([]investment.Investment, error) {
	var result []investment.Investment
	for _, id := range v.st.investOrder {
		if inv := v.st.investments[id]; inv.Matured(asOf) {
			result = append(result, inv)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].EndDate.Before(*result[j].EndDate)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// PlanStore -------------------------------------------------------------------

func (v *view) CreatePlan(_ context.Context, p plan.Plan) (plan.Plan, error) {
	if err := v.write("CreatePlan"); err != nil {
		return plan.Plan{}, err
	}
	if p.ID == "" {
		p.ID = v.nextID()
	} else if _, exists := v.st.plans[p.ID]; exists {
		return plan.Plan{}, core.NewConflictError("plan", p.ID)
	}
	if !p.MinAmount.LessThan(p.MaxAmount) {
		return plan.Plan{}, core.NewValidationError("min_amount", "must be below max_amount")
	}
	ts := now()
	p.CreatedAt, p.UpdatedAt = ts, ts
	v.st.plans[p.ID] = p
	v.st.planOrder = append(v.st.planOrder, p.ID)
	return p, nil
}

func (v *view) GetPlan(_ context.Context, id string) (plan.Plan, error) {
	p, ok := v.st.plans[id]
	if !ok {
		return plan.Plan{}, core.NewNotFoundError("plan", id)
	}
	return p, nil
}

func (v *view) ListPlans(_ context.Context) ([]plan.Plan, error) {
	result := make([]plan.Plan, 0, len(v.st.planOrder))
	for _, id := range v.st.planOrder {
		result = append(result, v.st.plans[id])
	}
	return result, nil
}

func (v *view) PlanTotals(_ context.Context, planID string) (plan.Totals, error) {
	totals := plan.Totals{PlanID: planID, TotalInvested: decimal.Zero}
	for _, inv := range v.st.investments {
		if inv.PlanID != planID {
			continue
		}
		switch inv.Status {
		case investment.StatusPending, investment.StatusActive, investment.StatusCompleted:
			totals.InvestmentCount++
			// renewals roll existing capital forward
			if inv.RenewedFrom == "" {
				totals.TotalInvested = totals.TotalInvested.Add(inv.Amount)
			}
		}
	}
	return totals, nil
}

// ReconciliationStore ---------------------------------------------------------

func (v *view) EnqueueReconciliation(_ context.Context, item reconciliation.Item) (reconciliation.Item, error) {
	if err := v.write("EnqueueReconciliation"); err != nil {
		return reconciliation.Item{}, err
	}
	if item.ID == "" {
		item.ID = v.nextID()
	}
	if item.Status == "" {
		item.Status = reconciliation.StatusOpen
	}
	ts := now()
	item.CreatedAt, item.UpdatedAt = ts, ts
	v.st.reconcile[item.ID] = item
	v.st.reconOrder = append(v.st.reconOrder, item.ID)
	return item, nil
}

func (v *view) UpdateReconciliation(_ context.Context, item reconciliation.Item) (reconciliation.Item, error) {
	if err := v.write("UpdateReconciliation"); err != nil {
		return reconciliation.Item{}, err
	}
	original, ok := v.st.reconcile[item.ID]
	if !ok {
		return reconciliation.Item{}, core.NewNotFoundError("reconciliation item", item.ID)
	}
	item.CreatedAt = original.CreatedAt
	item.UpdatedAt = now()
	v.st.reconcile[item.ID] = item
	return item, nil
}

func (v *view) ListOpenReconciliations(_ context.Context, limit int) ([]reconciliation.Item, error) {
	var result []reconciliation.Item
	for _, id := range v.st.reconOrder {
		if item := v.st.reconcile[id]; item.Status == reconciliation.StatusOpen {
			result = append(result, item)
		}
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}
