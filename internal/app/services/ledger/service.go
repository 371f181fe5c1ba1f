// Package ledger owns the ledger store and the only mutation path for user
// balances. Workflows compose it inside their own atomic scope through a
// Book; the Service methods open a scope of their own.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	core "github.com/israeldewcom/Real-wealth/internal/app/core/service"
	domain "github.com/israeldewcom/Real-wealth/internal/app/domain/ledger"
	"github.com/israeldewcom/Real-wealth/internal/app/domain/user"
	"github.com/israeldewcom/Real-wealth/internal/app/metrics"
	"github.com/israeldewcom/Real-wealth/internal/app/storage"
	"github.com/israeldewcom/Real-wealth/pkg/logger"
)

// Draft describes an entry to record.
type Draft struct {
	UserID         string
	Kind           domain.Kind
	Amount         decimal.Decimal
	CorrelationID  string
	IdempotencyKey string
	Description    string
}

func (d Draft) validate() error {
	if d.UserID == "" {
		return core.RequiredError("user_id")
	}
	if !d.Kind.Valid() {
		return core.NewValidationError("kind", fmt.Sprintf("unknown ledger kind %q", d.Kind))
	}
	if d.Amount.IsZero() {
		return core.NewAmountError("ledger amount must be non-zero")
	}
	return nil
}

// Book performs ledger and balance operations inside an existing scope.
type Book struct {
	tx  storage.Tx
	now func() time.Time
}

// RecordEntry appends a pending entry.
func (b *Book) RecordEntry(ctx context.Context, d Draft) (domain.Entry, error) {
	if err := d.validate(); err != nil {
		return domain.Entry{}, err
	}
	entry, err := b.tx.CreateEntry(ctx, domain.Entry{
		UserID:         d.UserID,
		Kind:           d.Kind,
		Amount:         d.Amount,
		Status:         domain.StatusPending,
		CorrelationID:  d.CorrelationID,
		IdempotencyKey: d.IdempotencyKey,
		Description:    d.Description,
		CreatedAt:      b.now(),
	})
	if err != nil {
		return domain.Entry{}, err
	}
	metrics.RecordEntry(string(entry.Kind), string(entry.Status))
	return entry, nil
}

// SettleEntry flips a pending entry to completed or failed. A second call
// fails with ErrAlreadySettled.
func (b *Book) SettleEntry(ctx context.Context, entryID string, outcome domain.Status) (domain.Entry, error) {
	if !outcome.Terminal() {
		return domain.Entry{}, core.NewValidationError("outcome", fmt.Sprintf("%q is not a settlement outcome", outcome))
	}
	entry, err := b.tx.GetEntry(ctx, entryID)
	if err != nil {
		return domain.Entry{}, err
	}
	if entry.Status.Terminal() {
		return domain.Entry{}, fmt.Errorf("entry %s is %s: %w", entry.ID, entry.Status, core.ErrAlreadySettled)
	}
	settledAt := b.now()
	entry.Status = outcome
	entry.SettledAt = &settledAt
	entry, err = b.tx.UpdateEntry(ctx, entry)
	if err != nil {
		return domain.Entry{}, err
	}
	metrics.RecordSettlement(string(entry.Kind), string(outcome))
	return entry, nil
}

// AdjustBalance locks the user, applies delta and returns the updated user.
// It fails with ErrInsufficientFunds when the result would be negative.
func (b *Book) AdjustBalance(ctx context.Context, userID string, delta decimal.Decimal) (user.User, error) {
	return b.Adjust(ctx, userID, delta, nil)
}

// Adjust applies delta and then lets mutate update the running aggregates,
// all in one write. mutate must not touch Balance.
func (b *Book) Adjust(ctx context.Context, userID string, delta decimal.Decimal, mutate func(*user.User)) (user.User, error) {
	u, err := b.tx.LockUser(ctx, userID)
	if err != nil {
		return user.User{}, err
	}
	next := u.Balance.Add(delta)
	if next.IsNegative() {
		metrics.RecordInsufficientFunds()
		return user.User{}, &core.InsufficientFundsError{
			UserID:    userID,
			Available: u.Balance.String(),
			Requested: delta.Neg().String(),
		}
	}
	u.Balance = next
	if mutate != nil {
		mutate(&u)
		u.Balance = next
	}
	return b.tx.UpdateUser(ctx, u)
}

// Post applies an immediate credit or debit: the balance moves and a
// completed entry is written in the same scope.
func (b *Book) Post(ctx context.Context, d Draft, mutate func(*user.User)) (domain.Entry, user.User, error) {
	if err := d.validate(); err != nil {
		return domain.Entry{}, user.User{}, err
	}
	u, err := b.Adjust(ctx, d.UserID, d.Amount, mutate)
	if err != nil {
		return domain.Entry{}, user.User{}, err
	}
	settledAt := b.now()
	entry, err := b.tx.CreateEntry(ctx, domain.Entry{
		UserID:         d.UserID,
		Kind:           d.Kind,
		Amount:         d.Amount,
		Status:         domain.StatusCompleted,
		CorrelationID:  d.CorrelationID,
		IdempotencyKey: d.IdempotencyKey,
		Description:    d.Description,
		CreatedAt:      settledAt,
		SettledAt:      &settledAt,
	})
	if err != nil {
		return domain.Entry{}, user.User{}, err
	}
	metrics.RecordEntry(string(entry.Kind), string(entry.Status))
	return entry, u, nil
}

// Service exposes the ledger operations with their own atomic scope.
type Service struct {
	store storage.Store
	log   *logger.Logger
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a ledger service.
func New(store storage.Store, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.NewDefault("ledger")
	}
	s := &Service{store: store, log: log, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Descriptor advertises the service placement.
func (s *Service) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:         "ledger",
		Domain:       "ledger",
		Layer:        core.LayerLedger,
		Capabilities: []string{"entries", "balance", "reconcile"},
	}
}

// Book binds ledger operations to tx.
func (s *Service) Book(tx storage.Tx) *Book {
	return &Book{tx: tx, now: s.now}
}

// RecordEntry appends a pending entry and returns its id.
func (s *Service) RecordEntry(ctx context.Context, userID string, kind domain.Kind, amount decimal.Decimal, correlationID string) (string, error) {
	var id string
	err := s.store.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := tx.GetUser(ctx, userID); err != nil {
			return err
		}
		entry, err := s.Book(tx).RecordEntry(ctx, Draft{UserID: userID, Kind: kind, Amount: amount, CorrelationID: correlationID})
		if err != nil {
			return err
		}
		id = entry.ID
		return nil
	})
	return id, err
}

// SettleEntry settles a pending entry exactly once.
func (s *Service) SettleEntry(ctx context.Context, entryID string, outcome domain.Status) error {
	return s.store.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
		_, err := s.Book(tx).SettleEntry(ctx, entryID, outcome)
		return err
	})
}

// AdjustBalance is the raw balance accessor. Workflows pair every call with
// a ledger entry in the same scope; prefer Post for standalone credits.
func (s *Service) AdjustBalance(ctx context.Context, userID string, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.store.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
		u, err := s.Book(tx).AdjustBalance(ctx, userID, delta)
		if err != nil {
			return err
		}
		balance = u.Balance
		return nil
	})
	return balance, err
}

// Post applies an immediate, completed balance movement.
func (s *Service) Post(ctx context.Context, d Draft) (domain.Entry, error) {
	var entry domain.Entry
	err := s.store.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		entry, _, err = s.Book(tx).Post(ctx, d, nil)
		return err
	})
	if err != nil {
		s.log.WithError(err).Warnf("post %s entry for user %s failed", d.Kind, d.UserID)
	}
	return entry, err
}

// Balance returns the user's spendable balance.
func (s *Service) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		balance = u.Balance
		return nil
	})
	return balance, err
}

// Entries lists a user's ledger entries in recording order.
func (s *Service) Entries(ctx context.Context, userID string) ([]domain.Entry, error) {
	var entries []domain.Entry
	err := s.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		entries, err = tx.ListEntries(ctx, userID)
		return err
	})
	return entries, err
}

// Report compares a user's balance with the balance implied by the ledger.
type Report struct {
	UserID   string
	Opening  decimal.Decimal
	Balance  decimal.Decimal
	Expected decimal.Decimal
	Drift    decimal.Decimal
	Entries  int
}

// Balanced reports whether the ledger explains the balance exactly.
func (r Report) Balanced() bool { return r.Drift.IsZero() }

// Reconcile recomputes the expected balance as opening plus every counting
// entry (see Entry.Counts) and reports any drift.
func (s *Service) Reconcile(ctx context.Context, userID string, opening decimal.Decimal) (Report, error) {
	report := Report{UserID: userID, Opening: opening}
	err := s.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		entries, err := tx.ListEntries(ctx, userID)
		if err != nil {
			return err
		}
		expected := opening
		for _, e := range entries {
			if e.Counts() {
				expected = expected.Add(e.Amount)
			}
		}
		report.Balance = u.Balance
		report.Expected = expected
		report.Drift = u.Balance.Sub(expected)
		report.Entries = len(entries)
		return nil
	})
	if err == nil && !report.Balanced() {
		s.log.With(map[string]any{"user_id": userID, "drift": report.Drift.String()}).Warn("ledger drift detected")
	}
	return report, err
}
