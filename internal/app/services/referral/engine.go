// Package referral credits the referring user when a referred user's
// investment is activated. Each bonus is applied at most once per
// investment; the ledger entry's idempotency key enforces it.
package referral

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	core "github.com/israeldewcom/Real-wealth/internal/app/core/service"
	"github.com/israeldewcom/Real-wealth/internal/app/domain/investment"
	domain "github.com/israeldewcom/Real-wealth/internal/app/domain/ledger"
	"github.com/israeldewcom/Real-wealth/internal/app/domain/reconciliation"
	"github.com/israeldewcom/Real-wealth/internal/app/domain/user"
	"github.com/israeldewcom/Real-wealth/internal/app/events"
	"github.com/israeldewcom/Real-wealth/internal/app/metrics"
	"github.com/israeldewcom/Real-wealth/internal/app/services/ledger"
	"github.com/israeldewcom/Real-wealth/internal/app/storage"
	"github.com/israeldewcom/Real-wealth/pkg/logger"
)

// DefaultBonusRate is the share of the investment credited to the referrer.
var DefaultBonusRate = decimal.RequireFromString("0.20")

// Outcome of one Apply call.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Result describes what Apply did.
type Result struct {
	InvestmentID string
	ReferrerID   string
	Bonus        decimal.Decimal
	EntryID      string
	Outcome      Outcome
	Reason       string
}

// Engine applies referral bonuses.
type Engine struct {
	store     storage.Store
	ledger    *ledger.Service
	publisher events.Publisher
	rate      decimal.Decimal
	log       *logger.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithBonusRate overrides DefaultBonusRate.
func WithBonusRate(rate decimal.Decimal) Option {
	return func(e *Engine) {
		if !rate.IsNegative() {
			e.rate = rate
		}
	}
}

// WithPublisher sets the post-commit event sink.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.publisher = p
		}
	}
}

// NewEngine builds a referral engine on top of the ledger service.
func NewEngine(store storage.Store, ledgerSvc *ledger.Service, log *logger.Logger, opts ...Option) *Engine {
	if log == nil {
		log = logger.NewDefault("referral")
	}
	e := &Engine{
		store:     store,
		ledger:    ledgerSvc,
		publisher: events.Discard{},
		rate:      DefaultBonusRate,
		log:       log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Descriptor advertises the engine placement.
func (e *Engine) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:         "referral",
		Domain:       "referral",
		Layer:        core.LayerWorkflow,
		Capabilities: []string{"bonus", "reconcile"},
	}
}

// Bonus returns the bonus owed for an investment amount.
func (e *Engine) Bonus(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(e.rate).Round(2)
}

// Apply credits the referrer of the investment's owner, in its own scope.
// A bonus already recorded for the investment makes it a no-op.
func (e *Engine) Apply(ctx context.Context, investmentID string) (Result, error) {
	result := Result{InvestmentID: investmentID}
	key := domain.IdempotencyKey(investmentID, domain.KindReferralBonus)
	var batch events.Batch

	err := e.store.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
		batch = nil
		result = Result{InvestmentID: investmentID}
		if existing, found, err := tx.FindEntryByKey(ctx, key); err != nil {
			return err
		} else if found {
			result.Outcome = OutcomeDuplicate
			result.ReferrerID = existing.UserID
			result.Bonus = existing.Amount
			result.EntryID = existing.ID
			return nil
		}

		inv, err := tx.GetInvestment(ctx, investmentID)
		if err != nil {
			return err
		}
		if inv.Status != investment.StatusActive && inv.Status != investment.StatusCompleted {
			result.Outcome = OutcomeSkipped
			result.Reason = fmt.Sprintf("investment is %s", inv.Status)
			return nil
		}
		owner, err := tx.GetUser(ctx, inv.UserID)
		if err != nil {
			return err
		}
		if !owner.HasReferrer() {
			result.Outcome = OutcomeSkipped
			result.Reason = "user has no referrer"
			return nil
		}
		bonus := e.Bonus(inv.Amount)
		if !bonus.IsPositive() {
			result.Outcome = OutcomeSkipped
			result.Reason = "bonus is zero"
			return nil
		}

		entry, referrer, err := e.ledger.Book(tx).Post(ctx, ledger.Draft{
			UserID:         owner.ReferredBy,
			Kind:           domain.KindReferralBonus,
			Amount:         bonus,
			CorrelationID:  investmentID,
			IdempotencyKey: key,
			Description:    fmt.Sprintf("referral bonus for investment %s", investmentID),
		}, func(u *user.User) {
			u.ReferralEarnings = u.ReferralEarnings.Add(bonus)
		})
		if err != nil {
			return err
		}

		result.Outcome = OutcomeApplied
		result.ReferrerID = referrer.ID
		result.Bonus = bonus
		result.EntryID = entry.ID
		batch.Add(events.Event{
			Name:   events.ReferralBonusPaid,
			Target: events.User(referrer.ID),
			Payload: map[string]any{
				"investment_id": investmentID,
				"amount":        bonus.String(),
				"referred_user": owner.ID,
			},
			Mail: events.MailTo(referrer.Email, "referral-bonus", map[string]any{"amount": bonus.String()}),
		})
		return nil
	})

	if err != nil {
		// a concurrent Apply won the unique key; the bonus exists exactly once
		if core.IsConflict(err) {
			result = Result{InvestmentID: investmentID, Outcome: OutcomeDuplicate}
			metrics.RecordReferral(string(result.Outcome))
			return result, nil
		}
		metrics.RecordReferral(string(OutcomeFailed))
		return Result{InvestmentID: investmentID, Outcome: OutcomeFailed, Reason: err.Error()}, err
	}

	metrics.RecordReferral(string(result.Outcome))
	batch.Flush(e.publisher)
	if result.Outcome == OutcomeApplied {
		e.log.Infof("referral bonus %s credited to %s for investment %s", result.Bonus, result.ReferrerID, investmentID)
	}
	return result, nil
}

// Cascade is the best-effort entry point used after an investment approval
// commits. Failures are logged and queued for reconciliation; they are never
// returned to the caller.
func (e *Engine) Cascade(ctx context.Context, investmentID string) Result {
	result, err := e.Apply(ctx, investmentID)
	if err == nil {
		return result
	}
	e.log.WithError(err).Warnf("referral cascade for investment %s failed; queueing for reconciliation", investmentID)

	// the triggering request may already be cancelled
	qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if qerr := e.enqueue(qctx, investmentID, err); qerr != nil {
		e.log.WithError(qerr).Errorf("could not queue referral reconciliation for investment %s", investmentID)
	}
	return result
}

func (e *Engine) enqueue(ctx context.Context, investmentID string, cause error) error {
	return e.store.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.EnqueueReconciliation(ctx, reconciliation.Item{
			Kind:          reconciliation.KindReferralBonus,
			CorrelationID: investmentID,
			Attempts:      1,
			LastError:     cause.Error(),
			Status:        reconciliation.StatusOpen,
		})
		if err == nil {
			metrics.RecordReconciliation("queued")
		}
		return err
	})
}
