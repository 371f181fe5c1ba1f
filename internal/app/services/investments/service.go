// Package investments implements the investment lifecycle: principal is
// reserved on creation, an admin activates or rejects the request, and a
// matured investment either pays its returns or rolls its capital into a
// renewed investment.
package investments

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	core "github.com/israeldewcom/Real-wealth/internal/app/core/service"
	domain "github.com/israeldewcom/Real-wealth/internal/app/domain/investment"
	"github.com/israeldewcom/Real-wealth/internal/app/domain/ledger"
	"github.com/israeldewcom/Real-wealth/internal/app/domain/plan"
	"github.com/israeldewcom/Real-wealth/internal/app/domain/user"
	"github.com/israeldewcom/Real-wealth/internal/app/events"
	ledgersvc "github.com/israeldewcom/Real-wealth/internal/app/services/ledger"
	"github.com/israeldewcom/Real-wealth/internal/app/services/referral"
	"github.com/israeldewcom/Real-wealth/internal/app/services/returns"
	"github.com/israeldewcom/Real-wealth/internal/app/services/statemachine"
	"github.com/israeldewcom/Real-wealth/internal/app/services/workflow"
	"github.com/israeldewcom/Real-wealth/internal/app/storage"
)

// Referrals applies the referral bonus after an activation commits.
type Referrals interface {
	Cascade(ctx context.Context, investmentID string) referral.Result
}

// Service orchestrates investments.
type Service struct {
	run       *workflow.Runner
	referrals Referrals
}

// New constructs the investment orchestrator. referrals may be nil.
func New(deps workflow.Deps, referrals Referrals) *Service {
	return &Service{
		run:       workflow.NewRunner(string(statemachine.Investment), deps),
		referrals: referrals,
	}
}

// Descriptor advertises the service placement.
func (s *Service) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:   "investments",
		Domain: "investment",
		Layer:  core.LayerWorkflow,
	}.WithCapabilities("create", "approve", "reject", "complete", "cancel", "renew")
}

// CreateRequest is a user's investment request.
type CreateRequest struct {
	UserID    string
	PlanID    string
	Amount    decimal.Decimal
	AutoRenew bool
}

// Create reserves the principal and records a pending investment whose
// returns are fixed from the plan rates.
func (s *Service) Create(ctx context.Context, req CreateRequest) (domain.Investment, error) {
	if req.UserID == "" {
		return domain.Investment{}, core.RequiredError("user_id")
	}
	if req.PlanID == "" {
		return domain.Investment{}, core.RequiredError("plan_id")
	}

	var created domain.Investment
	err := s.run.Update(ctx, "create", func(ctx context.Context, sc *workflow.Scope) error {
		p, err := sc.Tx.GetPlan(ctx, req.PlanID)
		if err != nil {
			return err
		}
		if !p.Active {
			return core.NewValidationError("plan_id", fmt.Sprintf("plan %s is not accepting investments", p.ID))
		}
		projection, err := returns.Project(p, req.Amount, sc.Now)
		if err != nil {
			return err
		}

		if _, err := sc.Book.Adjust(ctx, req.UserID, req.Amount.Neg(), func(u *user.User) {
			u.TotalInvested = u.TotalInvested.Add(req.Amount)
		}); err != nil {
			return err
		}
		inv, err := sc.Tx.CreateInvestment(ctx, domain.Investment{
			UserID:        req.UserID,
			PlanID:        p.ID,
			Amount:        req.Amount,
			DailyEarnings: projection.DailyEarnings,
			TotalReturns:  projection.TotalReturns,
			Status:        domain.StatusPending,
			AutoRenew:     req.AutoRenew,
		})
		if err != nil {
			return err
		}
		entry, err := sc.Book.RecordEntry(ctx, ledgersvc.Draft{
			UserID:        req.UserID,
			Kind:          ledger.KindInvestment,
			Amount:        req.Amount.Neg(),
			CorrelationID: inv.ID,
			Description:   fmt.Sprintf("investment in plan %s", p.Name),
		})
		if err != nil {
			return err
		}
		inv.EntryID = entry.ID
		if created, err = sc.Tx.UpdateInvestment(ctx, inv); err != nil {
			return err
		}
		sc.Emit(events.Event{
			Name:   events.InvestmentCreated,
			Target: workflow.AdminTarget(),
			Payload: map[string]any{
				"investment_id": created.ID,
				"user_id":       created.UserID,
				"plan_id":       created.PlanID,
				"amount":        created.Amount.String(),
			},
		})
		return nil
	})
	if err != nil {
		return domain.Investment{}, err
	}
	return created, nil
}

// Approve activates the investment and, after commit, applies the referral
// bonus. A failing bonus never undoes the activation.
func (s *Service) Approve(ctx context.Context, investmentID, adminID string) (domain.Investment, error) {
	if err := s.run.Authorize(ctx, "approve", adminID); err != nil {
		return domain.Investment{}, err
	}
	inv, err := s.transition(ctx, "approve", investmentID, domain.StatusActive, func(ctx context.Context, sc *workflow.Scope, inv *domain.Investment) error {
		p, err := sc.Tx.GetPlan(ctx, inv.PlanID)
		if err != nil {
			return err
		}
		if _, err := sc.Book.SettleEntry(ctx, inv.EntryID, ledger.StatusCompleted); err != nil {
			return err
		}
		u, err := sc.Tx.GetUser(ctx, inv.UserID)
		if err != nil {
			return err
		}
		start := sc.Now
		end := returns.Maturity(start, p.DurationDays)
		inv.StartDate = &start
		inv.EndDate = &end
		inv.ApprovedBy = adminID
		sc.Emit(events.Event{
			Name:    events.InvestmentApproved,
			Target:  events.User(inv.UserID),
			Payload: map[string]any{"investment_id": inv.ID, "end_date": end.Format(time.RFC3339)},
			Mail:    events.MailTo(u.Email, "investment-approved", map[string]any{"plan": p.Name, "amount": inv.Amount.String()}),
		})
		return nil
	})
	if err != nil {
		return domain.Investment{}, err
	}
	if s.referrals != nil {
		s.referrals.Cascade(ctx, inv.ID)
	}
	return inv, nil
}

// Reject refunds the principal and reverses the invested total.
func (s *Service) Reject(ctx context.Context, investmentID, adminID string) (domain.Investment, error) {
	if err := s.run.Authorize(ctx, "reject", adminID); err != nil {
		return domain.Investment{}, err
	}
	return s.transition(ctx, "reject", investmentID, domain.StatusRejected, func(ctx context.Context, sc *workflow.Scope, inv *domain.Investment) error {
		amount := inv.Amount
		if _, err := sc.Book.Adjust(ctx, inv.UserID, amount, func(u *user.User) {
			u.TotalInvested = u.TotalInvested.Sub(amount)
		}); err != nil {
			return err
		}
		if _, err := sc.Book.SettleEntry(ctx, inv.EntryID, ledger.StatusFailed); err != nil {
			return err
		}
		inv.ApprovedBy = adminID
		sc.Emit(events.Event{
			Name:    events.InvestmentRejected,
			Target:  events.User(inv.UserID),
			Payload: map[string]any{"investment_id": inv.ID, "refunded": amount.String()},
		})
		return nil
	})
}

// Complete settles a matured investment. Without auto-renew the gross
// returns are credited; with auto-renew the capital rolls into a new active
// investment and nothing is credited.
func (s *Service) Complete(ctx context.Context, investmentID, adminID string) (domain.Investment, error) {
	if err := s.run.Authorize(ctx, "complete", adminID); err != nil {
		return domain.Investment{}, err
	}
	var renewed *domain.Investment
	inv, err := s.transition(ctx, "complete", investmentID, domain.StatusCompleted, func(ctx context.Context, sc *workflow.Scope, inv *domain.Investment) error {
		renewed = nil
		if !inv.Matured(sc.Now) {
			return core.NewValidationError("end_date", fmt.Sprintf("investment %s has not matured", inv.ID))
		}
		completed := sc.Now
		inv.CompletedAt = &completed

		if inv.AutoRenew {
			next, err := s.renew(ctx, sc, *inv)
			if err != nil {
				return err
			}
			renewed = &next
			return nil
		}

		credit := inv.TotalReturns
		_, u, err := sc.Book.Post(ctx, ledgersvc.Draft{
			UserID:         inv.UserID,
			Kind:           ledger.KindInvestmentEarnings,
			Amount:         credit,
			CorrelationID:  inv.ID,
			IdempotencyKey: ledger.IdempotencyKey(inv.ID, ledger.KindInvestmentEarnings),
			Description:    "investment returns",
		}, func(u *user.User) {
			u.TotalEarnings = u.TotalEarnings.Add(credit)
		})
		if err != nil {
			return err
		}
		sc.Emit(events.Event{
			Name:    events.InvestmentCompleted,
			Target:  events.User(inv.UserID),
			Payload: map[string]any{"investment_id": inv.ID, "credited": credit.String()},
			Mail:    events.MailTo(u.Email, "investment-completed", map[string]any{"credited": credit.String()}),
		})
		return nil
	})
	if err != nil {
		return domain.Investment{}, err
	}
	if renewed != nil {
		s.run.Transitioned(string(domain.StatusActive))
		s.run.Log().Infof("investment %s renewed as %s", inv.ID, renewed.ID)
	}
	return inv, nil
}

func (s *Service) renew(ctx context.Context, sc *workflow.Scope, prev domain.Investment) (domain.Investment, error) {
	p, err := sc.Tx.GetPlan(ctx, prev.PlanID)
	if err != nil {
		return domain.Investment{}, err
	}
	start := sc.Now
	end := returns.Maturity(start, p.DurationDays)
	next, err := sc.Tx.CreateInvestment(ctx, domain.Investment{
		UserID:        prev.UserID,
		PlanID:        prev.PlanID,
		Amount:        prev.Amount,
		DailyEarnings: prev.DailyEarnings,
		TotalReturns:  prev.TotalReturns,
		Status:        domain.StatusActive,
		AutoRenew:     true,
		ApprovedBy:    prev.ApprovedBy,
		RenewedFrom:   prev.ID,
		StartDate:     &start,
		EndDate:       &end,
	})
	if err != nil {
		return domain.Investment{}, err
	}
	sc.Emit(events.Event{
		Name:   events.InvestmentRenewed,
		Target: events.User(prev.UserID),
		Payload: map[string]any{
			"investment_id": next.ID,
			"renewed_from":  prev.ID,
			"end_date":      end.Format(time.RFC3339),
		},
	})
	return next, nil
}

// Cancel stops an active investment early: the principal is refunded with a
// completed credit entry and the invested total is reversed.
func (s *Service) Cancel(ctx context.Context, investmentID, adminID string) (domain.Investment, error) {
	if err := s.run.Authorize(ctx, "cancel", adminID); err != nil {
		return domain.Investment{}, err
	}
	return s.transition(ctx, "cancel", investmentID, domain.StatusCancelled, func(ctx context.Context, sc *workflow.Scope, inv *domain.Investment) error {
		amount := inv.Amount
		_, u, err := sc.Book.Post(ctx, ledgersvc.Draft{
			UserID:         inv.UserID,
			Kind:           ledger.KindInvestment,
			Amount:         amount,
			CorrelationID:  inv.ID,
			IdempotencyKey: ledger.IdempotencyKey(inv.ID, ledger.KindInvestment),
			Description:    "investment cancelled, principal refunded",
		}, func(u *user.User) {
			u.TotalInvested = u.TotalInvested.Sub(amount)
		})
		if err != nil {
			return err
		}
		completed := sc.Now
		inv.CompletedAt = &completed
		sc.Emit(events.Event{
			Name:    events.InvestmentCancelled,
			Target:  events.User(inv.UserID),
			Payload: map[string]any{"investment_id": inv.ID, "refunded": amount.String()},
			Mail:    events.MailTo(u.Email, "investment-cancelled", map[string]any{"refunded": amount.String()}),
		})
		return nil
	})
}

func (s *Service) transition(ctx context.Context, op, investmentID string, to domain.Status, apply func(context.Context, *workflow.Scope, *domain.Investment) error) (domain.Investment, error) {
	var updated domain.Investment
	err := s.run.Update(ctx, op, func(ctx context.Context, sc *workflow.Scope) error {
		inv, err := sc.Tx.GetInvestment(ctx, investmentID)
		if err != nil {
			return err
		}
		if err := statemachine.Check(statemachine.Investment, inv.ID, inv.Status, to); err != nil {
			return err
		}
		if err := apply(ctx, sc, &inv); err != nil {
			return err
		}
		inv.Status = to
		updated, err = sc.Tx.UpdateInvestment(ctx, inv)
		return err
	})
	if err != nil {
		return domain.Investment{}, err
	}
	s.run.Transitioned(string(to))
	return updated, nil
}

// Get returns one investment.
func (s *Service) Get(ctx context.Context, investmentID string) (domain.Investment, error) {
	var inv domain.Investment
	err := s.run.View(ctx, "get", func(ctx context.Context, tx storage.Tx) error {
		var err error
		inv, err = tx.GetInvestment(ctx, investmentID)
		return err
	})
	return inv, err
}

// List returns a user's investments; an empty userID lists every investment.
func (s *Service) List(ctx context.Context, userID string) ([]domain.Investment, error) {
	var out []domain.Investment
	err := s.run.View(ctx, "list", func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = tx.ListInvestments(ctx, userID)
		return err
	})
	return out, err
}

// Due lists active investments whose end date is at or before asOf, oldest
// maturity first.
func (s *Service) Due(ctx context.Context, asOf time.Time, limit int) ([]domain.Investment, error) {
	var out []domain.Investment
	err := s.run.View(ctx, "due", func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = tx.ListMatured(ctx, asOf, limit)
		return err
	})
	return out, err
}

// Accrued reports the earnings an investment has accrued by asOf.
func (s *Service) Accrued(ctx context.Context, investmentID string, asOf time.Time) (decimal.Decimal, error) {
	inv, err := s.Get(ctx, investmentID)
	if err != nil {
		return decimal.Zero, err
	}
	return returns.Accrued(inv, asOf), nil
}

// Project previews the returns of investing amount in a plan today.
func (s *Service) Project(ctx context.Context, planID string, amount decimal.Decimal) (returns.Projection, error) {
	var projection returns.Projection
	err := s.run.View(ctx, "project", func(ctx context.Context, tx storage.Tx) error {
		p, err := tx.GetPlan(ctx, planID)
		if err != nil {
			return err
		}
		projection, err = returns.Project(p, amount, s.run.Now())
		return err
	})
	return projection, err
}

// CreatePlan stores new plan reference data.
func (s *Service) CreatePlan(ctx context.Context, p plan.Plan) (plan.Plan, error) {
	if p.Name == "" {
		return plan.Plan{}, core.RequiredError("name")
	}
	if p.DurationDays <= 0 {
		return plan.Plan{}, core.NewValidationError("duration_days", "must be positive")
	}
	if !p.MinAmount.IsPositive() || !p.MinAmount.LessThan(p.MaxAmount) {
		return plan.Plan{}, core.NewAmountError("plan bounds require 0 < min_amount < max_amount")
	}
	if p.DailyInterest.IsNegative() || p.TotalInterest.IsNegative() {
		return plan.Plan{}, core.NewValidationError("interest", "rates must not be negative")
	}
	var created plan.Plan
	err := s.run.Update(ctx, "create_plan", func(ctx context.Context, sc *workflow.Scope) error {
		var err error
		created, err = sc.Tx.CreatePlan(ctx, p)
		return err
	})
	return created, err
}

// Plans lists every plan.
func (s *Service) Plans(ctx context.Context) ([]plan.Plan, error) {
	var out []plan.Plan
	err := s.run.View(ctx, "plans", func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = tx.ListPlans(ctx)
		return err
	})
	return out, err
}

// PlanTotals returns the plan aggregates derived from its investments.
func (s *Service) PlanTotals(ctx context.Context, planID string) (plan.Totals, error) {
	var totals plan.Totals
	err := s.run.View(ctx, "plan_totals", func(ctx context.Context, tx storage.Tx) error {
		if _, err := tx.GetPlan(ctx, planID); err != nil {
			return err
		}
		var err error
		totals, err = tx.PlanTotals(ctx, planID)
		return err
	})
	return totals, err
}
