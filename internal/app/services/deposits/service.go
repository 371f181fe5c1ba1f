// Package deposits implements the deposit workflow: a user requests a
// credit, an admin approves or rejects it, and the user may cancel while it
// is still pending. Funds are credited only on approval.
package deposits

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	core "github.com/israeldewcom/Real-wealth/internal/app/core/service"
	domain "github.com/israeldewcom/Real-wealth/internal/app/domain/deposit"
	"github.com/israeldewcom/Real-wealth/internal/app/domain/ledger"
	"github.com/israeldewcom/Real-wealth/internal/app/events"
	ledgersvc "github.com/israeldewcom/Real-wealth/internal/app/services/ledger"
	"github.com/israeldewcom/Real-wealth/internal/app/services/statemachine"
	"github.com/israeldewcom/Real-wealth/internal/app/services/workflow"
	"github.com/israeldewcom/Real-wealth/internal/app/storage"
)

// Service orchestrates deposits.
type Service struct {
	run *workflow.Runner
}

// New constructs the deposit orchestrator.
func New(deps workflow.Deps) *Service {
	return &Service{run: workflow.NewRunner(string(statemachine.Deposit), deps)}
}

// Descriptor advertises the service placement.
func (s *Service) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:   "deposits",
		Domain: "deposit",
		Layer:  core.LayerWorkflow,
	}.WithCapabilities("create", "approve", "reject", "cancel")
}

// CreateRequest is a user's deposit request.
type CreateRequest struct {
	UserID        string
	Amount        decimal.Decimal
	PaymentMethod string
	Reference     string
}

// Create records a pending deposit and its pending ledger entry. The balance
// is not touched.
func (s *Service) Create(ctx context.Context, req CreateRequest) (domain.Deposit, error) {
	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	if req.UserID == "" {
		return domain.Deposit{}, core.RequiredError("user_id")
	}
	if req.PaymentMethod == "" {
		return domain.Deposit{}, core.RequiredError("payment_method")
	}
	if floor := s.run.Policy().MinDeposit; !req.Amount.IsPositive() || req.Amount.LessThan(floor) {
		return domain.Deposit{}, core.NewAmountError(fmt.Sprintf("deposit must be at least %s", floor))
	}

	var created domain.Deposit
	err := s.run.Update(ctx, "create", func(ctx context.Context, sc *workflow.Scope) error {
		if _, err := sc.Tx.GetUser(ctx, req.UserID); err != nil {
			return err
		}
		d, err := sc.Tx.CreateDeposit(ctx, domain.Deposit{
			UserID:        req.UserID,
			Amount:        req.Amount,
			PaymentMethod: req.PaymentMethod,
			Reference:     strings.TrimSpace(req.Reference),
			Status:        domain.StatusPending,
		})
		if err != nil {
			return err
		}
		entry, err := sc.Book.RecordEntry(ctx, ledgersvc.Draft{
			UserID:        req.UserID,
			Kind:          ledger.KindDeposit,
			Amount:        req.Amount,
			CorrelationID: d.ID,
			Description:   fmt.Sprintf("deposit via %s", d.PaymentMethod),
		})
		if err != nil {
			return err
		}
		d.EntryID = entry.ID
		if created, err = sc.Tx.UpdateDeposit(ctx, d); err != nil {
			return err
		}
		sc.Emit(events.Event{
			Name:   events.DepositCreated,
			Target: workflow.AdminTarget(),
			Payload: map[string]any{
				"deposit_id": created.ID,
				"user_id":    created.UserID,
				"amount":     created.Amount.String(),
				"method":     created.PaymentMethod,
			},
		})
		return nil
	})
	if err != nil {
		return domain.Deposit{}, err
	}
	return created, nil
}

// Approve credits the deposit amount and settles its entry.
func (s *Service) Approve(ctx context.Context, depositID, adminID string) (domain.Deposit, error) {
	if err := s.run.Authorize(ctx, "approve", adminID); err != nil {
		return domain.Deposit{}, err
	}
	return s.transition(ctx, "approve", depositID, domain.StatusApproved, func(ctx context.Context, sc *workflow.Scope, d *domain.Deposit) error {
		u, err := sc.Book.AdjustBalance(ctx, d.UserID, d.Amount)
		if err != nil {
			return err
		}
		if _, err := sc.Book.SettleEntry(ctx, d.EntryID, ledger.StatusCompleted); err != nil {
			return err
		}
		d.ApprovedBy = adminID
		sc.Emit(events.Event{
			Name:    events.DepositApproved,
			Target:  events.User(d.UserID),
			Payload: map[string]any{"deposit_id": d.ID, "amount": d.Amount.String(), "balance": u.Balance.String()},
			Mail:    events.MailTo(u.Email, "deposit-approved", map[string]any{"amount": d.Amount.String()}),
		})
		return nil
	})
}

// Reject fails the pending entry. The balance was never credited.
func (s *Service) Reject(ctx context.Context, depositID, adminID, reason string) (domain.Deposit, error) {
	if err := s.run.Authorize(ctx, "reject", adminID); err != nil {
		return domain.Deposit{}, err
	}
	return s.transition(ctx, "reject", depositID, domain.StatusRejected, func(ctx context.Context, sc *workflow.Scope, d *domain.Deposit) error {
		if _, err := sc.Book.SettleEntry(ctx, d.EntryID, ledger.StatusFailed); err != nil {
			return err
		}
		d.ApprovedBy = adminID
		d.RejectionReason = strings.TrimSpace(reason)
		sc.Emit(events.Event{
			Name:    events.DepositRejected,
			Target:  events.User(d.UserID),
			Payload: map[string]any{"deposit_id": d.ID, "reason": d.RejectionReason},
		})
		return nil
	})
}

// Cancel lets the owner withdraw a deposit request that is still pending.
func (s *Service) Cancel(ctx context.Context, depositID, userID string) (domain.Deposit, error) {
	return s.transition(ctx, "cancel", depositID, domain.StatusCancelled, func(ctx context.Context, sc *workflow.Scope, d *domain.Deposit) error {
		if d.UserID != userID {
			return fmt.Errorf("deposit %s does not belong to %s: %w", d.ID, userID, core.ErrForbidden)
		}
		if _, err := sc.Book.SettleEntry(ctx, d.EntryID, ledger.StatusFailed); err != nil {
			return err
		}
		sc.Emit(events.Event{
			Name:    events.DepositCancelled,
			Target:  workflow.AdminTarget(),
			Payload: map[string]any{"deposit_id": d.ID, "user_id": d.UserID},
		})
		return nil
	})
}

func (s *Service) transition(ctx context.Context, op, depositID string, to domain.Status, apply func(context.Context, *workflow.Scope, *domain.Deposit) error) (domain.Deposit, error) {
	var updated domain.Deposit
	err := s.run.Update(ctx, op, func(ctx context.Context, sc *workflow.Scope) error {
		d, err := sc.Tx.GetDeposit(ctx, depositID)
		if err != nil {
			return err
		}
		if err := statemachine.Check(statemachine.Deposit, d.ID, d.Status, to); err != nil {
			return err
		}
		if err := apply(ctx, sc, &d); err != nil {
			return err
		}
		processed := sc.Now
		d.Status = to
		d.ProcessedAt = &processed
		updated, err = sc.Tx.UpdateDeposit(ctx, d)
		return err
	})
	if err != nil {
		return domain.Deposit{}, err
	}
	s.run.Transitioned(string(to))
	return updated, nil
}

// Get returns one deposit.
func (s *Service) Get(ctx context.Context, depositID string) (domain.Deposit, error) {
	var d domain.Deposit
	err := s.run.View(ctx, "get", func(ctx context.Context, tx storage.Tx) error {
		var err error
		d, err = tx.GetDeposit(ctx, depositID)
		return err
	})
	return d, err
}

// List returns a user's deposits; an empty userID lists every deposit.
func (s *Service) List(ctx context.Context, userID string) ([]domain.Deposit, error) {
	var out []domain.Deposit
	err := s.run.View(ctx, "list", func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = tx.ListDeposits(ctx, userID)
		return err
	})
	return out, err
}
