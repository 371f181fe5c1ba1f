// Package withdrawals implements the withdrawal workflow. The gross amount is
// reserved from the balance when the request is created and refunded in full,
// fee included, if an admin rejects it.
package withdrawals

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	core "github.com/israeldewcom/Real-wealth/internal/app/core/service"
	"github.com/israeldewcom/Real-wealth/internal/app/domain/ledger"
	domain "github.com/israeldewcom/Real-wealth/internal/app/domain/withdrawal"
	"github.com/israeldewcom/Real-wealth/internal/app/events"
	ledgersvc "github.com/israeldewcom/Real-wealth/internal/app/services/ledger"
	"github.com/israeldewcom/Real-wealth/internal/app/services/statemachine"
	"github.com/israeldewcom/Real-wealth/internal/app/services/workflow"
	"github.com/israeldewcom/Real-wealth/internal/app/storage"
)

// Service orchestrates withdrawals.
type Service struct {
	run *workflow.Runner
}

// New constructs the withdrawal orchestrator.
func New(deps workflow.Deps) *Service {
	return &Service{run: workflow.NewRunner(string(statemachine.Withdrawal), deps)}
}

// Descriptor advertises the service placement.
func (s *Service) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:   "withdrawals",
		Domain: "withdrawal",
		Layer:  core.LayerWorkflow,
	}.WithCapabilities("create", "approve", "reject", "payout")
}

// CreateRequest is a user's withdrawal request.
type CreateRequest struct {
	UserID      string
	Amount      decimal.Decimal
	Method      domain.Method
	Destination domain.Destination
}

// Quote returns the fee and net amount the current policy would apply.
func (s *Service) Quote(amount decimal.Decimal) (fee, net decimal.Decimal) {
	return domain.Quote(amount, s.run.Policy().WithdrawalFeeRate)
}

// Create reserves the gross amount and records the pending withdrawal.
func (s *Service) Create(ctx context.Context, req CreateRequest) (domain.Withdrawal, error) {
	if req.UserID == "" {
		return domain.Withdrawal{}, core.RequiredError("user_id")
	}
	if floor := s.run.Policy().MinWithdrawal; !req.Amount.IsPositive() || req.Amount.LessThan(floor) {
		return domain.Withdrawal{}, core.NewAmountError(fmt.Sprintf("withdrawal must be at least %s", floor))
	}
	if err := req.Destination.Validate(req.Method); err != nil {
		return domain.Withdrawal{}, core.NewValidationError("destination", err.Error())
	}
	fee, net := s.Quote(req.Amount)

	var created domain.Withdrawal
	err := s.run.Update(ctx, "create", func(ctx context.Context, sc *workflow.Scope) error {
		if _, err := sc.Book.AdjustBalance(ctx, req.UserID, req.Amount.Neg()); err != nil {
			return err
		}
		w, err := sc.Tx.CreateWithdrawal(ctx, domain.Withdrawal{
			UserID:      req.UserID,
			Amount:      req.Amount,
			Fee:         fee,
			NetAmount:   net,
			Method:      req.Method,
			Destination: req.Destination,
			Status:      domain.StatusPending,
		})
		if err != nil {
			return err
		}
		entry, err := sc.Book.RecordEntry(ctx, ledgersvc.Draft{
			UserID:        req.UserID,
			Kind:          ledger.KindWithdrawal,
			Amount:        req.Amount.Neg(),
			CorrelationID: w.ID,
			Description:   fmt.Sprintf("withdrawal via %s, fee %s", w.Method, w.Fee),
		})
		if err != nil {
			return err
		}
		w.EntryID = entry.ID
		if created, err = sc.Tx.UpdateWithdrawal(ctx, w); err != nil {
			return err
		}
		sc.Emit(events.Event{
			Name:   events.WithdrawalCreated,
			Target: workflow.AdminTarget(),
			Payload: map[string]any{
				"withdrawal_id": created.ID,
				"user_id":       created.UserID,
				"amount":        created.Amount.String(),
				"net_amount":    created.NetAmount.String(),
				"method":        string(created.Method),
			},
		})
		return nil
	})
	if err != nil {
		return domain.Withdrawal{}, err
	}
	return created, nil
}

// Approve settles the reserved debit. The balance does not move again.
func (s *Service) Approve(ctx context.Context, withdrawalID, adminID string) (domain.Withdrawal, error) {
	if err := s.run.Authorize(ctx, "approve", adminID); err != nil {
		return domain.Withdrawal{}, err
	}
	return s.transition(ctx, "approve", withdrawalID, domain.StatusApproved, func(ctx context.Context, sc *workflow.Scope, w *domain.Withdrawal) error {
		if _, err := sc.Book.SettleEntry(ctx, w.EntryID, ledger.StatusCompleted); err != nil {
			return err
		}
		u, err := sc.Tx.GetUser(ctx, w.UserID)
		if err != nil {
			return err
		}
		w.ProcessedBy = adminID
		sc.Emit(events.Event{
			Name:    events.WithdrawalApproved,
			Target:  events.User(w.UserID),
			Payload: map[string]any{"withdrawal_id": w.ID, "net_amount": w.NetAmount.String()},
			Mail:    events.MailTo(u.Email, "withdrawal-approved", map[string]any{"net_amount": w.NetAmount.String()}),
		})
		return nil
	})
}

// Reject refunds the full gross amount and fails the entry.
func (s *Service) Reject(ctx context.Context, withdrawalID, adminID, reason string) (domain.Withdrawal, error) {
	if err := s.run.Authorize(ctx, "reject", adminID); err != nil {
		return domain.Withdrawal{}, err
	}
	return s.transition(ctx, "reject", withdrawalID, domain.StatusRejected, func(ctx context.Context, sc *workflow.Scope, w *domain.Withdrawal) error {
		u, err := sc.Book.AdjustBalance(ctx, w.UserID, w.Amount)
		if err != nil {
			return err
		}
		if _, err := sc.Book.SettleEntry(ctx, w.EntryID, ledger.StatusFailed); err != nil {
			return err
		}
		w.ProcessedBy = adminID
		w.RejectionReason = strings.TrimSpace(reason)
		sc.Emit(events.Event{
			Name:    events.WithdrawalRejected,
			Target:  events.User(w.UserID),
			Payload: map[string]any{"withdrawal_id": w.ID, "refunded": w.Amount.String(), "reason": w.RejectionReason},
			Mail:    events.MailTo(u.Email, "withdrawal-rejected", map[string]any{"reason": w.RejectionReason}),
		})
		return nil
	})
}

// MarkProcessing records that the payout has been handed to the payment rail.
func (s *Service) MarkProcessing(ctx context.Context, withdrawalID, adminID string) (domain.Withdrawal, error) {
	if err := s.run.Authorize(ctx, "processing", adminID); err != nil {
		return domain.Withdrawal{}, err
	}
	return s.transition(ctx, "processing", withdrawalID, domain.StatusProcessing, func(_ context.Context, sc *workflow.Scope, w *domain.Withdrawal) error {
		w.ProcessedBy = adminID
		sc.Emit(events.Event{
			Name:    events.WithdrawalProcessed,
			Target:  events.User(w.UserID),
			Payload: map[string]any{"withdrawal_id": w.ID},
		})
		return nil
	})
}

// Complete records that the payout reached the destination.
func (s *Service) Complete(ctx context.Context, withdrawalID, adminID string) (domain.Withdrawal, error) {
	if err := s.run.Authorize(ctx, "complete", adminID); err != nil {
		return domain.Withdrawal{}, err
	}
	return s.transition(ctx, "complete", withdrawalID, domain.StatusCompleted, func(_ context.Context, sc *workflow.Scope, w *domain.Withdrawal) error {
		w.ProcessedBy = adminID
		sc.Emit(events.Event{
			Name:    events.WithdrawalCompleted,
			Target:  events.User(w.UserID),
			Payload: map[string]any{"withdrawal_id": w.ID, "net_amount": w.NetAmount.String()},
		})
		return nil
	})
}

func (s *Service) transition(ctx context.Context, op, withdrawalID string, to domain.Status, apply func(context.Context, *workflow.Scope, *domain.Withdrawal) error) (domain.Withdrawal, error) {
	var updated domain.Withdrawal
	err := s.run.Update(ctx, op, func(ctx context.Context, sc *workflow.Scope) error {
		w, err := sc.Tx.GetWithdrawal(ctx, withdrawalID)
		if err != nil {
			return err
		}
		if err := statemachine.Check(statemachine.Withdrawal, w.ID, w.Status, to); err != nil {
			return err
		}
		if err := apply(ctx, sc, &w); err != nil {
			return err
		}
		processed := sc.Now
		w.Status = to
		w.ProcessedAt = &processed
		updated, err = sc.Tx.UpdateWithdrawal(ctx, w)
		return err
	})
	if err != nil {
		return domain.Withdrawal{}, err
	}
	s.run.Transitioned(string(to))
	return updated, nil
}

// Get returns one withdrawal.
func (s *Service) Get(ctx context.Context, withdrawalID string) (domain.Withdrawal, error) {
	var w domain.Withdrawal
	err := s.run.View(ctx, "get", func(ctx context.Context, tx storage.Tx) error {
		var err error
		w, err = tx.GetWithdrawal(ctx, withdrawalID)
		return err
	})
	return w, err
}

// List returns a user's withdrawals; an empty userID lists every withdrawal.
func (s *Service) List(ctx context.Context, userID string) ([]domain.Withdrawal, error) {
	var out []domain.Withdrawal
	err := s.run.View(ctx, "list", func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = tx.ListWithdrawals(ctx, userID)
		return err
	})
	return out, err
}
