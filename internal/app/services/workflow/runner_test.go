package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "github.com/israeldewcom/Real-wealth/internal/app/core/service"
	"github.com/israeldewcom/Real-wealth/internal/app/events"
	"github.com/israeldewcom/Real-wealth/internal/app/storage"
	"github.com/israeldewcom/Real-wealth/internal/config"
	"github.com/israeldewcom/Real-wealth/pkg/logger"
	"github.com/israeldewcom/Real-wealth/pkg/testutil"
)

func newRunner(t *testing.T, gate *testutil.Gate) (*Runner, *testutil.Fixture, *events.Recorder) {
	t.Helper()
	fx := testutil.NewFixture()
	rec := events.NewRecorder(8)
	deps := Deps{Store: fx.Store, Publisher: rec, Clock: fx.Clock.Now, Log: logger.NewDiscard()}
	if gate != nil {
		deps.Gate = gate
	}
	return NewRunner("deposit", deps), fx, rec
}

func TestUpdatePublishesOnlyAfterCommit(t *testing.T) {
	r, fx, rec := newRunner(t, nil)
	ctx := context.Background()
	u := fx.SeedUser(t, "10", "")

	err := r.Update(ctx, "credit", func(ctx context.Context, s *Scope) error {
		assert.Equal(t, fx.Clock.Now(), s.Now)
		if _, err := s.Book.AdjustBalance(ctx, u.ID, testutil.D("5")); err != nil {
			return err
		}
		s.Emit(events.Event{Name: events.DepositApproved, Target: events.User(u.ID)})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "15", fx.Balance(t, u.ID))
	assert.Equal(t, []string{events.DepositApproved}, rec.Names())

	boom := errors.New("boom")
	err = r.Update(ctx, "credit", func(ctx context.Context, s *Scope) error {
		if _, err := s.Book.AdjustBalance(ctx, u.ID, testutil.D("5")); err != nil {
			return err
		}
		s.Emit(events.Event{Name: events.DepositApproved})
		return boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "15", fx.Balance(t, u.ID))
	assert.Empty(t, rec.Names())
}

func TestUpdateWrapsErrors(t *testing.T) {
	r, _, _ := newRunner(t, nil)
	err := r.Update(context.Background(), "approve", func(ctx context.Context, s *Scope) error {
		_, err := s.Tx.GetDeposit(ctx, "missing")
		return err
	})
	require.Error(t, err)
	assert.True(t, core.IsNotFound(err))
	assert.Contains(t, err.Error(), "deposit")
	assert.Contains(t, err.Error(), "approve")
}

func TestAuthorize(t *testing.T) {
	r, _, _ := newRunner(t, nil)
	assert.NoError(t, r.Authorize(context.Background(), "approve", "anyone"))

	gate := testutil.NewGate("mallory")
	r, _, _ = newRunner(t, gate)
	assert.NoError(t, r.Authorize(context.Background(), "approve", "admin-1"))
	err := r.Authorize(context.Background(), "approve", "mallory")
	assert.True(t, errors.Is(err, core.ErrForbidden))
	assert.Equal(t, []string{"admin-1", "mallory"}, gate.Calls)
}

func TestDefaults(t *testing.T) {
	fx := testutil.NewFixture()
	r := NewRunner("withdrawal", Deps{Store: fx.Store})
	assert.Equal(t, config.DefaultPolicy(), r.Policy())
	assert.NotNil(t, r.Log())
	assert.False(t, r.Now().IsZero())

	require.NoError(t, r.View(context.Background(), "list", func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.ListWithdrawals(ctx, "")
		return err
	}))
}

func TestAdminTargetIsRoleGroup(t *testing.T) {
	target := AdminTarget()
	assert.Equal(t, events.RoleAdmin, target.Role)
	assert.Empty(t, target.UserID)
}
