package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "github.com/israeldewcom/Real-wealth/internal/app/core/service"
	domain "github.com/israeldewcom/Real-wealth/internal/app/domain/ledger"
	"github.com/israeldewcom/Real-wealth/internal/app/storage"
	"github.com/israeldewcom/Real-wealth/pkg/logger"
	"github.com/israeldewcom/Real-wealth/pkg/testutil"
)

func newService(t *testing.T) (*Service, *testutil.Fixture) {
	t.Helper()
	fx := testutil.NewFixture()
	return New(fx.Store, logger.NewDiscard(), WithClock(fx.Clock.Now)), fx
}

func TestRecordAndSettleEntry(t *testing.T) {
	svc, fx := newService(t)
	ctx := context.Background()
	u := fx.SeedUser(t, "0", "")

	id, err := svc.RecordEntry(ctx, u.ID, domain.KindDeposit, testutil.D("500"), "dep-1")
	require.NoError(t, err)

	entries, err := svc.Entries(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.StatusPending, entries[0].Status)
	assert.Equal(t, "dep-1", entries[0].CorrelationID)

	require.NoError(t, svc.SettleEntry(ctx, id, domain.StatusCompleted))
	err = svc.SettleEntry(ctx, id, domain.StatusFailed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrAlreadySettled))

	entries, err = svc.Entries(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, entries[0].Status)
	require.NotNil(t, entries[0].SettledAt)
}

func TestRecordEntryValidation(t *testing.T) {
	svc, fx := newService(t)
	ctx := context.Background()
	u := fx.SeedUser(t, "0", "")

	_, err := svc.RecordEntry(ctx, u.ID, domain.KindDeposit, testutil.D("0"), "x")
	assert.True(t, errors.Is(err, core.ErrInvalidAmount))

	_, err = svc.RecordEntry(ctx, u.ID, domain.Kind("bonus"), testutil.D("1"), "x")
	assert.True(t, errors.Is(err, core.ErrInvalidInput))

	_, err = svc.RecordEntry(ctx, "missing", domain.KindDeposit, testutil.D("1"), "x")
	assert.True(t, core.IsNotFound(err))

	err = svc.SettleEntry(ctx, "missing", domain.StatusCompleted)
	assert.True(t, core.IsNotFound(err))

	id, err := svc.RecordEntry(ctx, u.ID, domain.KindDeposit, testutil.D("1"), "x")
	require.NoError(t, err)
	err = svc.SettleEntry(ctx, id, domain.StatusPending)
	assert.True(t, errors.Is(err, core.ErrInvalidInput))
}

func TestAdjustBalanceRefusesNegative(t *testing.T) {
	svc, fx := newService(t)
	ctx := context.Background()
	u := fx.SeedUser(t, "100", "")

	balance, err := svc.AdjustBalance(ctx, u.ID, testutil.D("-40"))
	require.NoError(t, err)
	assert.Equal(t, "60", balance.String())

	_, err = svc.AdjustBalance(ctx, u.ID, testutil.D("-60.01"))
	require.Error(t, err)
	assert.True(t, core.IsInsufficientFunds(err))
	var ife *core.InsufficientFundsError
	require.ErrorAs(t, err, &ife)
	assert.Equal(t, "60", ife.Available)

	assert.Equal(t, "60", fx.Balance(t, u.ID))
}

func TestConcurrentAdjustmentsDoNotLoseUpdates(t *testing.T) {
	svc, fx := newService(t)
	ctx := context.Background()
	u := fx.SeedUser(t, "0", "")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Post(ctx, Draft{UserID: u.ID, Kind: domain.KindDeposit, Amount: testutil.D("10")})
		}()
	}
	wg.Wait()

	assert.Equal(t, "500", fx.Balance(t, u.ID))
	report, err := svc.Reconcile(ctx, u.ID, testutil.D("0"))
	require.NoError(t, err)
	assert.True(t, report.Balanced(), "drift %s", report.Drift)
	assert.Equal(t, 50, report.Entries)
}

func TestPostIsAtomic(t *testing.T) {
	svc, fx := newService(t)
	ctx := context.Background()
	u := fx.SeedUser(t, "100", "")

	fx.Store.InjectFault("CreateEntry", errors.New("disk full"))
	_, err := svc.Post(ctx, Draft{UserID: u.ID, Kind: domain.KindReferralBonus, Amount: testutil.D("25")})
	require.Error(t, err)
	assert.True(t, core.IsPersistence(err))

	assert.Equal(t, "100", fx.Balance(t, u.ID))
	entries, err := svc.Entries(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPostRejectsDuplicateIdempotencyKey(t *testing.T) {
	svc, fx := newService(t)
	ctx := context.Background()
	u := fx.SeedUser(t, "0", "")
	d := Draft{UserID: u.ID, Kind: domain.KindReferralBonus, Amount: testutil.D("5"), IdempotencyKey: "inv-1:referral_bonus"}

	_, err := svc.Post(ctx, d)
	require.NoError(t, err)
	_, err = svc.Post(ctx, d)
	assert.True(t, core.IsConflict(err))
	assert.Equal(t, "5", fx.Balance(t, u.ID))
}

func TestReconcileDetectsDrift(t *testing.T) {
	svc, fx := newService(t)
	ctx := context.Background()
	u := fx.SeedUser(t, "100", "")

	// a raw adjustment with no matching entry shows up as drift
	_, err := svc.AdjustBalance(ctx, u.ID, testutil.D("-30"))
	require.NoError(t, err)

	err = fx.Store.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
		_, err := svc.Book(tx).RecordEntry(ctx, Draft{UserID: u.ID, Kind: domain.KindWithdrawal, Amount: testutil.D("-20")})
		return err
	})
	require.NoError(t, err)

	report, err := svc.Reconcile(ctx, u.ID, testutil.D("100"))
	require.NoError(t, err)
	assert.False(t, report.Balanced())
	assert.Equal(t, "80", report.Expected.String())
	assert.Equal(t, "-10", report.Drift.String())
}
