package investments

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "github.com/israeldewcom/Real-wealth/internal/app/core/service"
	domain "github.com/israeldewcom/Real-wealth/internal/app/domain/investment"
	"github.com/israeldewcom/Real-wealth/internal/app/domain/ledger"
	"github.com/israeldewcom/Real-wealth/internal/app/domain/plan"
	"github.com/israeldewcom/Real-wealth/internal/app/events"
	ledgersvc "github.com/israeldewcom/Real-wealth/internal/app/services/ledger"
	"github.com/israeldewcom/Real-wealth/internal/app/services/referral"
	"github.com/israeldewcom/Real-wealth/internal/app/services/returns"
	"github.com/israeldewcom/Real-wealth/internal/app/services/workflow"
	"github.com/israeldewcom/Real-wealth/internal/config"
	"github.com/israeldewcom/Real-wealth/pkg/logger"
	"github.com/israeldewcom/Real-wealth/pkg/testutil"
)

type harness struct {
	fx       *testutil.Fixture
	svc      *Service
	ledger   *ledgersvc.Service
	referral *referral.Engine
	events   *events.Recorder
	plan     plan.Plan
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fx := testutil.NewFixture()
	rec := events.NewRecorder(128)
	log := logger.NewDiscard()
	book := ledgersvc.New(fx.Store, log, ledgersvc.WithClock(fx.Clock.Now))
	engine := referral.NewEngine(fx.Store, book, log, referral.WithPublisher(rec))
	svc := New(workflow.Deps{
		Store:     fx.Store,
		Ledger:    book,
		Publisher: rec,
		Gate:      testutil.NewGate("intruder"),
		Policy:    config.DefaultPolicy(),
		Clock:     fx.Clock.Now,
		Log:       log,
	}, engine)
	return &harness{
		fx:       fx,
		svc:      svc,
		ledger:   book,
		referral: engine,
		events:   rec,
		plan:     fx.SeedPlan(t, "1000", "50000", "2", "120", 10),
	}
}

func (h *harness) invest(t *testing.T, userID, amount string, autoRenew bool) domain.Investment {
	t.Helper()
	inv, err := h.svc.Create(context.Background(), CreateRequest{
		UserID:    userID,
		PlanID:    h.plan.ID,
		Amount:    testutil.D(amount),
		AutoRenew: autoRenew,
	})
	require.NoError(t, err)
	return inv
}

func (h *harness) entries(t *testing.T, userID string) []ledger.Entry {
	t.Helper()
	list, err := h.ledger.Entries(context.Background(), userID)
	require.NoError(t, err)
	return list
}

func TestCreateFixesReturnsAndReservesPrincipal(t *testing.T) {
	h := newHarness(t)
	u := h.fx.SeedUser(t, "15000", "")

	inv := h.invest(t, u.ID, "10000", false)
	assert.Equal(t, domain.StatusPending, inv.Status)
	assert.Equal(t, "200", inv.DailyEarnings.String())
	assert.Equal(t, "12000", inv.TotalReturns.String())
	assert.Nil(t, inv.StartDate)

	got := h.fx.User(t, u.ID)
	assert.Equal(t, "5000", got.Balance.String())
	assert.Equal(t, "10000", got.TotalInvested.String())

	list := h.entries(t, u.ID)
	require.Len(t, list, 1)
	assert.Equal(t, ledger.KindInvestment, list[0].Kind)
	assert.Equal(t, "-10000", list[0].Amount.String())
	assert.Equal(t, ledger.StatusPending, list[0].Status)
}

func TestCreateOutsidePlanBounds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.fx.SeedUser(t, "100000", "")

	for _, amount := range []string{"999", "50001"} {
		_, err := h.svc.Create(ctx, CreateRequest{UserID: u.ID, PlanID: h.plan.ID, Amount: testutil.D(amount)})
		assert.True(t, errors.Is(err, core.ErrInvalidAmount), amount)
	}
	_, err := h.svc.Create(ctx, CreateRequest{UserID: u.ID, PlanID: "missing", Amount: testutil.D("5000")})
	assert.True(t, core.IsNotFound(err))

	poor := h.fx.SeedUser(t, "500", "")
	_, err = h.svc.Create(ctx, CreateRequest{UserID: poor.ID, PlanID: h.plan.ID, Amount: testutil.D("1000")})
	assert.True(t, core.IsInsufficientFunds(err))

	assert.Equal(t, "100000", h.fx.Balance(t, u.ID))
	assert.Empty(t, h.entries(t, u.ID))
	assert.Equal(t, "500", h.fx.Balance(t, poor.ID))
}

func TestApproveStartsClockAndPaysReferrer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	referrer := h.fx.SeedUser(t, "0", "")
	u := h.fx.SeedUser(t, "10000", referrer.ID)

	inv := h.invest(t, u.ID, "10000", false)
	h.events.Drain()

	approved, err := h.svc.Approve(ctx, inv.ID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, approved.Status)
	require.NotNil(t, approved.StartDate)
	require.NotNil(t, approved.EndDate)
	assert.Equal(t, h.fx.Clock.Now().AddDate(0, 0, 10), *approved.EndDate)
	assert.Equal(t, ledger.StatusCompleted, h.entries(t, u.ID)[0].Status)

	r := h.fx.User(t, referrer.ID)
	assert.Equal(t, "2000", r.Balance.String())
	assert.Equal(t, "2000", r.ReferralEarnings.String())
	assert.Equal(t, []string{events.InvestmentApproved, events.ReferralBonusPaid}, h.events.Names())

	// the bonus is keyed by investment, so a repeat never pays twice
	res, err := h.referral.Apply(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, referral.OutcomeDuplicate, res.Outcome)

	_, err = h.svc.Approve(ctx, inv.ID, "admin-1")
	assert.True(t, errors.Is(err, core.ErrAlreadyProcessed))
	assert.Equal(t, "2000", h.fx.Balance(t, referrer.ID))
}

func TestReferralFailureDoesNotUndoApproval(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	referrer := h.fx.SeedUser(t, "0", "")
	u := h.fx.SeedUser(t, "5000", referrer.ID)
	inv := h.invest(t, u.ID, "5000", false)

	h.fx.Store.InjectFault("CreateEntry", errors.New("connection reset"))
	approved, err := h.svc.Approve(ctx, inv.ID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, approved.Status)
	assert.Equal(t, "0", h.fx.Balance(t, referrer.ID))

	rec := referral.NewReconciler(h.fx.Store, h.referral, referral.ReconcilerConfig{MaxAttempts: 3}, logger.NewDiscard())
	resolved, err := rec.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)
	assert.Equal(t, "1000", h.fx.Balance(t, referrer.ID))

	resolved, err = rec.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, resolved)
}

func TestRejectRefundsPrincipal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.fx.SeedUser(t, "8000", "")
	inv := h.invest(t, u.ID, "8000", false)

	_, err := h.svc.Reject(ctx, inv.ID, "intruder")
	assert.True(t, errors.Is(err, core.ErrForbidden))

	rejected, err := h.svc.Reject(ctx, inv.ID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, rejected.Status)

	got := h.fx.User(t, u.ID)
	assert.Equal(t, "8000", got.Balance.String())
	assert.True(t, got.TotalInvested.IsZero())
	assert.Equal(t, ledger.StatusFailed, h.entries(t, u.ID)[0].Status)

	_, err = h.svc.Approve(ctx, inv.ID, "admin-1")
	assert.True(t, errors.Is(err, core.ErrAlreadyProcessed))
	assert.False(t, core.IsInvalidTransition(err))
	assert.Equal(t, "8000", h.fx.Balance(t, u.ID))
}

func TestCompleteCreditsGrossReturnsAtMaturity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.fx.SeedUser(t, "10000", "")
	inv := h.invest(t, u.ID, "10000", false)
	_, err := h.svc.Approve(ctx, inv.ID, "admin-1")
	require.NoError(t, err)

	h.fx.Clock.Advance(5 * returns.Day)
	_, err = h.svc.Complete(ctx, inv.ID, "admin-1")
	assert.True(t, errors.Is(err, core.ErrInvalidInput))

	accrued, err := h.svc.Accrued(ctx, inv.ID, h.fx.Clock.Now())
	require.NoError(t, err)
	assert.Equal(t, "1000", accrued.String())

	h.fx.Clock.Advance(5 * returns.Day)
	completed, err := h.svc.Complete(ctx, inv.ID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)

	got := h.fx.User(t, u.ID)
	assert.Equal(t, "12000", got.Balance.String())
	assert.Equal(t, "12000", got.TotalEarnings.String())

	_, err = h.svc.Complete(ctx, inv.ID, "admin-1")
	assert.True(t, errors.Is(err, core.ErrAlreadyProcessed))
	assert.Equal(t, "12000", h.fx.Balance(t, u.ID))

	report, err := h.ledger.Reconcile(ctx, u.ID, testutil.D("10000"))
	require.NoError(t, err)
	assert.True(t, report.Balanced(), "drift %s", report.Drift)
}

func TestCompleteWithAutoRenewRollsCapital(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.fx.SeedUser(t, "2000", "")
	inv := h.invest(t, u.ID, "2000", true)
	_, err := h.svc.Approve(ctx, inv.ID, "admin-1")
	require.NoError(t, err)
	h.events.Drain()

	h.fx.Clock.Advance(10 * returns.Day)
	completed, err := h.svc.Complete(ctx, inv.ID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, completed.Status)
	assert.Equal(t, "0", h.fx.Balance(t, u.ID))
	assert.Equal(t, []string{events.InvestmentRenewed}, h.events.Names())

	all, err := h.svc.List(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	var next domain.Investment
	for _, candidate := range all {
		if candidate.ID != inv.ID {
			next = candidate
		}
	}
	assert.Equal(t, domain.StatusActive, next.Status)
	assert.Equal(t, inv.ID, next.RenewedFrom)
	assert.True(t, next.AutoRenew)
	assert.Equal(t, "2400", next.TotalReturns.String())
	assert.Equal(t, h.fx.Clock.Now().AddDate(0, 0, 10), *next.EndDate)

	totals, err := h.svc.PlanTotals(ctx, h.plan.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, totals.InvestmentCount)
	assert.Equal(t, "2000", totals.TotalInvested.String())
}

func TestCancelRefundsActiveInvestment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.fx.SeedUser(t, "3000", "")
	inv := h.invest(t, u.ID, "3000", false)

	_, err := h.svc.Cancel(ctx, inv.ID, "admin-1")
	assert.True(t, core.IsInvalidTransition(err))

	_, err = h.svc.Approve(ctx, inv.ID, "admin-1")
	require.NoError(t, err)
	cancelled, err := h.svc.Cancel(ctx, inv.ID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)

	got := h.fx.User(t, u.ID)
	assert.Equal(t, "3000", got.Balance.String())
	assert.True(t, got.TotalInvested.IsZero())

	report, err := h.ledger.Reconcile(ctx, u.ID, testutil.D("3000"))
	require.NoError(t, err)
	assert.True(t, report.Balanced())
}

func TestProjectAndPlans(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	projection, err := h.svc.Project(ctx, h.plan.ID, testutil.D("10000"))
	require.NoError(t, err)
	assert.Equal(t, "2000", projection.Profit.String())

	_, err = h.svc.CreatePlan(ctx, plan.Plan{Name: "broken", DurationDays: 5, MinAmount: testutil.D("10"), MaxAmount: testutil.D("5")})
	assert.True(t, errors.Is(err, core.ErrInvalidAmount))

	_, err = h.svc.CreatePlan(ctx, plan.Plan{Name: "silver", DurationDays: 30, MinAmount: testutil.D("100"), MaxAmount: testutil.D("1000"), DailyInterest: testutil.D("1"), TotalInterest: testutil.D("130"), Active: true})
	require.NoError(t, err)
	plans, err := h.svc.Plans(ctx)
	require.NoError(t, err)
	assert.Len(t, plans, 2)
}

func TestSweeperCompletesDueInvestments(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.fx.SeedUser(t, "1000", "")
	b := h.fx.SeedUser(t, "5000", "")

	first := h.invest(t, a.ID, "1000", false)
	second := h.invest(t, b.ID, "5000", true)
	for _, id := range []string{first.ID, second.ID} {
		_, err := h.svc.Approve(ctx, id, "admin-1")
		require.NoError(t, err)
	}

	sweeper := NewMaturitySweeper(h.svc, "@every 1h", 10, logger.NewDiscard())
	done, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, done)

	h.fx.Clock.Advance(10 * returns.Day)
	done, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, done)
	assert.Equal(t, "1200", h.fx.Balance(t, a.ID))
	assert.Equal(t, "0", h.fx.Balance(t, b.ID))

	// the renewal matures ten days later, not now
	done, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, done)
}

func TestSweeperLifecycle(t *testing.T) {
	h := newHarness(t)
	sweeper := NewMaturitySweeper(h.svc, "not a schedule", 10, logger.NewDiscard())
	assert.Error(t, sweeper.Start(context.Background()))

	sweeper = NewMaturitySweeper(h.svc, "", 0, logger.NewDiscard())
	require.NoError(t, sweeper.Start(context.Background()))
	require.NoError(t, sweeper.Start(context.Background()))
	require.NoError(t, sweeper.Stop(context.Background()))
	require.NoError(t, sweeper.Stop(context.Background()))
}
