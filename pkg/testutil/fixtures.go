// Package testutil provides fixtures shared by the workflow tests: a seeded
// in-memory store, a controllable clock and stub collaborators.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	core "github.com/israeldewcom/Real-wealth/internal/app/core/service"
	"github.com/israeldewcom/Real-wealth/internal/app/domain/plan"
	"github.com/israeldewcom/Real-wealth/internal/app/domain/user"
	"github.com/israeldewcom/Real-wealth/internal/app/storage"
	"github.com/israeldewcom/Real-wealth/internal/app/storage/memory"
)

// D parses a decimal literal and panics on malformed input.
func D(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts the clock at t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t.UTC()}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Fixture is a memory store plus seeding helpers.
type Fixture struct {
	Store *memory.Store
	Clock *Clock
}

// NewFixture returns an empty store with the clock at a fixed instant.
func NewFixture() *Fixture {
	return &Fixture{
		Store: memory.New(),
		Clock: NewClock(time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)),
	}
}

// SeedUser creates a user holding balance. referredBy may be empty.
func (f *Fixture) SeedUser(t testing.TB, balance string, referredBy string) user.User {
	t.Helper()
	var created user.User
	err := f.Store.Update(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		var err error
		created, err = tx.CreateUser(ctx, user.User{
			ID:         "user-" + uuid.NewString()[:8],
			Email:      fmt.Sprintf("%s@example.com", uuid.NewString()[:8]),
			Balance:    D(balance),
			ReferredBy: referredBy,
		})
		return err
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return created
}

// SeedPlan creates an active plan.
func (f *Fixture) SeedPlan(t testing.TB, minAmount, maxAmount, daily, total string, days int) plan.Plan {
	t.Helper()
	var created plan.Plan
	err := f.Store.Update(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		var err error
		created, err = tx.CreatePlan(ctx, plan.Plan{
			Name:          fmt.Sprintf("plan-%d-days", days),
			MinAmount:     D(minAmount),
			MaxAmount:     D(maxAmount),
			DailyInterest: D(daily),
			TotalInterest: D(total),
			DurationDays:  days,
			RiskLevel:     "medium",
			Active:        true,
		})
		return err
	})
	if err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	return created
}

// User reloads a user.
func (f *Fixture) User(t testing.TB, id string) user.User {
	t.Helper()
	var u user.User
	err := f.Store.View(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		var err error
		u, err = tx.GetUser(ctx, id)
		return err
	})
	if err != nil {
		t.Fatalf("load user %s: %v", id, err)
	}
	return u
}

// Balance returns the user's balance as a string, for terse assertions.
func (f *Fixture) Balance(t testing.TB, id string) string {
	t.Helper()
	return f.User(t, id).Balance.String()
}

// Gate authorizes every admin except the ones listed in Deny.
type Gate struct {
	mu    sync.Mutex
	Deny  map[string]bool
	Calls []string
}

// NewGate returns a gate denying the given admin ids.
func NewGate(deny ...string) *Gate {
	g := &Gate{Deny: make(map[string]bool)}
	for _, id := range deny {
		g.Deny[id] = true
	}
	return g
}

func (g *Gate) Authorize(_ context.Context, adminID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls = append(g.Calls, adminID)
	if g.Deny[adminID] {
		return fmt.Errorf("admin %s denied: %w", adminID, core.ErrForbidden)
	}
	return nil
}
