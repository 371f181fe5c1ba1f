// Package workflow holds what the deposit, withdrawal and investment
// orchestrators share: the collaborators they depend on and the atomic scope
// that times each operation, maps its error code and publishes its events
// only after commit.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/israeldewcom/Real-wealth/internal/app/auth"
	core "github.com/israeldewcom/Real-wealth/internal/app/core/service"
	"github.com/israeldewcom/Real-wealth/internal/app/events"
	"github.com/israeldewcom/Real-wealth/internal/app/metrics"
	"github.com/israeldewcom/Real-wealth/internal/app/services/ledger"
	"github.com/israeldewcom/Real-wealth/internal/app/storage"
	"github.com/israeldewcom/Real-wealth/internal/config"
	"github.com/israeldewcom/Real-wealth/pkg/logger"
)

// Deps are the collaborators of an orchestrator. Store is required; the rest
// have defaults.
type Deps struct {
	Store     storage.Store
	Ledger    *ledger.Service
	Publisher events.Publisher
	Gate      auth.Gate
	Policy    config.Policy
	Clock     func() time.Time
	Log       *logger.Logger
}

// Scope is what an operation sees inside its atomic scope.
type Scope struct {
	Tx     storage.Tx
	Book   *ledger.Book
	Events *events.Batch
	Now    time.Time
}

// Emit queues an event for delivery after commit.
func (s *Scope) Emit(e events.Event) {
	s.Events.Add(e)
}

// Runner executes orchestrator operations for one entity.
type Runner struct {
	entity string
	deps   Deps
	log    *logger.Logger
}

// NewRunner fills in defaults and returns a runner for entity.
func NewRunner(entity string, deps Deps) *Runner {
	if deps.Log == nil {
		deps.Log = logger.NewDefault(entity)
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Now().UTC() }
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Discard{}
	}
	if deps.Ledger == nil {
		deps.Ledger = ledger.New(deps.Store, deps.Log, ledger.WithClock(deps.Clock))
	}
	if deps.Policy == (config.Policy{}) {
		deps.Policy = config.DefaultPolicy()
	}
	return &Runner{entity: entity, deps: deps, log: deps.Log}
}

// Policy returns the money policy in force.
func (r *Runner) Policy() config.Policy { return r.deps.Policy }

// Log returns the runner's logger.
func (r *Runner) Log() *logger.Logger { return r.log }

// Now reads the clock.
func (r *Runner) Now() time.Time { return r.deps.Clock() }

// Authorize consults the admin gate when one is configured.
func (r *Runner) Authorize(ctx context.Context, op, adminID string) error {
	if r.deps.Gate == nil {
		return nil
	}
	err := r.deps.Gate.Authorize(ctx, adminID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, core.ErrForbidden) {
		err = fmt.Errorf("%w: %w", core.ErrForbidden, err)
	}
	metrics.RecordScope(r.entity, op, 0, core.Code(err))
	return core.WrapServiceError(r.entity, op, err)
}

// Update runs fn in one atomic scope. Events emitted by fn are published only
// when the scope commits.
func (r *Runner) Update(ctx context.Context, op string, fn func(ctx context.Context, s *Scope) error) error {
	start := time.Now()
	var batch events.Batch
	err := r.deps.Store.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
		batch = nil
		return fn(ctx, &Scope{
			Tx:     tx,
			Book:   r.deps.Ledger.Book(tx),
			Events: &batch,
			Now:    r.deps.Clock(),
		})
	})
	metrics.RecordScope(r.entity, op, time.Since(start), core.Code(err))
	if err != nil {
		if core.IsPersistence(err) {
			r.log.WithError(err).Warnf("%s %s rolled back", r.entity, op)
		}
		return core.WrapServiceError(r.entity, op, err)
	}
	batch.Flush(r.deps.Publisher)
	return nil
}

// View runs fn in a read-only scope.
func (r *Runner) View(ctx context.Context, op string, fn func(ctx context.Context, tx storage.Tx) error) error {
	err := r.deps.Store.View(ctx, fn)
	return core.WrapServiceError(r.entity, op, err)
}

// Transitioned records a committed status change.
func (r *Runner) Transitioned(to string) {
	metrics.RecordTransition(r.entity, to)
}

// AdminTarget addresses the admin role group.
func AdminTarget() events.Target { return events.Role(events.RoleAdmin) }
