package app

import (
	"context"
	"fmt"
	"time"

	"github.com/israeldewcom/Real-wealth/internal/app/auth"
	core "github.com/israeldewcom/Real-wealth/internal/app/core/service"
	"github.com/israeldewcom/Real-wealth/internal/app/events"
	"github.com/israeldewcom/Real-wealth/internal/app/services/deposits"
	"github.com/israeldewcom/Real-wealth/internal/app/services/investments"
	ledgersvc "github.com/israeldewcom/Real-wealth/internal/app/services/ledger"
	"github.com/israeldewcom/Real-wealth/internal/app/services/referral"
	"github.com/israeldewcom/Real-wealth/internal/app/services/withdrawals"
	"github.com/israeldewcom/Real-wealth/internal/app/services/workflow"
	"github.com/israeldewcom/Real-wealth/internal/app/storage"
	"github.com/israeldewcom/Real-wealth/internal/app/storage/memory"
	"github.com/israeldewcom/Real-wealth/internal/app/system"
	"github.com/israeldewcom/Real-wealth/internal/config"
	"github.com/israeldewcom/Real-wealth/pkg/logger"
)

// Dependencies are the collaborators supplied by the process. Nil values
// default to the in-memory store, log-only delivery, the context gate and
// the wall clock.
type Dependencies struct {
	Store    storage.Store
	Notifier events.Notifier
	Mailer   events.Mailer
	Gate     auth.Gate
	Clock    func() time.Time
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Store       storage.Store
	Ledger      *ledgersvc.Service
	Deposits    *deposits.Service
	Withdrawals *withdrawals.Service
	Investments *investments.Service
	Referrals   *referral.Engine
	Events      *events.Bus
	Reconciler  *referral.Reconciler
	Sweeper     *investments.MaturitySweeper
}

// New builds a fully initialised application.
func New(cfg config.Config, deps Dependencies, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	policy, err := cfg.Ledger.Policy()
	if err != nil {
		return nil, fmt.Errorf("ledger policy: %w", err)
	}
	if deps.Store == nil {
		log.Warn("no database configured; using the in-memory store")
		deps.Store = memory.New()
	}
	if deps.Gate == nil {
		deps.Gate = auth.ContextGate{}
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Now().UTC() }
	}

	busCfg := events.DefaultBusConfig()
	if cfg.Events.QueueSize > 0 {
		busCfg.QueueSize = cfg.Events.QueueSize
	}
	if cfg.Events.RatePerSecond > 0 {
		busCfg.RatePerSecond = cfg.Events.RatePerSecond
	}
	if cfg.Events.Burst > 0 {
		busCfg.Burst = cfg.Events.Burst
	}
	bus := events.NewBus(deps.Notifier, deps.Mailer, busCfg, log.Component("event-bus"))

	ledgerService := ledgersvc.New(deps.Store, log.Component("ledger"), ledgersvc.WithClock(deps.Clock))
	engine := referral.NewEngine(deps.Store, ledgerService, log.Component("referral"),
		referral.WithBonusRate(policy.ReferralBonusRate),
		referral.WithPublisher(bus),
	)

	workflowDeps := func(component string) workflow.Deps {
		return workflow.Deps{
			Store:     deps.Store,
			Ledger:    ledgerService,
			Publisher: bus,
			Gate:      deps.Gate,
			Policy:    policy,
			Clock:     deps.Clock,
			Log:       log.Component(component),
		}
	}
	depositService := deposits.New(workflowDeps("deposits"))
	withdrawalService := withdrawals.New(workflowDeps("withdrawals"))
	investmentService := investments.New(workflowDeps("investments"), engine)

	reconciler := referral.NewReconciler(deps.Store, engine, referral.ReconcilerConfig{
		Interval:    cfg.Scheduler.ReconcileInterval,
		BatchSize:   cfg.Scheduler.ReconcileBatch,
		MaxAttempts: cfg.Scheduler.ReconcileMaxAttempt,
	}, log.Component("referral-reconciler"))
	sweeper := investments.NewMaturitySweeper(investmentService, cfg.Scheduler.MaturitySpec,
		cfg.Scheduler.MaturityBatch, log.Component("maturity-sweeper"))

	manager := system.NewManager()
	// the bus starts first so it stops last and drains what the workers emit
	for _, svc := range []system.Service{bus, reconciler, sweeper} {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	a := &Application{
		manager:     manager,
		log:         log,
		Store:       deps.Store,
		Ledger:      ledgerService,
		Deposits:    depositService,
		Withdrawals: withdrawalService,
		Investments: investmentService,
		Referrals:   engine,
		Events:      bus,
		Reconciler:  reconciler,
		Sweeper:     sweeper,
	}
	for _, d := range a.Descriptors() {
		log.WithFields(map[string]any{
			"domain":       d.Domain,
			"layer":        d.Layer,
			"capabilities": d.Capabilities,
		}).Debugf("service %s ready", d.Name)
	}
	return a, nil
}

// Descriptors lists the placement of every domain service.
func (a *Application) Descriptors() []core.Descriptor {
	return []core.Descriptor{
		a.Ledger.Descriptor(),
		a.Deposits.Descriptor(),
		a.Withdrawals.Descriptor(),
		a.Investments.Descriptor(),
		a.Referrals.Descriptor(),
	}
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Services lists the registered background services in start order.
func (a *Application) Services() []string {
	return a.manager.Names()
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
