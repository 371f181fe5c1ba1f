package investments

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/israeldewcom/Real-wealth/internal/app/auth"
	core "github.com/israeldewcom/Real-wealth/internal/app/core/service"
	"github.com/israeldewcom/Real-wealth/internal/app/metrics"
	"github.com/israeldewcom/Real-wealth/internal/app/system"
	"github.com/israeldewcom/Real-wealth/pkg/logger"
)

// SweeperIdentity is the admin identity the sweeper acts as.
var SweeperIdentity = auth.Identity{UserID: "system:maturity-sweeper", Role: auth.RoleAdmin}

// MaturitySweeper completes matured investments on a cron schedule. It only
// triggers Complete; payout rules stay in the orchestrator.
type MaturitySweeper struct {
	svc   *Service
	spec  string
	batch int
	log   *logger.Logger
	now   func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

var _ system.Service = (*MaturitySweeper)(nil)

// NewMaturitySweeper schedules sweeps with a cron spec such as "@every 1m".
func NewMaturitySweeper(svc *Service, spec string, batch int, log *logger.Logger) *MaturitySweeper {
	if log == nil {
		log = logger.NewDefault("maturity-sweeper")
	}
	if spec == "" {
		spec = "@every 1m"
	}
	if batch <= 0 {
		batch = 100
	}
	return &MaturitySweeper{svc: svc, spec: spec, batch: batch, log: log, now: svc.run.Now}
}

func (m *MaturitySweeper) Name() string { return "maturity-sweeper" }

func (m *MaturitySweeper) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	runCtx := context.WithoutCancel(ctx)
	if _, err := c.AddFunc(m.spec, func() {
		if _, err := m.Sweep(runCtx); err != nil {
			m.log.WithError(err).Warn("maturity sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule maturity sweep %q: %w", m.spec, err)
	}
	c.Start()
	m.cron = c
	m.running = true
	m.log.Infof("maturity sweeper started (%s)", m.spec)
	return nil
}

func (m *MaturitySweeper) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	c := m.cron
	m.cron = nil
	m.running = false
	m.mu.Unlock()

	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep completes every investment due now, up to the batch size, and
// returns how many it completed. Individual failures are logged and skipped.
func (m *MaturitySweeper) Sweep(ctx context.Context) (int, error) {
	due, err := m.svc.Due(ctx, m.now(), m.batch)
	if err != nil {
		return 0, err
	}
	ctx = auth.WithIdentity(ctx, SweeperIdentity)
	done := 0
	for _, inv := range due {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		if _, err := m.svc.Complete(ctx, inv.ID, SweeperIdentity.UserID); err != nil {
			// another sweeper or an admin got there first
			if core.Code(err) == core.CodeAlreadyProcessed {
				metrics.RecordMaturity("skipped")
				continue
			}
			metrics.RecordMaturity("failed")
			m.log.WithError(err).Warnf("complete investment %s failed", inv.ID)
			continue
		}
		result := "completed"
		if inv.AutoRenew {
			result = "renewed"
		}
		metrics.RecordMaturity(result)
		done++
	}
	return done, nil
}
