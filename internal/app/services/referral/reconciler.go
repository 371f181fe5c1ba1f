package referral

import (
	"context"
	"sync"
	"time"

	"github.com/israeldewcom/Real-wealth/internal/app/domain/reconciliation"
	"github.com/israeldewcom/Real-wealth/internal/app/metrics"
	"github.com/israeldewcom/Real-wealth/internal/app/storage"
	"github.com/israeldewcom/Real-wealth/internal/app/system"
	"github.com/israeldewcom/Real-wealth/pkg/logger"
)

// ReconcilerConfig tunes the retry loop.
type ReconcilerConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
}

// Reconciler retries referral bonuses whose cascade failed. Items resolve
// once Apply succeeds (including a no-op) and are abandoned after
// MaxAttempts for an operator to review.
type Reconciler struct {
	store  storage.Store
	engine *Engine
	cfg    ReconcilerConfig
	log    *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

var _ system.Service = (*Reconciler)(nil)

func NewReconciler(store storage.Store, engine *Engine, cfg ReconcilerConfig, log *logger.Logger) *Reconciler {
	if log == nil {
		log = logger.NewDefault("referral-reconciler")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	return &Reconciler{store: store, engine: engine, cfg: cfg, log: log}
}

func (r *Reconciler) Name() string { return "referral-reconciler" }

func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	r.running = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if _, err := r.RunOnce(runCtx); err != nil {
					r.log.WithError(err).Warn("referral reconciliation pass failed")
				}
			}
		}
	}()

	r.log.Info("referral reconciler started")
	return nil
}

func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// RunOnce processes one batch of open items and returns how many resolved.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	var items []reconciliation.Item
	err := r.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		items, err = tx.ListOpenReconciliations(ctx, r.cfg.BatchSize)
		return err
	})
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, item := range items {
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}
		if item.Kind != reconciliation.KindReferralBonus {
			continue
		}

		res, applyErr := r.engine.Apply(ctx, item.CorrelationID)
		item.Attempts++
		switch {
		case applyErr == nil:
			item.Status = reconciliation.StatusResolved
			item.LastError = ""
			resolved++
			r.log.Infof("reconciliation %s resolved (%s)", item.ID, res.Outcome)
		case item.Attempts >= r.cfg.MaxAttempts:
			item.Status = reconciliation.StatusAbandoned
			item.LastError = applyErr.Error()
			r.log.WithError(applyErr).Errorf("reconciliation %s abandoned after %d attempts", item.ID, item.Attempts)
		default:
			item.LastError = applyErr.Error()
			r.log.WithError(applyErr).Warnf("reconciliation %s attempt %d failed", item.ID, item.Attempts)
		}

		if err := r.save(ctx, item); err != nil {
			r.log.WithError(err).Warnf("update reconciliation %s failed", item.ID)
			continue
		}
		metrics.RecordReconciliation(string(item.Status))
	}
	return resolved, nil
}

func (r *Reconciler) save(ctx context.Context, item reconciliation.Item) error {
	return r.store.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.UpdateReconciliation(ctx, item)
		return err
	})
}
