package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/israeldewcom/Real-wealth/internal/app/metrics"
	"github.com/israeldewcom/Real-wealth/internal/app/system"
	"github.com/israeldewcom/Real-wealth/pkg/logger"
)

// BusConfig tunes the delivery worker.
type BusConfig struct {
	QueueSize       int
	RatePerSecond   float64
	Burst           int
	DeliveryTimeout time.Duration
}

// DefaultBusConfig returns conservative delivery settings.
func DefaultBusConfig() BusConfig {
	return BusConfig{
		QueueSize:       1024,
		RatePerSecond:   50,
		Burst:           10,
		DeliveryTimeout: 5 * time.Second,
	}
}

// Bus is the post-commit event queue. Publish enqueues without blocking;
// one worker delivers to the notifier and mailer.
type Bus struct {
	notifier Notifier
	mailer   Mailer
	cfg      BusConfig
	limiter  *rate.Limiter
	queue    chan Event
	log      *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

var (
	_ system.Service = (*Bus)(nil)
	_ Publisher      = (*Bus)(nil)
)

// NewBus builds a bus. Nil collaborators fall back to the logging ones.
func NewBus(notifier Notifier, mailer Mailer, cfg BusConfig, log *logger.Logger) *Bus {
	if log == nil {
		log = logger.NewDefault("events")
	}
	def := DefaultBusConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = def.RatePerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = def.DeliveryTimeout
	}
	if notifier == nil {
		notifier = NewLogNotifier(log)
	}
	if mailer == nil {
		mailer = NewLogMailer(log)
	}
	return &Bus{
		notifier: notifier,
		mailer:   mailer,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		queue:    make(chan Event, cfg.QueueSize),
		log:      log,
	}
}

func (b *Bus) Name() string { return "event-bus" }

// Publish enqueues events. When the queue is full the event is dropped and
// logged.
func (b *Bus) Publish(events ...Event) {
	for _, e := range events {
		select {
		case b.queue <- e:
		default:
			metrics.RecordDelivery("queue", false)
			b.log.Warnf("event queue full; dropping %s", e.Name)
		}
	}
}

// Start launches the delivery worker.
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.cancel = cancel
	b.running = true

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case e := <-b.queue:
				if err := b.limiter.Wait(runCtx); err != nil {
					b.deliver(context.Background(), e)
					return
				}
				b.deliver(runCtx, e)
			}
		}
	}()

	b.log.Info("event bus started")
	return nil
}

// Stop halts the worker and then delivers whatever is still queued until ctx
// expires.
func (b *Bus) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	cancel := b.cancel
	b.running = false
	b.cancel = nil
	b.mu.Unlock()

	cancel()
	b.wg.Wait()

	for {
		select {
		case e := <-b.queue:
			b.deliver(ctx, e)
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
}

func (b *Bus) deliver(ctx context.Context, e Event) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.cfg.DeliveryTimeout)
	defer cancel()

	err := b.notifier.Notify(dctx, e.Target, e.Name, e.Payload)
	metrics.RecordDelivery("notify", err == nil)
	if err != nil {
		b.log.WithError(err).Warnf("notify %s failed", e.Name)
	}

	if e.Mail == nil || e.Mail.Recipient == "" {
		return
	}
	err = b.mailer.Send(dctx, e.Mail.Recipient, e.Mail.TemplateID, e.Mail.Data)
	metrics.RecordDelivery("mail", err == nil)
	if err != nil && !errors.Is(err, context.Canceled) {
		b.log.WithError(err).Warnf("mail %s to %s failed", e.Mail.TemplateID, e.Mail.Recipient)
	}
}
