package runtime

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"

	"github.com/israeldewcom/Real-wealth/internal/app"
	"github.com/israeldewcom/Real-wealth/internal/app/auth"
	"github.com/israeldewcom/Real-wealth/internal/app/events"
	"github.com/israeldewcom/Real-wealth/internal/app/storage/postgres"
	"github.com/israeldewcom/Real-wealth/internal/config"
	"github.com/israeldewcom/Real-wealth/internal/platform/migrations"
	"github.com/israeldewcom/Real-wealth/pkg/logger"
)

// Application wires infrastructure around the ledger engine and manages the
// operations listener.
type Application struct {
	cfg        config.Config
	log        *logger.Logger
	engine     *app.Application
	httpServer *http.Server
	db         *sqlx.DB
	redis      *redis.Client
}

// NewApplication opens the configured infrastructure and builds the engine.
// Without a database DSN the in-memory store is used; without a Redis
// address notifications go to the log.
func NewApplication(ctx context.Context, cfg config.Config) (*Application, error) {
	log := logger.New(cfg.Logging)
	a := &Application{cfg: cfg, log: log}

	deps := app.Dependencies{
		Notifier: events.NewLogNotifier(log.Component("notifier")),
		Mailer:   events.NewLogMailer(log.Component("mailer")),
	}

	if cfg.Database.DSN != "" {
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		a.db = db
		if cfg.Database.MigrateOnStart {
			if err := migrations.Up(db.DB, log.Component("migrations")); err != nil {
				a.closeInfra()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		deps.Store = postgres.New(db, postgres.WithStatementTimeout(cfg.Database.StatementTimeout))
	}

	if cfg.Redis.Addr != "" {
		client, err := events.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			a.closeInfra()
			return nil, err
		}
		a.redis = client
		deps.Notifier = events.NewRedisNotifier(client, cfg.Redis.Prefix)
	}

	var resolver auth.Resolver
	if cfg.Auth.JWTSecret != "" {
		key, err := parseSigningKey(cfg.Auth.JWTSecret)
		if err != nil {
			a.closeInfra()
			return nil, fmt.Errorf("auth.jwt_secret: %w", err)
		}
		jwtResolver, err := auth.NewJWTResolver(string(key), cfg.Auth.Issuer)
		if err != nil {
			a.closeInfra()
			return nil, err
		}
		resolver = jwtResolver
	} else {
		log.Warn("AUTH_JWT_SECRET not set; admin API disabled")
	}

	engine, err := app.New(cfg, deps, log)
	if err != nil {
		a.closeInfra()
		return nil, err
	}
	a.engine = engine

	var pinger Pinger
	if a.db != nil {
		pinger = a.db
	}
	a.httpServer = &http.Server{
		Addr:              cfg.Server.MetricsAddr,
		Handler:           newRouter(engine, resolver, pinger, log.Component("ops")),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return a, nil
}

// Engine exposes the ledger services for embedding callers.
func (a *Application) Engine() *app.Application { return a.engine }

// Run starts the background services and the operations listener, then
// blocks until the context is cancelled.
func (a *Application) Run(ctx context.Context) error {
	if err := a.engine.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("operations listener on %s", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the listener, drains the background services and closes
// the connections.
func (a *Application) Shutdown(ctx context.Context) error {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var errs []error
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := a.engine.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("stop services: %w", err))
	}
	a.closeInfra()
	return errors.Join(errs...)
}

func (a *Application) closeInfra() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("error closing redis client")
		}
		a.redis = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
		a.db = nil
	}
}

const minSigningKeyLen = 32

// parseSigningKey accepts the HMAC secret as raw text, or as "base64:" or
// "hex:" prefixed encodings. The decoded key must be at least 32 bytes.
func parseSigningKey(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, errors.New("missing signing key")
	}

	var key []byte
	switch {
	case strings.HasPrefix(value, "base64:"):
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, "base64:"))
		if err != nil {
			return nil, fmt.Errorf("decode base64 key: %w", err)
		}
		key = decoded
	case strings.HasPrefix(value, "hex:"):
		decoded, err := hex.DecodeString(strings.TrimPrefix(value, "hex:"))
		if err != nil {
			return nil, fmt.Errorf("decode hex key: %w", err)
		}
		key = decoded
	default:
		key = []byte(value)
	}

	if len(key) < minSigningKeyLen {
		return nil, fmt.Errorf("signing key must be at least %d bytes, got %d", minSigningKeyLen, len(key))
	}
	return key, nil
}
