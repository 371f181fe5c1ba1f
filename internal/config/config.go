// Package config loads the ledger engine configuration. Values come from
// Default(), then an optional YAML file, then the environment (a .env file is
// read first when present).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/israeldewcom/Real-wealth/internal/app/events"
	"github.com/israeldewcom/Real-wealth/pkg/logger"
)

// EnvConfigPath names the variable holding the YAML config path.
const EnvConfigPath = "LEDGER_CONFIG"

// Config is the root configuration.
type Config struct {
	Database  DatabaseConfig       `yaml:"database"`
	Redis     events.RedisConfig   `yaml:"redis"`
	Logging   logger.LoggingConfig `yaml:"logging"`
	Ledger    LedgerConfig         `yaml:"ledger"`
	Scheduler SchedulerConfig      `yaml:"scheduler"`
	Server    ServerConfig         `yaml:"server"`
	Auth      AuthConfig           `yaml:"auth"`
	Events    EventsConfig         `yaml:"events"`
}

// DatabaseConfig selects the store. An empty DSN runs the in-memory store.
type DatabaseConfig struct {
	DSN              string        `yaml:"dsn" env:"DATABASE_URL"`
	MaxOpenConns     int           `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns     int           `yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime  time.Duration `yaml:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
	StatementTimeout time.Duration `yaml:"statement_timeout" env:"DATABASE_STATEMENT_TIMEOUT"`
	MigrateOnStart   bool          `yaml:"migrate_on_start" env:"DATABASE_MIGRATE_ON_START"`
}

// LedgerConfig holds the money policy as decimal strings.
type LedgerConfig struct {
	MinDeposit        string `yaml:"min_deposit" env:"LEDGER_MIN_DEPOSIT"`
	MinWithdrawal     string `yaml:"min_withdrawal" env:"LEDGER_MIN_WITHDRAWAL"`
	WithdrawalFeeRate string `yaml:"withdrawal_fee_rate" env:"LEDGER_WITHDRAWAL_FEE_RATE"`
	ReferralBonusRate string `yaml:"referral_bonus_rate" env:"LEDGER_REFERRAL_BONUS_RATE"`
}

// SchedulerConfig drives the background workers.
type SchedulerConfig struct {
	MaturitySpec        string        `yaml:"maturity_spec" env:"SCHEDULER_MATURITY_SPEC"`
	MaturityBatch       int           `yaml:"maturity_batch" env:"SCHEDULER_MATURITY_BATCH"`
	ReconcileInterval   time.Duration `yaml:"reconcile_interval" env:"SCHEDULER_RECONCILE_INTERVAL"`
	ReconcileBatch      int           `yaml:"reconcile_batch" env:"SCHEDULER_RECONCILE_BATCH"`
	ReconcileMaxAttempt int           `yaml:"reconcile_max_attempts" env:"SCHEDULER_RECONCILE_MAX_ATTEMPTS"`
}

// ServerConfig is the operations listener.
type ServerConfig struct {
	MetricsAddr     string        `yaml:"metrics_addr" env:"SERVER_METRICS_ADDR"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"AUTH_JWT_SECRET"`
	Issuer    string `yaml:"issuer" env:"AUTH_ISSUER"`
}

// EventsConfig tunes post-commit delivery.
type EventsConfig struct {
	QueueSize     int     `yaml:"queue_size" env:"EVENTS_QUEUE_SIZE"`
	RatePerSecond float64 `yaml:"rate_per_second" env:"EVENTS_RATE_PER_SECOND"`
	Burst         int     `yaml:"burst" env:"EVENTS_BURST"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			MaxOpenConns:     20,
			MaxIdleConns:     5,
			ConnMaxLifetime:  30 * time.Minute,
			StatementTimeout: 5 * time.Second,
			MigrateOnStart:   true,
		},
		Redis: events.RedisConfig{Prefix: "ledger"},
		Logging: logger.LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Ledger: LedgerConfig{
			MinDeposit:        "100",
			MinWithdrawal:     "1000",
			WithdrawalFeeRate: "0.05",
			ReferralBonusRate: "0.20",
		},
		Scheduler: SchedulerConfig{
			MaturitySpec:        "@every 1m",
			MaturityBatch:       100,
			ReconcileInterval:   30 * time.Second,
			ReconcileBatch:      50,
			ReconcileMaxAttempt: 10,
		},
		Server: ServerConfig{
			MetricsAddr:     ":9102",
			ShutdownTimeout: 15 * time.Second,
		},
		Auth: AuthConfig{Issuer: "real-wealth"},
		Events: EventsConfig{
			QueueSize:     1024,
			RatePerSecond: 50,
			Burst:         10,
		},
	}
}

// Load builds the configuration. path overrides LEDGER_CONFIG; both may be
// empty, in which case only defaults and the environment apply.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto cfg.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// Validate checks values that would otherwise fail at first use.
func (c Config) Validate() error {
	if _, err := c.Ledger.Policy(); err != nil {
		return err
	}
	if c.Scheduler.ReconcileInterval < 0 {
		return fmt.Errorf("scheduler.reconcile_interval must not be negative")
	}
	return nil
}

// Policy is the parsed money policy.
type Policy struct {
	MinDeposit        decimal.Decimal
	MinWithdrawal     decimal.Decimal
	WithdrawalFeeRate decimal.Decimal
	ReferralBonusRate decimal.Decimal
}

// DefaultPolicy returns the policy of Default().
func DefaultPolicy() Policy {
	p, err := Default().Ledger.Policy()
	if err != nil {
		panic(err)
	}
	return p
}

// Policy parses the configured decimal strings.
func (l LedgerConfig) Policy() (Policy, error) {
	var (
		p   Policy
		err error
	)
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"ledger.min_deposit", l.MinDeposit, &p.MinDeposit},
		{"ledger.min_withdrawal", l.MinWithdrawal, &p.MinWithdrawal},
		{"ledger.withdrawal_fee_rate", l.WithdrawalFeeRate, &p.WithdrawalFeeRate},
		{"ledger.referral_bonus_rate", l.ReferralBonusRate, &p.ReferralBonusRate},
	}
	for _, f := range fields {
		*f.dst, err = decimal.NewFromString(strings.TrimSpace(f.raw))
		if err != nil {
			return Policy{}, fmt.Errorf("%s: invalid decimal %q", f.name, f.raw)
		}
		if f.dst.IsNegative() {
			return Policy{}, fmt.Errorf("%s must not be negative", f.name)
		}
	}
	if p.WithdrawalFeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return Policy{}, fmt.Errorf("ledger.withdrawal_fee_rate must be below 1")
	}
	return p, nil
}
