package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.True(t, p.WithdrawalFeeRate.Equal(decimal.RequireFromString("0.05")))
	assert.True(t, p.ReferralBonusRate.Equal(decimal.RequireFromString("0.2")))
	assert.True(t, p.MinWithdrawal.Equal(decimal.NewFromInt(1000)))
}

func TestPolicyRejectsBadValues(t *testing.T) {
	l := Default().Ledger
	l.WithdrawalFeeRate = "five percent"
	_, err := l.Policy()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger.withdrawal_fee_rate")

	l = Default().Ledger
	l.MinDeposit = "-1"
	_, err = l.Policy()
	require.Error(t, err)

	l = Default().Ledger
	l.WithdrawalFeeRate = "1"
	_, err = l.Policy()
	require.Error(t, err)
}

func TestLoadFileThenEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ledger:
  min_deposit: "250"
  withdrawal_fee_rate: "0.02"
scheduler:
  reconcile_interval: 10s
`), 0o600))

	t.Setenv("LEDGER_WITHDRAWAL_FEE_RATE", "0.03")
	t.Setenv("SERVER_METRICS_ADDR", ":9999")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "250", cfg.Ledger.MinDeposit)
	assert.Equal(t, "0.03", cfg.Ledger.WithdrawalFeeRate)
	assert.Equal(t, "1000", cfg.Ledger.MinWithdrawal)
	assert.Equal(t, 10*time.Second, cfg.Scheduler.ReconcileInterval)
	assert.Equal(t, ":9999", cfg.Server.MetricsAddr)
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Scheduler.MaturitySpec, cfg.Scheduler.MaturitySpec)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
