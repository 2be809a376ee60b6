package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/escrow-backend/internal/domain/escrow"
)

func TestLoadBusiness_DefaultsWithoutFile(t *testing.T) {
	business, err := LoadBusiness(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 72*time.Hour, business.CheckoutTTL)
	assert.Equal(t, 72*time.Hour, business.DisputeWindow)
	assert.Equal(t, time.Minute, business.Jobs.ExpiryInterval)
	assert.Equal(t, 100, business.Jobs.BatchSize)

	fees, err := business.Fees.Parse()
	require.NoError(t, err)
	assert.True(t, fees.SalePercent.Equal(decimal.RequireFromString("0.05")))
	assert.True(t, fees.WithdrawalPercent.Equal(decimal.RequireFromString("0.02")))
	require.Contains(t, fees.WithdrawalMethods, "bank_transfer")
	assert.Equal(t, escrow.MethodFeeFlat, fees.WithdrawalMethods["bank_transfer"].Type)
	assert.True(t, fees.WithdrawalMethods["mobile_money"].Value.Equal(decimal.RequireFromString("1.5")))
}

func TestLoadBusiness_FromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
fees:
  sale_percent: 7.5
  withdrawal_methods:
    card:
      type: percentage
      value: 3
checkout_ttl: 24h
jobs:
  outbox_interval: 500ms
  batch_size: 10
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	business, err := LoadBusiness(path)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, business.CheckoutTTL)
	assert.Equal(t, 500*time.Millisecond, business.Jobs.OutboxInterval)
	assert.Equal(t, 10, business.Jobs.BatchSize)
	assert.Equal(t, 15*time.Minute, business.Jobs.DisputeDeadlineInterval)

	fees, err := business.Fees.Parse()
	require.NoError(t, err)
	assert.True(t, fees.SalePercent.Equal(decimal.RequireFromString("0.075")))
	assert.True(t, fees.WithdrawalPercent.Equal(decimal.RequireFromString("0.02")))
	assert.Len(t, fees.WithdrawalMethods, 1)
	assert.Equal(t, escrow.MethodFeePercentage, fees.WithdrawalMethods["card"].Type)
}

func TestFeesConfig_ParseRejectsBadValues(t *testing.T) {
	_, err := FeesConfig{SalePercent: "abc", WithdrawalPercent: "2"}.Parse()
	assert.Error(t, err)

	_, err = FeesConfig{SalePercent: "100", WithdrawalPercent: "2"}.Parse()
	assert.Error(t, err)

	_, err = FeesConfig{
		SalePercent:       "5",
		WithdrawalPercent: "2",
		WithdrawalMethods: map[string]MethodFeeConfig{"bank_transfer": {Type: "weird", Value: "1"}},
	}.Parse()
	assert.Error(t, err)

	_, err = FeesConfig{
		SalePercent:       "5",
		WithdrawalPercent: "2",
		WithdrawalMethods: map[string]MethodFeeConfig{"bank_transfer": {Value: "1"}},
	}.Parse()
	assert.Error(t, err)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "none.yaml"))
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("DATABASE_URL", "file::memory:")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("PAYSTACK_SECRET_KEY", "sk_test")
	t.Setenv("RATE_LIMIT_LIMIT", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.DBDriver)
	assert.Equal(t, "file::memory:", cfg.DatabaseURL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "sk_test", cfg.PaystackWebhookSecret)
	assert.EqualValues(t, 5, cfg.RateLimitLimit)
	assert.NotEmpty(t, cfg.JWTSecret)
	assert.True(t, cfg.Fees.SalePercent.Equal(escrow.SalePlatformFeePercent))
}

func TestLoad_ProductionRequiresSecrets(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "short")
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "none.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "none.yaml"))
	t.Setenv("ACCESS_TOKEN_TTL", "soon")

	_, err := Load()
	assert.Error(t, err)
}
