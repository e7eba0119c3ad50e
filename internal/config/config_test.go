package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("PROVIDER_MAX_NETWORK_RETRIES", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 9090, cfg.Server.GRPCPort)
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Equal(t, "env", cfg.Secrets.Provider)
	assert.Equal(t, "STRIPE_SECRET_KEY", cfg.Stripe.SecretKeyPath)
	assert.Equal(t, "STRIPE_WEBHOOK_SECRET", cfg.Stripe.WebhookSecretPath)
	assert.Equal(t, 10*time.Second, cfg.Stripe.Timeout)
	assert.Equal(t, 5, cfg.Stripe.CircuitMaxFailures)
	assert.Equal(t, 30*time.Second, cfg.Stripe.CircuitReset)
	assert.Equal(t, int64(0), cfg.Stripe.MaxNetworkRetries, "provider calls are not retried inside the client")
	assert.Equal(t, 5, cfg.Engine.SaveMaxRetries)
	assert.Equal(t, 7, cfg.Engine.ExpiringDefaultDays)
	assert.Equal(t, "billing", cfg.Notifier.NATSSubjectPfx)
	assert.Equal(t, 256, cfg.PlanCache.Size)
	assert.Equal(t, 5*time.Minute, cfg.PlanCache.TTL)
	assert.Equal(t, 24*time.Hour, cfg.Cron.SweepLookback)
	assert.Equal(t, 8, cfg.Cron.SweepConcurrency)
	assert.Zero(t, cfg.Cron.SweepInterval)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("HTTP_PORT", "8181")
	t.Setenv("PROVIDER_TIMEOUT", "3s")
	t.Setenv("PROVIDER_MAX_NETWORK_RETRIES", "1")
	t.Setenv("NOTIFIER_WEBHOOK_URLS", " https://a.example/hook, ,https://b.example/hook ")
	t.Setenv("NOTIFIER_WEBHOOK_SECRET", "whsec")
	t.Setenv("ORPHAN_SWEEP_INTERVAL", "1h")
	t.Setenv("LOG_DEVELOPMENT", "true")
	t.Setenv("GRPC_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8181, cfg.Server.HTTPPort)
	assert.Equal(t, 9090, cfg.Server.GRPCPort, "unparsable values fall back to the default")
	assert.Equal(t, 3*time.Second, cfg.Stripe.Timeout)
	assert.Equal(t, int64(1), cfg.Stripe.MaxNetworkRetries)
	assert.Equal(t, []string{"https://a.example/hook", "https://b.example/hook"}, cfg.Notifier.WebhookURLs)
	assert.Equal(t, time.Hour, cfg.Cron.SweepInterval)
	assert.True(t, cfg.Logger.Development)
}

func validProduction() *Config {
	return &Config{
		Environment: "production",
		Database:    DatabaseConfig{Driver: "postgres", Password: "pw"},
		Secrets:     SecretsConfig{Provider: "aws"},
		Stripe:      StripeConfig{Timeout: time.Second},
		Engine:      EngineConfig{SaveMaxRetries: 5},
		Notifier:    NotifierConfig{NATSURL: "nats://nats:4222"},
		Cron:        CronConfig{Secret: "cron"},
	}
}

func TestValidate_Production(t *testing.T) {
	require.NoError(t, validProduction().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"db password", func(c *Config) { c.Database.Password = "" }, "DB_PASSWORD"},
		{"cron secret", func(c *Config) { c.Cron.Secret = "" }, "CRON_SECRET"},
		{"memory store", func(c *Config) { c.Database.Driver = "memory" }, "STORE_DRIVER=memory"},
		{"no sink", func(c *Config) { c.Notifier.NATSURL = "" }, "event sink"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validProduction()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_General(t *testing.T) {
	c := validProduction()
	c.Environment = "development"
	c.Secrets.Provider = "gcp"
	c.Database.Driver = "sqlite"
	c.Notifier.WebhookURLs = []string{"https://a.example"}

	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_DRIVER")
	assert.Contains(t, err.Error(), "GCP_PROJECT_ID")
	assert.Contains(t, err.Error(), "NOTIFIER_WEBHOOK_SECRET")
}
