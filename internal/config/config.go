package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Secrets     SecretsConfig
	Stripe      StripeConfig
	Engine      EngineConfig
	Notifier    NotifierConfig
	PlanCache   PlanCacheConfig
	Cron        CronConfig
	Logger      LoggerConfig
}

// ServerConfig holds listener configuration
type ServerConfig struct {
	HTTPPort        int
	GRPCPort        int
	MetricsPort     int
	RateLimitRPS    float64
	RateLimitBurst  int
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	// Driver selects the subscription store: postgres or memory.
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
	// SeedFile preloads plans and accounts into the memory store.
	SeedFile string
}

// SecretsConfig selects where provider credentials are read from
type SecretsConfig struct {
	// Provider is one of env, local, aws, vault, gcp.
	Provider     string
	BasePath     string
	AWSRegion    string
	VaultAddr    string
	VaultToken   string
	GCPProjectID string
	CacheTTL     time.Duration
}

// StripeConfig holds billing provider configuration. The key fields are
// secret paths resolved through the secret store; with the env provider
// they name the variables holding the values.
type StripeConfig struct {
	SecretKeyPath      string
	WebhookSecretPath  string
	BaseURL            string
	Timeout            time.Duration
	MaxNetworkRetries  int64
	CircuitMaxFailures int
	CircuitReset       time.Duration
}

// EngineConfig tunes the subscription service
type EngineConfig struct {
	SaveMaxRetries      int
	ExpiringDefaultDays int
}

// NotifierConfig configures domain event sinks. Empty values disable a sink.
type NotifierConfig struct {
	WebhookURLs    []string
	WebhookSecret  string
	NATSURL        string
	NATSSubjectPfx string
}

// PlanCacheConfig sizes the plan lookup cache
type PlanCacheConfig struct {
	Size int
	TTL  time.Duration
}

// CronConfig holds scheduled job configuration
type CronConfig struct {
	Secret           string
	SweepLookback    time.Duration
	SweepConcurrency int
	// SweepInterval runs the orphan sweep in-process; zero leaves it to
	// the external scheduler.
	SweepInterval time.Duration
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string
	Development bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			HTTPPort:        getEnvAsInt("HTTP_PORT", 8080),
			GRPCPort:        getEnvAsInt("GRPC_PORT", 9090),
			MetricsPort:     getEnvAsInt("METRICS_PORT", 9091),
			RateLimitRPS:    getEnvAsFloat("RATE_LIMIT_RPS", 20),
			RateLimitBurst:  getEnvAsInt("RATE_LIMIT_BURST", 40),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("STORE_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "nimbus_billing"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
			MaxConns: int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			SeedFile: getEnv("SEED_FILE", ""),
		},
		Secrets: SecretsConfig{
			Provider:     getEnv("SECRET_PROVIDER", "env"),
			BasePath:     getEnv("SECRET_BASE_PATH", "./secrets"),
			AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
			VaultAddr:    getEnv("VAULT_ADDR", "http://127.0.0.1:8200"),
			VaultToken:   getEnv("VAULT_TOKEN", ""),
			GCPProjectID: getEnv("GCP_PROJECT_ID", ""),
			CacheTTL:     getEnvAsDuration("SECRET_CACHE_TTL", 5*time.Minute),
		},
		Stripe: StripeConfig{
			SecretKeyPath:      getEnv("STRIPE_SECRET_KEY_PATH", "STRIPE_SECRET_KEY"),
			WebhookSecretPath:  getEnv("STRIPE_WEBHOOK_SECRET_PATH", "STRIPE_WEBHOOK_SECRET"),
			BaseURL:            getEnv("STRIPE_API_BASE", ""),
			Timeout:            getEnvAsDuration("PROVIDER_TIMEOUT", 10*time.Second),
			MaxNetworkRetries:  int64(getEnvAsInt("PROVIDER_MAX_NETWORK_RETRIES", 0)),
			CircuitMaxFailures: getEnvAsInt("PROVIDER_CIRCUIT_MAX_FAILURES", 5),
			CircuitReset:       getEnvAsDuration("PROVIDER_CIRCUIT_RESET", 30*time.Second),
		},
		Engine: EngineConfig{
			SaveMaxRetries:      getEnvAsInt("SAVE_MAX_RETRIES", 5),
			ExpiringDefaultDays: getEnvAsInt("EXPIRING_DEFAULT_DAYS", 7),
		},
		Notifier: NotifierConfig{
			WebhookURLs:    getEnvAsList("NOTIFIER_WEBHOOK_URLS"),
			WebhookSecret:  getEnv("NOTIFIER_WEBHOOK_SECRET", ""),
			NATSURL:        getEnv("NATS_URL", ""),
			NATSSubjectPfx: getEnv("NATS_SUBJECT_PREFIX", "billing"),
		},
		PlanCache: PlanCacheConfig{
			Size: getEnvAsInt("PLAN_CACHE_SIZE", 256),
			TTL:  getEnvAsDuration("PLAN_CACHE_TTL", 5*time.Minute),
		},
		Cron: CronConfig{
			Secret:           getEnv("CRON_SECRET", ""),
			SweepLookback:    getEnvAsDuration("ORPHAN_SWEEP_LOOKBACK", 24*time.Hour),
			SweepConcurrency: getEnvAsInt("ORPHAN_SWEEP_CONCURRENCY", 8),
			SweepInterval:    getEnvAsDuration("ORPHAN_SWEEP_INTERVAL", 0),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProduction reports whether the service runs with production rules
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Validate checks settings that would otherwise fail at first use
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be postgres or memory, got %q", c.Database.Driver))
	}
	switch c.Secrets.Provider {
	case "env", "local", "aws", "vault", "gcp":
	default:
		errs = append(errs, fmt.Errorf("SECRET_PROVIDER must be env, local, aws, vault or gcp, got %q", c.Secrets.Provider))
	}
	if c.Secrets.Provider == "gcp" && c.Secrets.GCPProjectID == "" {
		errs = append(errs, errors.New("GCP_PROJECT_ID is required with SECRET_PROVIDER=gcp"))
	}
	if c.Notifier.WebhookSecret == "" && len(c.Notifier.WebhookURLs) > 0 {
		errs = append(errs, errors.New("NOTIFIER_WEBHOOK_SECRET is required when NOTIFIER_WEBHOOK_URLS is set"))
	}
	if c.Engine.SaveMaxRetries < 1 {
		errs = append(errs, errors.New("SAVE_MAX_RETRIES must be at least 1"))
	}
	if c.Stripe.Timeout <= 0 {
		errs = append(errs, errors.New("PROVIDER_TIMEOUT must be positive"))
	}

	if c.IsProduction() {
		if c.Database.Driver == "memory" {
			errs = append(errs, errors.New("STORE_DRIVER=memory is not allowed in production"))
		}
		if c.Database.Password == "" {
			errs = append(errs, errors.New("DB_PASSWORD is required in production"))
		}
		if c.Cron.Secret == "" {
			errs = append(errs, errors.New("CRON_SECRET is required in production"))
		}
		if len(c.Notifier.WebhookURLs) == 0 && c.Notifier.NATSURL == "" {
			errs = append(errs, errors.New("at least one event sink (NOTIFIER_WEBHOOK_URLS or NATS_URL) is required in production"))
		}
	}

	return errors.Join(errs...)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
