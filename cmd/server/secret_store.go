package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/VictorLirio/nimbus-api/internal/adapters/secrets"
	"github.com/VictorLirio/nimbus-api/internal/config"
	"github.com/VictorLirio/nimbus-api/internal/domain/ports"
	"github.com/VictorLirio/nimbus-api/pkg/shutdown"
)

// initSecretStore picks the secret backend named by SECRET_PROVIDER and
// wraps it in a TTL cache:
//   - env: process environment (development default)
//   - local: files under SECRET_BASE_PATH
//   - aws: AWS Secrets Manager in AWS_REGION
//   - vault: HashiCorp Vault KV v2 at VAULT_ADDR
//   - gcp: Google Secret Manager in GCP_PROJECT_ID
func initSecretStore(ctx context.Context, cfg config.SecretsConfig, sm *shutdown.Manager, logger *zap.Logger) (ports.SecretStore, error) {
	var inner ports.SecretStore

	switch cfg.Provider {
	case "env":
		inner = secrets.NewEnvStore()
	case "local":
		inner = secrets.NewLocalStore(cfg.BasePath, logger)
	case "aws":
		store, err := secrets.NewAWSStore(ctx, secrets.AWSConfig{Region: cfg.AWSRegion}, logger)
		if err != nil {
			return nil, err
		}
		inner = store
	case "vault":
		store, err := secrets.NewVaultStore(ctx, secrets.DefaultVaultConfig(cfg.VaultAddr, cfg.VaultToken), logger)
		if err != nil {
			return nil, err
		}
		inner = store
	case "gcp":
		store, err := secrets.NewGCPStore(ctx, cfg.GCPProjectID, logger)
		if err != nil {
			return nil, err
		}
		sm.RegisterCloser("gcp-secret-manager", store)
		inner = store
	default:
		return nil, fmt.Errorf("unknown secret provider %q", cfg.Provider)
	}

	logger.Info("Secret store initialized", zap.String("provider", cfg.Provider))
	return secrets.NewCachedStore(inner, 64, cfg.CacheTTL), nil
}
