package secrets

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"

	"github.com/VictorLirio/nimbus-api/internal/domain/ports"
)

// VaultConfig configures the Vault KV store. AuthMethod is "token" or
// "approle".
type VaultConfig struct {
	Address    string
	AuthMethod string
	Token      string
	RoleID     string
	SecretID   string
	Namespace  string
	MountPath  string
	KVVersion  int
}

// DefaultVaultConfig uses token auth against a KV v2 engine at "secret".
func DefaultVaultConfig(address, token string) VaultConfig {
	return VaultConfig{
		Address:    address,
		AuthMethod: "token",
		Token:      token,
		MountPath:  "secret",
		KVVersion:  2,
	}
}

// VaultStore reads the "value" key of a KV secret.
type VaultStore struct {
	client *vault.Client
	cfg    VaultConfig
	logger *zap.Logger
}

func NewVaultStore(ctx context.Context, cfg VaultConfig, logger *zap.Logger) (*VaultStore, error) {
	vcfg := vault.DefaultConfig()
	vcfg.Address = cfg.Address

	client, err := vault.NewClient(vcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}
	if cfg.MountPath == "" {
		cfg.MountPath = "secret"
	}
	if cfg.KVVersion == 0 {
		cfg.KVVersion = 2
	}

	if err := authenticate(ctx, client, cfg); err != nil {
		return nil, fmt.Errorf("failed to authenticate with Vault: %w", err)
	}

	logger.Info("Vault store initialized",
		zap.String("address", cfg.Address),
		zap.String("auth_method", cfg.AuthMethod),
		zap.Int("kv_version", cfg.KVVersion))
	return &VaultStore{client: client, cfg: cfg, logger: logger}, nil
}

func authenticate(ctx context.Context, client *vault.Client, cfg VaultConfig) error {
	switch cfg.AuthMethod {
	case "", "token":
		if cfg.Token == "" {
			return errors.New("token is required for token auth")
		}
		client.SetToken(cfg.Token)
		return nil
	case "approle":
		if cfg.RoleID == "" || cfg.SecretID == "" {
			return errors.New("role_id and secret_id are required for AppRole auth")
		}
		resp, err := client.Logical().WriteWithContext(ctx, "auth/approle/login", map[string]interface{}{
			"role_id":   cfg.RoleID,
			"secret_id": cfg.SecretID,
		})
		if err != nil {
			return fmt.Errorf("AppRole login failed: %w", err)
		}
		if resp == nil || resp.Auth == nil {
			return errors.New("AppRole login returned no auth info")
		}
		client.SetToken(resp.Auth.ClientToken)
		return nil
	default:
		return fmt.Errorf("unsupported auth method: %s", cfg.AuthMethod)
	}
}

func (s *VaultStore) GetSecret(ctx context.Context, path string) (*ports.Secret, error) {
	var (
		kv  *vault.KVSecret
		err error
	)
	if s.cfg.KVVersion == 1 {
		kv, err = s.client.KVv1(s.cfg.MountPath).Get(ctx, path)
	} else {
		kv, err = s.client.KVv2(s.cfg.MountPath).Get(ctx, path)
	}
	if errors.Is(err, vault.ErrSecretNotFound) {
		return nil, notFound(path)
	}
	if err != nil {
		s.logger.Error("Failed to read secret from Vault", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("failed to read secret from Vault: %w", err)
	}

	value, ok := kv.Data["value"].(string)
	if !ok || value == "" {
		return nil, fmt.Errorf("vault secret %s has no string \"value\" key", path)
	}

	version := "1"
	if kv.VersionMetadata != nil {
		version = strconv.Itoa(kv.VersionMetadata.Version)
	}
	return &ports.Secret{Value: value, Version: version}, nil
}
