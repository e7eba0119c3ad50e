package secrets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"go.uber.org/zap"

	"github.com/VictorLirio/nimbus-api/internal/domain/ports"
)

// AWSConfig selects the region and, for local development, a profile or a
// LocalStack endpoint.
type AWSConfig struct {
	Region   string
	Profile  string
	Endpoint string
}

// getSecretValueAPI is the single Secrets Manager call the store makes.
type getSecretValueAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSStore reads secret strings from AWS Secrets Manager.
type AWSStore struct {
	client getSecretValueAPI
	logger *zap.Logger
}

// NewAWSStore loads the default credential chain (an IAM role in
// production).
func NewAWSStore(ctx context.Context, cfg AWSConfig, logger *zap.Logger) (*AWSStore, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var clientOpts []func(*secretsmanager.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *secretsmanager.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	logger.Info("AWS Secrets Manager store initialized", zap.String("region", cfg.Region))
	return &AWSStore{client: secretsmanager.NewFromConfig(awsCfg, clientOpts...), logger: logger}, nil
}

func (s *AWSStore) GetSecret(ctx context.Context, path string) (*ports.Secret, error) {
	start := time.Now()
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(path),
	})
	if err != nil {
		var nf *smtypes.ResourceNotFoundException
		if errors.As(err, &nf) {
			return nil, notFound(path)
		}
		s.logger.Error("Failed to retrieve secret", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("failed to get secret %s: %w", path, err)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", path)
	}

	s.logger.Debug("Secret retrieved",
		zap.String("path", path),
		zap.Duration("elapsed", time.Since(start)))
	return &ports.Secret{
		Value:   aws.ToString(out.SecretString),
		Version: aws.ToString(out.VersionId),
	}, nil
}
