package secrets

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/VictorLirio/nimbus-api/internal/domain/ports"
)

// GCPStore reads the latest version of a Secret Manager secret. Credentials
// come from GOOGLE_APPLICATION_CREDENTIALS or workload identity.
type GCPStore struct {
	client    *secretmanager.Client
	projectID string
	logger    *zap.Logger
}

func NewGCPStore(ctx context.Context, projectID string, logger *zap.Logger) (*GCPStore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("GCP project ID is required")
	}
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCP Secret Manager client: %w", err)
	}
	logger.Info("GCP Secret Manager store initialized", zap.String("project_id", projectID))
	return &GCPStore{client: client, projectID: projectID, logger: logger}, nil
}

// Close releases the gRPC connection.
func (s *GCPStore) Close() error {
	return s.client.Close()
}

func (s *GCPStore) GetSecret(ctx context.Context, path string) (*ports.Secret, error) {
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", s.projectID, path)
	resp, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if status.Code(err) == codes.NotFound {
		return nil, notFound(path)
	}
	if err != nil {
		s.logger.Error("Failed to access GCP secret", zap.String("secret_name", name), zap.Error(err))
		return nil, fmt.Errorf("failed to access GCP secret %s: %w", path, err)
	}
	return &ports.Secret{
		Value:   string(resp.GetPayload().GetData()),
		Version: versionFromName(resp.GetName()),
	}, nil
}

// versionFromName takes the trailing segment of
// projects/p/secrets/s/versions/N.
func versionFromName(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}
