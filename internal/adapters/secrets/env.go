package secrets

import (
	"context"
	"os"

	"github.com/VictorLirio/nimbus-api/internal/domain/ports"
)

// EnvStore treats the path as an environment variable name.
type EnvStore struct {
	lookup func(string) (string, bool)
}

func NewEnvStore() *EnvStore {
	return &EnvStore{lookup: os.LookupEnv}
}

func (s *EnvStore) GetSecret(_ context.Context, path string) (*ports.Secret, error) {
	v, ok := s.lookup(path)
	if !ok || v == "" {
		return nil, notFound(path)
	}
	return &ports.Secret{Value: v, Version: "env"}, nil
}
