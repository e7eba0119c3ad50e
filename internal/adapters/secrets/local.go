package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/VictorLirio/nimbus-api/internal/domain/ports"
)

// LocalStore reads secrets from files under a base directory, either raw
// or as {"value": "...", "version": "..."}. Development only.
type LocalStore struct {
	basePath string
	logger   *zap.Logger
}

func NewLocalStore(basePath string, logger *zap.Logger) *LocalStore {
	return &LocalStore{basePath: basePath, logger: logger}
}

func (s *LocalStore) GetSecret(_ context.Context, path string) (*ports.Secret, error) {
	clean := filepath.Clean("/" + path)
	full := filepath.Join(s.basePath, clean)

	s.logger.Debug("Reading secret from filesystem", zap.String("path", path))

	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}

	var doc struct {
		Value   string `json:"value"`
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &doc); err == nil && doc.Value != "" {
		if doc.Version == "" {
			doc.Version = "local"
		}
		return &ports.Secret{Value: doc.Value, Version: doc.Version}, nil
	}
	return &ports.Secret{Value: strings.TrimRight(string(data), "\r\n"), Version: "local"}, nil
}
