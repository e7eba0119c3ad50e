package ports

import "context"

// Secret is a credential fetched from a secret backend.
type Secret struct {
	Value   string
	Version string
}

// SecretStore reads credentials by path. Path syntax is backend specific:
// an env var name, a file under a base dir, an AWS secret id, a Vault KV
// path or a GCP secret name.
type SecretStore interface {
	GetSecret(ctx context.Context, path string) (*Secret, error)
}
