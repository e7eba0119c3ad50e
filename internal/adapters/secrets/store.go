package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/VictorLirio/nimbus-api/internal/domain/ports"
)

// ErrSecretNotFound is wrapped by every backend when the path does not exist.
var ErrSecretNotFound = errors.New("secret not found")

func notFound(path string) error {
	return fmt.Errorf("%w: %s", ErrSecretNotFound, path)
}

// CachedStore keeps fetched secrets for ttl so request paths never wait on
// the backend twice for the same credential.
type CachedStore struct {
	inner ports.SecretStore
	cache *expirable.LRU[string, *ports.Secret]
}

// NewCachedStore wraps inner. A ttl of zero disables expiry.
func NewCachedStore(inner ports.SecretStore, size int, ttl time.Duration) *CachedStore {
	if size <= 0 {
		size = 64
	}
	return &CachedStore{
		inner: inner,
		cache: expirable.NewLRU[string, *ports.Secret](size, nil, ttl),
	}
}

func (c *CachedStore) GetSecret(ctx context.Context, path string) (*ports.Secret, error) {
	if s, ok := c.cache.Get(path); ok {
		return s, nil
	}
	s, err := c.inner.GetSecret(ctx, path)
	if err != nil {
		return nil, err
	}
	c.cache.Add(path, s)
	return s, nil
}

// Invalidate drops path so the next read goes to the backend.
func (c *CachedStore) Invalidate(path string) {
	c.cache.Remove(path)
}

// StripeCredentials are the two secrets the billing gateway needs.
type StripeCredentials struct {
	SecretKey     string
	WebhookSecret string
}

// LoadStripeCredentials reads both credentials and trims surrounding
// whitespace left by files and consoles.
func LoadStripeCredentials(ctx context.Context, store ports.SecretStore, keyPath, webhookPath string) (StripeCredentials, error) {
	key, err := store.GetSecret(ctx, keyPath)
	if err != nil {
		return StripeCredentials{}, fmt.Errorf("load stripe secret key: %w", err)
	}
	hook, err := store.GetSecret(ctx, webhookPath)
	if err != nil {
		return StripeCredentials{}, fmt.Errorf("load stripe webhook secret: %w", err)
	}

	creds := StripeCredentials{
		SecretKey:     strings.TrimSpace(key.Value),
		WebhookSecret: strings.TrimSpace(hook.Value),
	}
	if creds.SecretKey == "" || creds.WebhookSecret == "" {
		return StripeCredentials{}, errors.New("stripe credentials must not be empty")
	}
	return creds, nil
}
