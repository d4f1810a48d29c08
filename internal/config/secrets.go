// internal/config/secrets.go
//
// `vault:` reference resolution.
//
// Context
// -------
// Any string value of the form
//
//	vault:<mount>/<path>#<key>
//
// is replaced by the KV-v2 secret it names before the tree is unmarshalled.
// The resolver is created lazily, so deployments without references never
// need VAULT_ADDR.

package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	koanf "github.com/knadh/koanf/v2"
)

// VaultPrefix marks a secret reference.
const VaultPrefix = "vault:"

// secretTTL caches each resolved value inside the resolver.
const secretTTL = 5 * time.Minute

// SecretResolver fetches one key from a KV-v2 secret.  *vault.Client
// satisfies it.
type SecretResolver interface {
	GetKV(ctx context.Context, secretPath, key string, ttl time.Duration) (string, error)
}

// ResolverFactory creates the resolver on first use.
type ResolverFactory func(ctx context.Context) (SecretResolver, error)

// ErrNoResolver is returned when a reference is present but no factory was
// supplied.
var ErrNoResolver = errors.New("config: vault reference found but no resolver configured")

// resolveSecrets replaces every reference in k.
func resolveSecrets(ctx context.Context, k *koanf.Koanf, factory ResolverFactory) error {
	var res SecretResolver

	for key, val := range k.All() {
		s, ok := val.(string)
		if !ok || !strings.HasPrefix(s, VaultPrefix) {
			continue
		}
		path, field, err := parseRef(s)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}

		if res == nil {
			if factory == nil {
				return fmt.Errorf("%s: %w", key, ErrNoResolver)
			}
			if res, err = factory(ctx); err != nil {
				return fmt.Errorf("vault client: %w", err)
			}
		}

		plain, err := res.GetKV(ctx, path, field, secretTTL)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if err := k.Set(key, plain); err != nil {
			return err
		}
	}
	return nil
}

// parseRef splits "vault:secret/users#token".
func parseRef(ref string) (path, key string, err error) {
	body := strings.TrimPrefix(ref, VaultPrefix)
	path, key, ok := strings.Cut(body, "#")
	if !ok || path == "" || key == "" {
		return "", "", fmt.Errorf("malformed vault reference %q (want vault:<path>#<key>)", ref)
	}
	return path, key, nil
}
