// Package credentials resolves provider API secrets. A caller may bring
// their own key (BYOK, stored in the provider_keys table), rely on
// platform-managed keys, or let "auto" prefer BYOK and fall back to
// managed. Secrets are opaque to the engine.
package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/chriseon/relay/internal/models"
	"github.com/chriseon/relay/internal/store"
)

// Mode selects which class of secret to resolve.
type Mode string

const (
	ModeBYOK    Mode = "byok"
	ModeManaged Mode = "managed"
	ModeAuto    Mode = "auto"
)

// Typed resolution failures. The orchestrator records these as stage
// errors; they never abort a run.
var (
	ErrNotFound      = errors.New("no credential available")
	ErrRevoked       = errors.New("credential disabled")
	ErrMisconfigured = errors.New("credential misconfigured")
)

// Credential is a resolved secret plus the mode that produced it.
type Credential struct {
	Provider string
	Mode     Mode
	Secret   string
}

// Resolver resolves a credential for (provider, mode). Implementations
// must be safe for concurrent use across runs.
type Resolver interface {
	Resolve(ctx context.Context, provider string, mode Mode) (*Credential, error)
}

// KeyStore is the subset of the store the resolver needs for BYOK
// lookups.
type KeyStore interface {
	ProviderKey(ctx context.Context, provider string) (*models.ProviderKey, error)
}

// StoreResolver resolves BYOK keys from the store and managed keys from
// a static map (typically loaded from config/env).
type StoreResolver struct {
	keys    KeyStore
	managed map[string]string
}

// NewResolver creates a resolver. keys may be nil (BYOK then always
// fails with ErrNotFound); managed may be nil or empty.
func NewResolver(keys KeyStore, managed map[string]string) *StoreResolver {
	return &StoreResolver{keys: keys, managed: managed}
}

// Resolve implements Resolver. An empty or unknown mode means auto.
func (r *StoreResolver) Resolve(ctx context.Context, provider string, mode Mode) (*Credential, error) {
	switch mode {
	case ModeBYOK:
		return r.byok(ctx, provider)
	case ModeManaged:
		return r.managedKey(provider)
	case ModeAuto, "":
		if cred, err := r.byok(ctx, provider); err == nil {
			return cred, nil
		}
		return r.managedKey(provider)
	default:
		return nil, fmt.Errorf("%w: unknown credential mode %q", ErrMisconfigured, mode)
	}
}

func (r *StoreResolver) byok(ctx context.Context, provider string) (*Credential, error) {
	if r.keys == nil {
		return nil, fmt.Errorf("%w: provider=%s mode=byok", ErrNotFound, provider)
	}
	key, err := r.keys.ProviderKey(ctx, provider)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: provider=%s mode=byok", ErrNotFound, provider)
	}
	if err != nil {
		return nil, fmt.Errorf("byok lookup for %s: %w", provider, err)
	}
	if !key.Enabled {
		return nil, fmt.Errorf("%w: provider=%s", ErrRevoked, provider)
	}
	if key.Secret == "" {
		return nil, fmt.Errorf("%w: provider=%s has empty secret", ErrMisconfigured, provider)
	}
	return &Credential{Provider: provider, Mode: ModeBYOK, Secret: key.Secret}, nil
}

func (r *StoreResolver) managedKey(provider string) (*Credential, error) {
	secret, ok := r.managed[provider]
	if !ok || secret == "" {
		return nil, fmt.Errorf("%w: provider=%s mode=managed", ErrNotFound, provider)
	}
	return &Credential{Provider: provider, Mode: ModeManaged, Secret: secret}, nil
}

var _ Resolver = (*StoreResolver)(nil)
