// Package provider implements identity-provider integrations for OAuth
// sign-in. Each provider turns an authorization code (or, for Telegram,
// a signed widget payload) into a normalized domain.Profile.
package provider

import (
	"context"
	"errors"

	"github.com/glamly/auth-service/internal/domain"
)

// Provider failure modes. Callers map these onto transport-level errors:
// an exchange rejection means the caller presented a bad grant, while a
// profile-fetch failure is an upstream fault.
var (
	ErrExchange         = errors.New("authorization code exchange rejected")
	ErrProfileFetch     = errors.New("provider profile fetch failed")
	ErrInvalidSignature = errors.New("payload signature verification failed")
	ErrUnknownProvider  = errors.New("unknown provider")
)

// Provider is an OAuth identity provider capable of the authorization-code
// flow: building the consent URL, exchanging the callback code, and
// fetching the authenticated user's profile.
type Provider interface {
	// Name returns the provider's registry key ("google", "instagram").
	Name() string

	// AuthCodeURL builds the provider consent URL carrying the given
	// anti-forgery state value.
	AuthCodeURL(state string) string

	// Exchange trades an authorization code for an access token.
	Exchange(ctx context.Context, code string) (string, error)

	// FetchProfile retrieves the authenticated user's profile using the
	// access token returned by Exchange.
	FetchProfile(ctx context.Context, accessToken string) (*domain.Profile, error)
}

// Registry holds the configured providers keyed by name.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates a registry from the given providers.
func NewRegistry(providers ...Provider) *Registry {
	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &Registry{providers: m}
}

// Register adds a provider, replacing any previous one with the same name.
func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return p, nil
}

// Names returns the registered provider names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
