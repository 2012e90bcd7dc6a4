package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/giantswarm/authcore/security"
)

// Sentinel errors for provider failures. The HTTP layer maps these to
// stable response codes.
var (
	// ErrNotConfigured is returned when a provider name has no
	// registered implementation.
	ErrNotConfigured = errors.New("provider not configured")

	// ErrStateMismatch is returned when the callback state does not
	// match the state issued at the start of the flow.
	ErrStateMismatch = errors.New("state mismatch")

	// ErrExchangeFailed is returned when the authorization code could
	// not be exchanged for an access token.
	ErrExchangeFailed = errors.New("code exchange failed")

	// ErrProfileFailed is returned when the provider's profile endpoint
	// rejected the request or returned an unreadable response.
	ErrProfileFailed = errors.New("profile fetch failed")

	// ErrProfileIncomplete is returned when the provider profile lacks
	// an email address.
	ErrProfileIncomplete = errors.New("profile has no email")
)

// Upstream rate limiting defaults, applied to outbound calls against
// provider token and profile endpoints.
const (
	defaultUpstreamRate  = 10
	defaultUpstreamBurst = 20
)

// NewUpstreamLimiter returns the rate limiter shared by a provider's
// outbound HTTP calls.
func NewUpstreamLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(defaultUpstreamRate), defaultUpstreamBurst)
}

// Profile represents the subset of provider user information the
// service needs to create or look up an account.
type Profile struct {
	// Email is the user's email address as reported by the provider.
	Email string

	// FirstName is the user's given name. May be empty.
	FirstName string

	// LastName is the user's family name. May be empty.
	LastName string
}

// Provider defines the interface for OAuth identity providers.
type Provider interface {
	// Name returns the provider name (e.g., "google", "github")
	Name() string

	// AuthorizationURL generates the URL to redirect users for authentication
	AuthorizationURL(state string) string

	// ExchangeCode exchanges an authorization code for a provider access token
	ExchangeCode(ctx context.Context, code string) (string, error)

	// FetchProfile retrieves the user profile using a provider access token
	FetchProfile(ctx context.Context, accessToken string) (*Profile, error)
}

// Registry holds the configured providers and drives the shared parts
// of the authorization-code flow.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	logger    *slog.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		providers: make(map[string]Provider),
		logger:    logger,
	}
}

// Register adds a provider to the registry, replacing any provider
// previously registered under the same name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Lookup returns the provider registered under name, or
// ErrNotConfigured.
func (r *Registry) Lookup(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, name)
	}
	return p, nil
}

// Names returns the sorted names of all registered providers.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AuthorizationURL returns the provider's authorization URL carrying
// the given state.
func (r *Registry) AuthorizationURL(name, state string) (string, error) {
	p, err := r.Lookup(name)
	if err != nil {
		return "", err
	}
	return p.AuthorizationURL(state), nil
}

// Exchange completes the callback half of the authorization-code flow:
// it verifies the state, exchanges the code, and fetches the profile.
// The state comparison happens before any call to the provider, so a
// forged callback never reaches the token endpoint.
func (r *Registry) Exchange(ctx context.Context, name, code, state, expectedState string) (*Profile, error) {
	p, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}

	if !security.StatesEqual(state, expectedState) {
		r.logger.Warn("OAuth state mismatch", "provider", name)
		return nil, ErrStateMismatch
	}

	start := time.Now()
	accessToken, err := p.ExchangeCode(ctx, code)
	if err != nil {
		r.logger.Error("Code exchange failed", "provider", name, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrExchangeFailed, err)
	}

	profile, err := p.FetchProfile(ctx, accessToken)
	if err != nil {
		r.logger.Error("Profile fetch failed", "provider", name, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrProfileFailed, err)
	}

	if profile.Email == "" {
		return nil, ErrProfileIncomplete
	}

	r.logger.Debug("OAuth exchange completed",
		"provider", name,
		"duration", time.Since(start))

	return profile, nil
}
