package authcore

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	"github.com/giantswarm/authcore/tokens"
)

// Config holds the authentication service configuration.
// Structured using composition; LoadFromEnv fills it from AUTHCORE_*
// environment variables.
type Config struct {
	// AppID is the service identity used as the token issuer (required).
	AppID string `env:"AUTHCORE_APP_ID"`

	// Domain is the default token audience and, as a regular
	// expression, the pattern accepted audiences must match (required).
	Domain string `env:"AUTHCORE_DOMAIN"`

	// BaseURL is the public base URL of this service, used to build
	// OAuth redirect URLs: {BaseURL}/oauth/{provider}/callback.
	BaseURL string `env:"AUTHCORE_BASE_URL"`

	// FrontendURL is where OAuth callbacks redirect the browser after
	// a successful login.
	FrontendURL string `env:"AUTHCORE_FRONTEND_URL"`

	// TestMode drops the Secure flag from cookies for local development.
	TestMode bool `env:"AUTHCORE_TEST_MODE"`

	// JWT holds signing keys and token lifetimes.
	JWT JWTConfig `envPrefix:"AUTHCORE_JWT_"`

	// Cookie holds refresh and state cookie settings.
	Cookie CookieConfig `envPrefix:"AUTHCORE_COOKIE_"`

	// OAuth holds per-provider client credentials. A provider with no
	// credentials is disabled, not errored.
	OAuth OAuthConfig

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger `env:"-"`
}

// JWTConfig holds signing material and lifetimes for the four token kinds.
type JWTConfig struct {
	// AccessPrivateKeyPEM is the PEM-encoded RSA private key for
	// access token signing (required).
	AccessPrivateKeyPEM string `env:"ACCESS_PRIVATE_KEY"`

	// AccessPublicKeyPEM is the PEM-encoded RSA public key. Optional;
	// derived from the private key when empty.
	AccessPublicKeyPEM string `env:"ACCESS_PUBLIC_KEY"`

	// Symmetric secrets, one per HS256 token kind (each at least 32 bytes).
	RefreshSecret       string `env:"REFRESH_SECRET"`
	ConfirmationSecret  string `env:"CONFIRMATION_SECRET"`
	ResetPasswordSecret string `env:"RESET_PASSWORD_SECRET"`

	// Lifetimes. Zero values fall back to the tokens package defaults.
	AccessTTL        time.Duration `env:"ACCESS_TTL"`
	RefreshTTL       time.Duration `env:"REFRESH_TTL"`
	ConfirmationTTL  time.Duration `env:"CONFIRMATION_TTL"`
	ResetPasswordTTL time.Duration `env:"RESET_PASSWORD_TTL"`
}

// CookieConfig holds cookie naming, scoping, and signing settings.
type CookieConfig struct {
	// Secret signs cookie values (required, at least 32 bytes).
	Secret string `env:"SECRET"`

	// Name is the refresh token cookie name.
	Name string `env:"NAME" envDefault:"refresh_token"`

	// Path scopes the refresh cookie to the auth endpoints.
	Path string `env:"PATH" envDefault:"/auth"`

	// StateName is the OAuth CSRF state cookie name.
	StateName string `env:"STATE_NAME" envDefault:"oauth_state"`

	// StateTTL bounds how long an OAuth flow may stay in flight.
	StateTTL time.Duration `env:"STATE_TTL" envDefault:"10m"`
}

// applyDefaults fills empty cookie settings with the same values the
// env tags default to, so hand-built configs behave like loaded ones.
func (c *CookieConfig) applyDefaults() {
	if c.Name == "" {
		c.Name = "refresh_token"
	}
	if c.Path == "" {
		c.Path = "/auth"
	}
	if c.StateName == "" {
		c.StateName = "oauth_state"
	}
	if c.StateTTL <= 0 {
		c.StateTTL = 10 * time.Minute
	}
}

// ClientCredentials holds one provider's OAuth client credentials.
type ClientCredentials struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
}

// Configured reports whether both credentials are present.
func (c ClientCredentials) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// OAuthConfig holds client credentials for the supported providers.
type OAuthConfig struct {
	Google    ClientCredentials `envPrefix:"AUTHCORE_GOOGLE_"`
	Microsoft ClientCredentials `envPrefix:"AUTHCORE_MICROSOFT_"`
	Facebook  ClientCredentials `envPrefix:"AUTHCORE_FACEBOOK_"`
	GitHub    ClientCredentials `envPrefix:"AUTHCORE_GITHUB_"`
}

// LoadFromEnv builds a Config from AUTHCORE_* environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}

// TokenConfig converts the JWT section into a tokens.Config, parsing
// the PEM-encoded signing keys.
func (c *Config) TokenConfig() (tokens.Config, error) {
	tc := tokens.Config{
		Issuer:              c.AppID,
		Domain:              c.Domain,
		RefreshSecret:       []byte(c.JWT.RefreshSecret),
		ConfirmationSecret:  []byte(c.JWT.ConfirmationSecret),
		ResetPasswordSecret: []byte(c.JWT.ResetPasswordSecret),
		AccessTTL:           c.JWT.AccessTTL,
		RefreshTTL:          c.JWT.RefreshTTL,
		ConfirmationTTL:     c.JWT.ConfirmationTTL,
		ResetPasswordTTL:    c.JWT.ResetPasswordTTL,
	}

	if c.JWT.AccessPrivateKeyPEM == "" {
		return tokens.Config{}, fmt.Errorf("access private key is required")
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(c.JWT.AccessPrivateKeyPEM))
	if err != nil {
		return tokens.Config{}, fmt.Errorf("failed to parse access private key: %w", err)
	}
	tc.AccessPrivateKey = privateKey

	if c.JWT.AccessPublicKeyPEM != "" {
		publicKey, err := jwt.ParseRSAPublicKeyFromPEM([]byte(c.JWT.AccessPublicKeyPEM))
		if err != nil {
			return tokens.Config{}, fmt.Errorf("failed to parse access public key: %w", err)
		}
		tc.AccessPublicKey = publicKey
	}

	return tc, nil
}
