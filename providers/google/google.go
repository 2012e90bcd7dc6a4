package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	oauthgoogle "golang.org/x/oauth2/google"
	"golang.org/x/time/rate"

	"github.com/giantswarm/authcore/providers"
)

// Compile-time check that Provider implements the providers.Provider interface.
var _ providers.Provider = (*Provider)(nil)

// providerName is the name returned by Provider.Name().
const providerName = "google"

// defaultProfileURL is Google's OIDC userinfo endpoint.
const defaultProfileURL = "https://www.googleapis.com/oauth2/v3/userinfo"

// Provider implements the providers.Provider interface for Google OAuth.
type Provider struct {
	*oauth2.Config
	httpClient *http.Client
	limiter    *rate.Limiter
	profileURL string
}

// Config holds Google OAuth configuration.
type Config struct {
	// ClientID is the Google OAuth client ID.
	ClientID string

	// ClientSecret is the Google OAuth client secret.
	ClientSecret string

	// RedirectURL is the OAuth callback URL.
	RedirectURL string

	// Scopes are optional custom scopes (defaults to email, profile, openid).
	Scopes []string

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client
}

// NewProvider creates a new Google OAuth provider.
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client secret is required")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
			"openid",
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Provider{
		Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     oauthgoogle.Endpoint,
		},
		httpClient: httpClient,
		limiter:    providers.NewUpstreamLimiter(),
		profileURL: defaultProfileURL,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return providerName
}

// AuthorizationURL generates the Google OAuth authorization URL.
func (p *Provider) AuthorizationURL(state string) string {
	return p.AuthCodeURL(state)
}

// ExchangeCode exchanges an authorization code for a Google access token.
func (p *Provider) ExchangeCode(ctx context.Context, code string) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", err
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	token, err := p.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to exchange code: %w", err)
	}

	return token.AccessToken, nil
}

// FetchProfile retrieves the user profile from Google's userinfo endpoint.
func (p *Provider) FetchProfile(ctx context.Context, accessToken string) (*providers.Profile, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", p.profileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo request failed with status %d", resp.StatusCode)
	}

	var userInfo struct {
		Email      string `json:"email"`
		GivenName  string `json:"given_name"`
		FamilyName string `json:"family_name"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}

	return &providers.Profile{
		Email:     userInfo.Email,
		FirstName: userInfo.GivenName,
		LastName:  userInfo.FamilyName,
	}, nil
}
