package facebook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	oauthfacebook "golang.org/x/oauth2/facebook"
	"golang.org/x/time/rate"

	"github.com/giantswarm/authcore/providers"
)

// Compile-time check that Provider implements the providers.Provider interface.
var _ providers.Provider = (*Provider)(nil)

// providerName is the name returned by Provider.Name().
const providerName = "facebook"

// defaultProfileURL is the Graph API endpoint for the signed-in user.
// The fields parameter limits the response to what the service stores.
const defaultProfileURL = "https://graph.facebook.com/v16.0/me?fields=email,first_name,last_name"

// Provider implements the providers.Provider interface for Facebook OAuth.
type Provider struct {
	*oauth2.Config
	httpClient *http.Client
	limiter    *rate.Limiter
	profileURL string
}

// Config holds Facebook OAuth configuration.
type Config struct {
	// ClientID is the Facebook app ID.
	ClientID string

	// ClientSecret is the Facebook app secret.
	ClientSecret string

	// RedirectURL is the OAuth callback URL.
	RedirectURL string

	// Scopes are optional custom scopes (defaults to email, public_profile).
	Scopes []string

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client
}

// NewProvider creates a new Facebook OAuth provider.
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client secret is required")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"email", "public_profile"}
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
			Endpoint:     oauthfacebook.Endpoint,
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

// AuthorizationURL generates the Facebook OAuth authorization URL.
func (p *Provider) AuthorizationURL(state string) string {
	return p.AuthCodeURL(state)
}

// ExchangeCode exchanges an authorization code for a Facebook access token.
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

// FetchProfile retrieves the user profile from the Graph API. Facebook
// omits the email field for accounts registered with a phone number.
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
		return nil, fmt.Errorf("profile request failed with status %d", resp.StatusCode)
	}

	var fbUser struct {
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&fbUser); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}

	return &providers.Profile{
		Email:     fbUser.Email,
		FirstName: fbUser.FirstName,
		LastName:  fbUser.LastName,
	}, nil
}
