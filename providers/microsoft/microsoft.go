package microsoft

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	oauthmicrosoft "golang.org/x/oauth2/microsoft"
	"golang.org/x/time/rate"

	"github.com/giantswarm/authcore/providers"
)

// Compile-time check that Provider implements the providers.Provider interface.
var _ providers.Provider = (*Provider)(nil)

// providerName is the name returned by Provider.Name().
const providerName = "microsoft"

// defaultProfileURL is the Microsoft Graph endpoint for the signed-in user.
const defaultProfileURL = "https://graph.microsoft.com/v1.0/me"

// Provider implements the providers.Provider interface for Microsoft OAuth.
type Provider struct {
	*oauth2.Config
	httpClient *http.Client
	limiter    *rate.Limiter
	profileURL string
}

// Config holds Microsoft OAuth configuration.
type Config struct {
	// ClientID is the Azure AD application (client) ID.
	ClientID string

	// ClientSecret is the Azure AD client secret.
	ClientSecret string

	// RedirectURL is the OAuth callback URL.
	RedirectURL string

	// Scopes are optional custom scopes (defaults to openid, profile, email).
	Scopes []string

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client
}

// NewProvider creates a new Microsoft OAuth provider using the common
// multi-tenant endpoint.
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client secret is required")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "profile", "email"}
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
			Endpoint:     oauthmicrosoft.AzureADEndpoint("common"),
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

// AuthorizationURL generates the Microsoft OAuth authorization URL.
func (p *Provider) AuthorizationURL(state string) string {
	return p.AuthCodeURL(state)
}

// ExchangeCode exchanges an authorization code for a Microsoft access token.
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

// FetchProfile retrieves the user profile from Microsoft Graph.
// Accounts without a mailbox have no mail attribute, so the
// userPrincipalName serves as the fallback address.
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

	var graphUser struct {
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
		GivenName         string `json:"givenName"`
		Surname           string `json:"surname"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&graphUser); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}

	email := graphUser.Mail
	if email == "" {
		email = graphUser.UserPrincipalName
	}

	return &providers.Profile{
		Email:     email,
		FirstName: graphUser.GivenName,
		LastName:  graphUser.Surname,
	}, nil
}
