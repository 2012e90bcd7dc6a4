package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	oauthgithub "golang.org/x/oauth2/github"
	"golang.org/x/time/rate"

	"github.com/giantswarm/authcore/internal/util"
	"github.com/giantswarm/authcore/providers"
)

// Compile-time check that Provider implements the providers.Provider interface.
var _ providers.Provider = (*Provider)(nil)

// providerName is the name returned by Provider.Name().
const providerName = "github"

// GitHub API endpoints
const (
	defaultUserEndpoint   = "https://api.github.com/user"
	defaultEmailsEndpoint = "https://api.github.com/user/emails"
)

// Provider implements the providers.Provider interface for GitHub OAuth.
type Provider struct {
	*oauth2.Config
	httpClient     *http.Client
	limiter        *rate.Limiter
	userEndpoint   string
	emailsEndpoint string
}

// Config holds GitHub OAuth configuration.
type Config struct {
	// ClientID is the GitHub OAuth App client ID.
	ClientID string

	// ClientSecret is the GitHub OAuth App client secret.
	ClientSecret string

	// RedirectURL is the OAuth callback URL.
	RedirectURL string

	// Scopes are optional custom scopes (defaults to ["user:email", "read:user"]).
	Scopes []string

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client
}

// NewProvider creates a new GitHub OAuth provider.
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client secret is required")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"user:email", "read:user"}
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
			Endpoint:     oauthgithub.Endpoint,
		},
		httpClient:     httpClient,
		limiter:        providers.NewUpstreamLimiter(),
		userEndpoint:   defaultUserEndpoint,
		emailsEndpoint: defaultEmailsEndpoint,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return providerName
}

// AuthorizationURL generates the GitHub OAuth authorization URL.
func (p *Provider) AuthorizationURL(state string) string {
	return p.AuthCodeURL(state)
}

// ExchangeCode exchanges an authorization code for a GitHub access token.
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

// FetchProfile retrieves the user profile from GitHub's /user endpoint.
// GitHub reports a single free-form name and hides the email of users
// who keep it private, so the name is split heuristically and the
// primary verified address is looked up from /user/emails as a fallback.
func (p *Provider) FetchProfile(ctx context.Context, accessToken string) (*providers.Profile, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := p.get(ctx, p.userEndpoint, accessToken)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()

	var ghUser struct {
		Login string `json:"login"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}

	if err := json.NewDecoder(body).Decode(&ghUser); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}

	email := ghUser.Email
	if email == "" {
		email, err = p.fetchPrimaryEmail(ctx, accessToken)
		if err != nil {
			return nil, err
		}
	}

	firstName, lastName := util.SplitName(ghUser.Name)
	if firstName == "" {
		firstName = ghUser.Login
	}

	return &providers.Profile{
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
	}, nil
}

// fetchPrimaryEmail fetches the user's verified primary email from /user/emails.
func (p *Provider) fetchPrimaryEmail(ctx context.Context, accessToken string) (string, error) {
	body, err := p.get(ctx, p.emailsEndpoint, accessToken)
	if err != nil {
		return "", err
	}
	defer func() { _ = body.Close() }()

	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}

	if err := json.NewDecoder(body).Decode(&emails); err != nil {
		return "", fmt.Errorf("failed to decode emails: %w", err)
	}

	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}

	return "", nil
}

func (p *Provider) get(ctx context.Context, endpoint, accessToken string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("request to %s failed with status %d", endpoint, resp.StatusCode)
	}

	return resp.Body, nil
}
