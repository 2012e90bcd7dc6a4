package authcore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/giantswarm/authcore/instrumentation"
	"github.com/giantswarm/authcore/internal/util"
	"github.com/giantswarm/authcore/providers"
	"github.com/giantswarm/authcore/providers/facebook"
	"github.com/giantswarm/authcore/providers/github"
	"github.com/giantswarm/authcore/providers/google"
	"github.com/giantswarm/authcore/providers/microsoft"
	"github.com/giantswarm/authcore/security"
	"github.com/giantswarm/authcore/storage"
	"github.com/giantswarm/authcore/tokens"
)

// Session is the result of a successful authentication flow: the user
// record, a bearer access token, and a refresh token destined for the
// signed cookie.
type Session struct {
	User         *storage.User
	AccessToken  string
	RefreshToken string
	RefreshTTL   time.Duration
}

// Service is the authentication use-case layer. It composes the token
// codec, the revocation cache, the provider registry, and the external
// user store. All methods are safe for concurrent use.
type Service struct {
	codec       *tokens.Codec
	users       storage.UserStore
	revocations storage.RevocationCache
	registry    *providers.Registry
	hasher      security.Hasher
	mailer      Mailer
	metrics     *instrumentation.Metrics
	tracer      trace.Tracer
	logger      *slog.Logger

	now func() time.Time
}

// ServiceOption customizes optional Service collaborators.
type ServiceOption func(*Service)

// WithHasher replaces the default bcrypt password hasher.
func WithHasher(h security.Hasher) ServiceOption {
	return func(s *Service) { s.hasher = h }
}

// WithMailer replaces the default log-only mailer.
func WithMailer(m Mailer) ServiceOption {
	return func(s *Service) { s.mailer = m }
}

// WithRegistry replaces the registry built from Config.OAuth.
func WithRegistry(r *providers.Registry) ServiceOption {
	return func(s *Service) { s.registry = r }
}

// WithInstrumentation wires metric recording and tracing into the service.
func WithInstrumentation(inst *instrumentation.Instrumentation) ServiceOption {
	return func(s *Service) {
		if inst != nil {
			s.metrics = inst.Metrics()
			s.tracer = inst.Tracer("service")
		}
	}
}

// NewService creates the authentication service.
func NewService(
	cfg *Config,
	users storage.UserStore,
	revocations storage.RevocationCache,
	opts ...ServiceOption,
) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if revocations == nil {
		return nil, fmt.Errorf("revocation cache is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tokenConfig, err := cfg.TokenConfig()
	if err != nil {
		return nil, err
	}

	codec, err := tokens.NewCodec(tokenConfig)
	if err != nil {
		return nil, err
	}

	s := &Service{
		codec:       codec,
		users:       users,
		revocations: revocations,
		hasher:      security.BcryptHasher{},
		mailer:      &LogMailer{Logger: logger},
		tracer:      tracenoop.NewTracerProvider().Tracer("service"),
		logger:      logger,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.registry == nil {
		s.registry, err = buildRegistry(cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	return s, nil
}

// buildRegistry registers a provider for every credential pair present
// in the configuration. Absent providers stay disabled.
func buildRegistry(cfg *Config, logger *slog.Logger) (*providers.Registry, error) {
	registry := providers.NewRegistry(logger)

	redirectURL := func(name string) string {
		return cfg.BaseURL + "/oauth/" + name + "/callback"
	}

	if cfg.OAuth.Google.Configured() {
		p, err := google.NewProvider(&google.Config{
			ClientID:     cfg.OAuth.Google.ClientID,
			ClientSecret: cfg.OAuth.Google.ClientSecret,
			RedirectURL:  redirectURL("google"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure google provider: %w", err)
		}
		registry.Register(p)
	}

	if cfg.OAuth.Microsoft.Configured() {
		p, err := microsoft.NewProvider(&microsoft.Config{
			ClientID:     cfg.OAuth.Microsoft.ClientID,
			ClientSecret: cfg.OAuth.Microsoft.ClientSecret,
			RedirectURL:  redirectURL("microsoft"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure microsoft provider: %w", err)
		}
		registry.Register(p)
	}

	if cfg.OAuth.Facebook.Configured() {
		p, err := facebook.NewProvider(&facebook.Config{
			ClientID:     cfg.OAuth.Facebook.ClientID,
			ClientSecret: cfg.OAuth.Facebook.ClientSecret,
			RedirectURL:  redirectURL("facebook"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure facebook provider: %w", err)
		}
		registry.Register(p)
	}

	if cfg.OAuth.GitHub.Configured() {
		p, err := github.NewProvider(&github.Config{
			ClientID:     cfg.OAuth.GitHub.ClientID,
			ClientSecret: cfg.OAuth.GitHub.ClientSecret,
			RedirectURL:  redirectURL("github"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure github provider: %w", err)
		}
		registry.Register(p)
	}

	return registry, nil
}

// Register creates an unconfirmed account and hands a confirmation
// token to the mailer.
func (s *Service) Register(ctx context.Context, name, email, password1, password2 string) (*storage.User, error) {
	if password1 != password2 {
		return nil, ErrPasswordMismatch
	}

	email = util.NormalizeEmail(email)

	digest, err := s.hasher.Hash(password1)
	if err != nil {
		return nil, ErrServer("failed to hash password")
	}

	firstName, lastName := util.SplitName(name)

	user, err := s.users.Create(ctx, &storage.User{
		Email:          email,
		FirstName:      firstName,
		LastName:       lastName,
		PasswordDigest: digest,
	}, storage.ProviderLocal)
	if err != nil {
		if errors.Is(err, storage.ErrEmailTaken) {
			return nil, ErrEmailInUse
		}
		return nil, ErrServer("failed to create user")
	}

	if err := s.sendConfirmation(ctx, user); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.UsersRegistered.Add(ctx, 1)
	}
	s.logger.Info("User registered", "user_id", user.ID)

	return user, nil
}

// ConfirmEmail verifies a confirmation token, marks the account
// confirmed, and starts a session.
func (s *Service) ConfirmEmail(ctx context.Context, token, audience string) (*Session, error) {
	payload, err := s.verify(ctx, tokens.KindConfirmation, token)
	if err != nil {
		return nil, err
	}

	user, err := s.users.ConfirmEmail(ctx, payload.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, ErrServer("failed to confirm email")
	}

	if s.metrics != nil {
		s.metrics.EmailsConfirmed.Add(ctx, 1)
	}
	s.logger.Info("Email confirmed", "user_id", user.ID)

	return s.startSession(ctx, user, audience)
}

// Login authenticates an email/password pair. Logins against
// unconfirmed accounts fail and trigger exactly one fresh confirmation
// email.
func (s *Service) Login(ctx context.Context, email, password, audience string) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "auth.login")
	defer span.End()

	session, err := s.login(ctx, email, password, audience)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}

	instrumentation.AddFlowAttributes(span, session.User.ID, string(tokens.KindAccess))
	instrumentation.SetSpanSuccess(span)
	return session, nil
}

func (s *Service) login(ctx context.Context, email, password, audience string) (*Session, error) {
	email = util.NormalizeEmail(email)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			// Burn a hash comparison so missing accounts take as
			// long as wrong passwords.
			s.hasher.Verify(storage.PasswordUnset, password)
			s.recordLogin(ctx, false)
			return nil, ErrInvalidCredentials
		}
		return nil, ErrServer("failed to look up user")
	}

	if !s.hasher.Verify(user.PasswordDigest, password) {
		s.recordLogin(ctx, false)
		return nil, ErrInvalidCredentials
	}

	if !user.Confirmed {
		if err := s.sendConfirmation(ctx, user); err != nil {
			return nil, err
		}
		s.recordLogin(ctx, false)
		return nil, ErrEmailNotConfirmed
	}

	session, err := s.startSession(ctx, user, audience)
	if err != nil {
		return nil, err
	}

	s.recordLogin(ctx, true)
	s.logger.Info("User logged in", "user_id", user.ID)

	return session, nil
}

// RefreshAccess rotates a refresh token: the presented instance is
// revoked for its remaining lifetime and a fresh access/refresh pair is
// issued under a new instance id. A second use of the same instance
// fails with ErrTokenRevoked.
func (s *Service) RefreshAccess(ctx context.Context, refreshToken, audience string) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "auth.refresh")
	defer span.End()

	session, err := s.refreshAccess(ctx, refreshToken, audience)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}

	instrumentation.AddFlowAttributes(span, session.User.ID, string(tokens.KindRefresh))
	instrumentation.SetSpanSuccess(span)
	return session, nil
}

func (s *Service) refreshAccess(ctx context.Context, refreshToken, audience string) (*Session, error) {
	payload, err := s.verify(ctx, tokens.KindRefresh, refreshToken)
	if err != nil {
		return nil, err
	}

	revoked, err := s.revocations.IsRevoked(ctx, payload.UserID, payload.TokenID)
	if err != nil {
		return nil, ErrServer("failed to check revocation")
	}
	if revoked {
		s.logger.Warn("Refresh token reuse detected",
			"user_id", payload.UserID,
			"token_id", util.SafeTruncate(payload.TokenID, 8))
		return nil, ErrTokenRevoked
	}

	user, err := s.users.GetByID(ctx, payload.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, ErrServer("failed to look up user")
	}

	if payload.Confirmed != user.Confirmed {
		return nil, ErrStaleConfirmation
	}

	// First verifier wins: the presented instance is revoked before
	// its replacement exists.
	if err := s.revoke(ctx, payload); err != nil {
		return nil, err
	}

	session, err := s.startSession(ctx, user, audience)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.TokensRefreshed.Add(ctx, 1)
	}

	return session, nil
}

// Logout revokes the refresh token instance for its remaining
// lifetime. Revoking an already-expired token is a no-op success.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	payload, err := s.verify(ctx, tokens.KindRefresh, refreshToken)
	if err != nil {
		if err == ErrTokenExpired {
			return nil
		}
		return err
	}

	if err := s.revoke(ctx, payload); err != nil {
		return err
	}

	s.logger.Info("User logged out", "user_id", payload.UserID)
	return nil
}

// ForgotPassword hands a reset token to the mailer when the account
// exists. It never reveals whether it does.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = util.NormalizeEmail(email)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil
		}
		return ErrServer("failed to look up user")
	}

	token, err := s.codec.Issue(tokens.KindResetPassword, subject(user), "", "")
	if err != nil {
		return ErrServer("failed to issue reset token")
	}
	s.recordIssued(ctx, tokens.KindResetPassword)

	if err := s.mailer.SendPasswordReset(ctx, user.Email, token); err != nil {
		return ErrServer("failed to send reset email")
	}
	if s.metrics != nil {
		s.metrics.RecordEmailSent(ctx, string(tokens.KindResetPassword))
	}

	return nil
}

// ResetPassword verifies a reset token and stores the new password.
// It does not log the user in.
func (s *Service) ResetPassword(ctx context.Context, token, password1, password2 string) error {
	if password1 != password2 {
		return ErrPasswordMismatch
	}

	payload, err := s.verify(ctx, tokens.KindResetPassword, token)
	if err != nil {
		return err
	}

	digest, err := s.hasher.Hash(password1)
	if err != nil {
		return ErrServer("failed to hash password")
	}

	if _, err := s.users.UpdatePassword(ctx, payload.UserID, digest); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return ErrTokenInvalid
		}
		return ErrServer("failed to update password")
	}

	if s.metrics != nil {
		s.metrics.PasswordsReset.Add(ctx, 1)
	}
	s.logger.Info("Password reset", "user_id", payload.UserID)

	return nil
}

// UpdatePassword changes an authenticated user's password. Accounts
// created through OAuth carry the unset sentinel and may set their
// first local password without presenting a current one.
func (s *Service) UpdatePassword(ctx context.Context, userID, currentPassword, password1, password2, audience string) (*Session, error) {
	if password1 != password2 {
		return nil, ErrPasswordMismatch
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, ErrServer("failed to look up user")
	}

	hasPassword := user.PasswordDigest != storage.PasswordUnset
	if hasPassword {
		if !s.hasher.Verify(user.PasswordDigest, currentPassword) {
			return nil, ErrWrongPassword
		}
		if s.hasher.Verify(user.PasswordDigest, password1) {
			return nil, ErrSamePassword
		}
	}

	digest, err := s.hasher.Hash(password1)
	if err != nil {
		return nil, ErrServer("failed to hash password")
	}

	user, err = s.users.UpdatePassword(ctx, user.ID, digest)
	if err != nil {
		return nil, ErrServer("failed to update password")
	}

	s.logger.Info("Password updated", "user_id", user.ID)

	return s.startSession(ctx, user, audience)
}

// AuthorizationURL starts an OAuth flow: it mints a CSRF state and
// builds the provider's authorization URL carrying it.
func (s *Service) AuthorizationURL(provider string) (url, state string, err error) {
	state, err = security.GenerateState()
	if err != nil {
		return "", "", ErrServer("failed to generate state")
	}

	url, err = s.registry.AuthorizationURL(provider, state)
	if err != nil {
		return "", "", ErrProviderNotFound
	}

	return url, state, nil
}

// OAuthLogin completes an OAuth callback: state check, code exchange,
// profile fetch, then find-or-create the account and start a session.
func (s *Service) OAuthLogin(ctx context.Context, provider, code, state, expectedState, audience string) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "auth.oauth_login")
	defer span.End()
	instrumentation.AddProviderAttributes(span, provider)

	session, err := s.oauthLogin(ctx, provider, code, state, expectedState, audience)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}

	instrumentation.AddFlowAttributes(span, session.User.ID, string(tokens.KindAccess))
	instrumentation.SetSpanSuccess(span)
	return session, nil
}

func (s *Service) oauthLogin(ctx context.Context, provider, code, state, expectedState, audience string) (*Session, error) {
	profile, err := s.registry.Exchange(ctx, provider, code, state, expectedState)
	if s.metrics != nil {
		s.metrics.RecordOAuthExchange(ctx, provider, err)
	}
	if err != nil {
		return nil, mapProviderError(err)
	}

	tag, err := providerTag(provider)
	if err != nil {
		return nil, ErrProviderNotFound
	}

	email := util.NormalizeEmail(profile.Email)

	user, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if err := s.users.LinkProvider(ctx, user.ID, tag); err != nil {
			return nil, ErrServer("failed to link provider")
		}
	case errors.Is(err, storage.ErrUserNotFound):
		if profile.FirstName == "" {
			return nil, ErrMissingName
		}
		// Provider-asserted identity: the account starts confirmed
		// and without a local password.
		user, err = s.users.Create(ctx, &storage.User{
			Email:          email,
			FirstName:      profile.FirstName,
			LastName:       profile.LastName,
			PasswordDigest: storage.PasswordUnset,
			Confirmed:      true,
		}, tag)
		if err != nil {
			return nil, ErrServer("failed to create user")
		}
		if s.metrics != nil {
			s.metrics.UsersRegistered.Add(ctx, 1)
		}
	default:
		return nil, ErrServer("failed to look up user")
	}

	s.logger.Info("OAuth login", "user_id", user.ID, "provider", provider)

	return s.startSession(ctx, user, audience)
}

// Me returns the account behind a bearer access token.
func (s *Service) Me(ctx context.Context, accessToken string) (*storage.User, error) {
	payload, err := s.verify(ctx, tokens.KindAccess, accessToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, payload.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, ErrServer("failed to look up user")
	}

	return user, nil
}

// ProviderLinks returns the identity providers linked to an account.
func (s *Service) ProviderLinks(ctx context.Context, userID string) ([]storage.ProviderLink, error) {
	links, err := s.users.Providers(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, ErrServer("failed to look up providers")
	}
	return links, nil
}

// RefreshTTL is the lifetime of newly issued refresh tokens, used by
// the HTTP layer for cookie expiry.
func (s *Service) RefreshTTL() time.Duration {
	return s.codec.TTL(tokens.KindRefresh)
}

// startSession issues an access/refresh pair for the user.
func (s *Service) startSession(ctx context.Context, user *storage.User, audience string) (*Session, error) {
	access, refresh, err := s.codec.IssuePair(subject(user), audience)
	if err != nil {
		return nil, ErrServer("failed to issue tokens")
	}

	s.recordIssued(ctx, tokens.KindAccess)
	s.recordIssued(ctx, tokens.KindRefresh)

	return &Session{
		User:         user,
		AccessToken:  access,
		RefreshToken: refresh,
		RefreshTTL:   s.codec.TTL(tokens.KindRefresh),
	}, nil
}

// sendConfirmation issues a confirmation token and hands it to the mailer.
func (s *Service) sendConfirmation(ctx context.Context, user *storage.User) error {
	token, err := s.codec.Issue(tokens.KindConfirmation, subject(user), "", "")
	if err != nil {
		return ErrServer("failed to issue confirmation token")
	}
	s.recordIssued(ctx, tokens.KindConfirmation)

	if err := s.mailer.SendConfirmation(ctx, user.Email, token); err != nil {
		return ErrServer("failed to send confirmation email")
	}
	if s.metrics != nil {
		s.metrics.RecordEmailSent(ctx, string(tokens.KindConfirmation))
	}

	return nil
}

// verify wraps codec verification and maps its failures onto the
// service error taxonomy.
func (s *Service) verify(ctx context.Context, kind tokens.Kind, token string) (*tokens.Payload, error) {
	payload, err := s.codec.Verify(kind, token)
	if err == nil {
		return payload, nil
	}

	switch {
	case errors.Is(err, tokens.ErrExpired):
		s.recordVerifyFailure(ctx, kind, "expired")
		return nil, ErrTokenExpired
	case errors.Is(err, tokens.ErrMalformed), errors.Is(err, tokens.ErrClaimMismatch):
		s.recordVerifyFailure(ctx, kind, "invalid")
		return nil, ErrTokenInvalid
	default:
		// Anything else is a signing misconfiguration, not a bad token.
		s.logger.Error("Token verification fault", "kind", kind, "error", err)
		return nil, ErrServer("token verification fault")
	}
}

// revoke marks a refresh token instance unusable for the remainder of
// its lifetime.
func (s *Service) revoke(ctx context.Context, payload *tokens.Payload) error {
	ttl := payload.ExpiresAt.Sub(s.now())
	if err := s.revocations.Revoke(ctx, payload.UserID, payload.TokenID, ttl); err != nil {
		return ErrServer("failed to revoke token")
	}
	if s.metrics != nil {
		s.metrics.TokensRevoked.Add(ctx, 1)
	}
	return nil
}

func (s *Service) recordIssued(ctx context.Context, kind tokens.Kind) {
	if s.metrics != nil {
		s.metrics.RecordTokenIssued(ctx, string(kind))
	}
}

func (s *Service) recordVerifyFailure(ctx context.Context, kind tokens.Kind, reason string) {
	if s.metrics != nil {
		s.metrics.RecordVerificationFailure(ctx, string(kind), reason)
	}
}

func (s *Service) recordLogin(ctx context.Context, ok bool) {
	if s.metrics == nil {
		return
	}
	if ok {
		s.metrics.LoginsSucceeded.Add(ctx, 1)
	} else {
		s.metrics.LoginsFailed.Add(ctx, 1)
	}
}

func subject(user *storage.User) tokens.Subject {
	return tokens.Subject{
		ID:        user.ID,
		Email:     user.Email,
		Confirmed: user.Confirmed,
	}
}

// mapProviderError converts registry failures to boundary errors.
func mapProviderError(err error) *AuthError {
	switch {
	case errors.Is(err, providers.ErrNotConfigured):
		return ErrProviderNotFound
	case errors.Is(err, providers.ErrStateMismatch):
		return ErrStateMismatch
	case errors.Is(err, providers.ErrProfileIncomplete):
		return ErrProfileIncomplete
	case errors.Is(err, providers.ErrExchangeFailed):
		return ErrUpstream("code exchange failed")
	case errors.Is(err, providers.ErrProfileFailed):
		return ErrUpstream("profile fetch failed")
	default:
		return ErrServer("oauth flow failed")
	}
}

// providerTag maps a provider name onto the storage tag.
func providerTag(name string) (storage.ProviderTag, error) {
	switch name {
	case "google":
		return storage.ProviderGoogle, nil
	case "microsoft":
		return storage.ProviderMicrosoft, nil
	case "facebook":
		return storage.ProviderFacebook, nil
	case "github":
		return storage.ProviderGitHub, nil
	default:
		return "", fmt.Errorf("unknown provider %q", name)
	}
}
