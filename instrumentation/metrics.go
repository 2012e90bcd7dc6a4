package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the authentication service
type Metrics struct {
	// Account lifecycle
	UsersRegistered metric.Int64Counter
	EmailsConfirmed metric.Int64Counter
	PasswordsReset  metric.Int64Counter

	// Login flow
	LoginsSucceeded metric.Int64Counter
	LoginsFailed    metric.Int64Counter

	// Token lifecycle
	TokensIssued             metric.Int64Counter
	TokenVerificationsFailed metric.Int64Counter
	TokensRefreshed          metric.Int64Counter
	TokensRevoked            metric.Int64Counter

	// OAuth flow
	OAuthExchanges      metric.Int64Counter
	OAuthExchangeErrors metric.Int64Counter

	// Outbound email
	EmailsSent metric.Int64Counter
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}
	serviceMeter := inst.Meter("service")
	tokenMeter := inst.Meter("tokens")
	providerMeter := inst.Meter("providers")

	var err error
	m.UsersRegistered, err = serviceMeter.Int64Counter(
		"auth.users.registered",
		metric.WithDescription("Number of user accounts created"),
		metric.WithUnit("{user}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create users.registered counter: %w", err)
	}

	m.EmailsConfirmed, err = serviceMeter.Int64Counter(
		"auth.emails.confirmed",
		metric.WithDescription("Number of email addresses confirmed"),
		metric.WithUnit("{confirmation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create emails.confirmed counter: %w", err)
	}

	m.PasswordsReset, err = serviceMeter.Int64Counter(
		"auth.passwords.reset",
		metric.WithDescription("Number of completed password resets"),
		metric.WithUnit("{reset}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create passwords.reset counter: %w", err)
	}

	m.LoginsSucceeded, err = serviceMeter.Int64Counter(
		"auth.logins.succeeded",
		metric.WithDescription("Number of successful logins"),
		metric.WithUnit("{login}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create logins.succeeded counter: %w", err)
	}

	m.LoginsFailed, err = serviceMeter.Int64Counter(
		"auth.logins.failed",
		metric.WithDescription("Number of failed logins"),
		metric.WithUnit("{login}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create logins.failed counter: %w", err)
	}

	m.TokensIssued, err = tokenMeter.Int64Counter(
		"auth.tokens.issued",
		metric.WithDescription("Number of tokens issued, by kind"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens.issued counter: %w", err)
	}

	m.TokenVerificationsFailed, err = tokenMeter.Int64Counter(
		"auth.tokens.verifications.failed",
		metric.WithDescription("Number of failed token verifications, by kind and reason"),
		metric.WithUnit("{verification}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens.verifications.failed counter: %w", err)
	}

	m.TokensRefreshed, err = tokenMeter.Int64Counter(
		"auth.tokens.refreshed",
		metric.WithDescription("Number of access tokens minted from refresh tokens"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens.refreshed counter: %w", err)
	}

	m.TokensRevoked, err = tokenMeter.Int64Counter(
		"auth.tokens.revoked",
		metric.WithDescription("Number of refresh token instances revoked"),
		metric.WithUnit("{revocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens.revoked counter: %w", err)
	}

	m.OAuthExchanges, err = providerMeter.Int64Counter(
		"auth.oauth.exchanges",
		metric.WithDescription("Number of completed OAuth code exchanges, by provider"),
		metric.WithUnit("{exchange}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth.exchanges counter: %w", err)
	}

	m.OAuthExchangeErrors, err = providerMeter.Int64Counter(
		"auth.oauth.exchange.errors",
		metric.WithDescription("Number of failed OAuth code exchanges, by provider"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth.exchange.errors counter: %w", err)
	}

	m.EmailsSent, err = serviceMeter.Int64Counter(
		"auth.emails.sent",
		metric.WithDescription("Number of confirmation and reset emails sent, by kind"),
		metric.WithUnit("{email}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create emails.sent counter: %w", err)
	}

	return m, nil
}

// RecordTokenIssued increments the issued-token counter for a kind (nil-safe)
func (m *Metrics) RecordTokenIssued(ctx context.Context, kind string) {
	if m == nil || m.TokensIssued == nil {
		return
	}
	m.TokensIssued.Add(ctx, 1, metric.WithAttributes(attribute.String("token.kind", kind)))
}

// RecordVerificationFailure increments the failed-verification counter (nil-safe)
func (m *Metrics) RecordVerificationFailure(ctx context.Context, kind, reason string) {
	if m == nil || m.TokenVerificationsFailed == nil {
		return
	}
	m.TokenVerificationsFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("token.kind", kind),
		attribute.String("failure.reason", reason),
	))
}

// RecordOAuthExchange increments the exchange counters for a provider (nil-safe)
func (m *Metrics) RecordOAuthExchange(ctx context.Context, provider string, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("provider.name", provider))
	if err != nil {
		if m.OAuthExchangeErrors != nil {
			m.OAuthExchangeErrors.Add(ctx, 1, attrs)
		}
		return
	}
	if m.OAuthExchanges != nil {
		m.OAuthExchanges.Add(ctx, 1, attrs)
	}
}

// RecordEmailSent increments the sent-email counter for a kind (nil-safe)
func (m *Metrics) RecordEmailSent(ctx context.Context, kind string) {
	if m == nil || m.EmailsSent == nil {
		return
	}
	m.EmailsSent.Add(ctx, 1, metric.WithAttributes(attribute.String("email.kind", kind)))
}
