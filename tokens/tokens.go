package tokens

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/giantswarm/authcore/security"
)

// Kind identifies one of the four token kinds issued by the service.
type Kind string

const (
	// KindAccess is the short-lived, asymmetrically signed credential
	// returned to clients for bearer-header use.
	KindAccess Kind = "access"

	// KindRefresh is the medium-lived, symmetrically signed credential
	// exchanged for a new access/refresh pair. Each issuance carries a
	// unique instance id, the unit of revocation.
	KindRefresh Kind = "refresh"

	// KindConfirmation is the single-purpose token mailed out to confirm
	// an email address.
	KindConfirmation Kind = "confirmation"

	// KindResetPassword is the single-purpose token mailed out for
	// password resets.
	KindResetPassword Kind = "resetPassword"
)

// Verification failures are collapsed to a generic 401/400 at the HTTP
// boundary; the distinction below exists so callers can decide whether to
// prompt re-authentication (expired) or reject outright (anything else).
var (
	// ErrExpired indicates the token was valid but its lifetime has passed.
	ErrExpired = errors.New("token expired")

	// ErrMalformed indicates the token could not be parsed or its
	// signature did not verify against the kind's pinned key.
	ErrMalformed = errors.New("invalid token")

	// ErrClaimMismatch indicates the token was signed by us but its issuer
	// or audience does not match this deployment.
	ErrClaimMismatch = errors.New("token issuer or audience mismatch")
)

const (
	// DefaultAccessTTL is the default access token lifetime.
	DefaultAccessTTL = 10 * time.Minute

	// DefaultRefreshTTL is the default refresh token lifetime.
	DefaultRefreshTTL = 7 * 24 * time.Hour

	// DefaultConfirmationTTL is the default confirmation token lifetime.
	DefaultConfirmationTTL = time.Hour

	// DefaultResetPasswordTTL is the default reset-password token lifetime.
	DefaultResetPasswordTTL = 30 * time.Minute

	// minSecretLength is the minimum length for HS256 signing secrets.
	minSecretLength = 32
)

// Subject is the identity a token is issued for.
type Subject struct {
	ID        string
	Email     string
	Confirmed bool
}

// Payload is the verified content of a token.
type Payload struct {
	Kind      Kind
	UserID    string
	Email     string
	Confirmed bool      // refresh, confirmation, and reset-password kinds
	TokenID   string    // refresh kind only: the revocable instance id
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Config holds the key material and lifetimes for the codec.
type Config struct {
	// Issuer is the service identity placed in the "iss" claim (required).
	Issuer string

	// Domain is the default audience and, compiled as a regular
	// expression, the pattern verified audiences must match (required).
	Domain string

	// AccessPrivateKey signs access tokens (required).
	AccessPrivateKey *rsa.PrivateKey

	// AccessPublicKey verifies access tokens. Derived from
	// AccessPrivateKey when nil.
	AccessPublicKey *rsa.PublicKey

	// Per-kind HS256 secrets (required, at least 32 bytes each).
	RefreshSecret       []byte
	ConfirmationSecret  []byte
	ResetPasswordSecret []byte

	// Per-kind lifetimes. Zero values use the defaults above.
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	ConfirmationTTL  time.Duration
	ResetPasswordTTL time.Duration

	// ClockSkew is the grace period applied to expiry and max-age checks.
	// Default: 5 seconds.
	ClockSkew time.Duration

	// Now overrides the clock, for tests. Default: time.Now.
	Now func() time.Time
}

// Codec issues and verifies tokens. It is stateless and safe for
// concurrent use; issuing never consults any store.
type Codec struct {
	issuer   string
	domain   string
	audience *regexp.Regexp

	accessPrivateKey *rsa.PrivateKey
	accessPublicKey  *rsa.PublicKey

	refreshSecret       []byte
	confirmationSecret  []byte
	resetPasswordSecret []byte

	accessTTL        time.Duration
	refreshTTL       time.Duration
	confirmationTTL  time.Duration
	resetPasswordTTL time.Duration

	clockSkew time.Duration
	now       func() time.Time
}

// Claim layouts follow the original wire format so tokens stay compatible
// across deployments: the user id travels as "id", the refresh instance id
// as "tokenId".
type accessClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"id"`
}

type refreshClaims struct {
	jwt.RegisteredClaims
	UserID    string `json:"id"`
	Confirmed bool   `json:"confirmed"`
	TokenID   string `json:"tokenId"`
}

type emailClaims struct {
	jwt.RegisteredClaims
	UserID    string `json:"id"`
	Confirmed bool   `json:"confirmed"`
}

// NewCodec validates the configuration and builds a codec.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}
	if cfg.Domain == "" {
		return nil, fmt.Errorf("domain is required")
	}
	if cfg.AccessPrivateKey == nil {
		return nil, fmt.Errorf("access private key is required")
	}

	audience, err := regexp.Compile(cfg.Domain)
	if err != nil {
		return nil, fmt.Errorf("domain is not a valid audience pattern: %w", err)
	}

	for kind, secret := range map[Kind][]byte{
		KindRefresh:       cfg.RefreshSecret,
		KindConfirmation:  cfg.ConfirmationSecret,
		KindResetPassword: cfg.ResetPasswordSecret,
	} {
		if len(secret) < minSecretLength {
			return nil, fmt.Errorf("%s secret must be at least %d bytes", kind, minSecretLength)
		}
	}

	publicKey := cfg.AccessPublicKey
	if publicKey == nil {
		publicKey = &cfg.AccessPrivateKey.PublicKey
	}

	c := &Codec{
		issuer:              cfg.Issuer,
		domain:              cfg.Domain,
		audience:            audience,
		accessPrivateKey:    cfg.AccessPrivateKey,
		accessPublicKey:     publicKey,
		refreshSecret:       cfg.RefreshSecret,
		confirmationSecret:  cfg.ConfirmationSecret,
		resetPasswordSecret: cfg.ResetPasswordSecret,
		accessTTL:           cfg.AccessTTL,
		refreshTTL:          cfg.RefreshTTL,
		confirmationTTL:     cfg.ConfirmationTTL,
		resetPasswordTTL:    cfg.ResetPasswordTTL,
		clockSkew:           cfg.ClockSkew,
		now:                 cfg.Now,
	}

	if c.accessTTL <= 0 {
		c.accessTTL = DefaultAccessTTL
	}
	if c.refreshTTL <= 0 {
		c.refreshTTL = DefaultRefreshTTL
	}
	if c.confirmationTTL <= 0 {
		c.confirmationTTL = DefaultConfirmationTTL
	}
	if c.resetPasswordTTL <= 0 {
		c.resetPasswordTTL = DefaultResetPasswordTTL
	}
	if c.clockSkew <= 0 {
		c.clockSkew = security.DefaultClockSkewGracePeriod
	}
	if c.now == nil {
		c.now = time.Now
	}

	return c, nil
}

// TTL returns the configured lifetime for a token kind.
func (c *Codec) TTL(kind Kind) time.Duration {
	switch kind {
	case KindAccess:
		return c.accessTTL
	case KindRefresh:
		return c.refreshTTL
	case KindConfirmation:
		return c.confirmationTTL
	case KindResetPassword:
		return c.resetPasswordTTL
	}
	return 0
}

// Issue signs a token of the given kind for the subject.
//
// The audience defaults to the configured domain when empty. For refresh
// tokens an empty tokenID mints a fresh random instance id; passing an id
// propagates it unchanged (the rotation policy in the orchestrator always
// mints fresh ids). The tokenID argument is ignored for other kinds.
func (c *Codec) Issue(kind Kind, sub Subject, audience, tokenID string) (string, error) {
	if sub.ID == "" {
		return "", fmt.Errorf("subject id is required")
	}

	reg := c.registeredClaims(sub, audience, c.TTL(kind))

	switch kind {
	case KindAccess:
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, accessClaims{
			RegisteredClaims: reg,
			UserID:           sub.ID,
		})
		signed, err := token.SignedString(c.accessPrivateKey)
		if err != nil {
			return "", fmt.Errorf("failed to sign access token: %w", err)
		}
		return signed, nil

	case KindRefresh:
		if tokenID == "" {
			tokenID = uuid.NewString()
		}
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims{
			RegisteredClaims: reg,
			UserID:           sub.ID,
			Confirmed:        sub.Confirmed,
			TokenID:          tokenID,
		})
		signed, err := token.SignedString(c.refreshSecret)
		if err != nil {
			return "", fmt.Errorf("failed to sign refresh token: %w", err)
		}
		return signed, nil

	case KindConfirmation, KindResetPassword:
		secret := c.confirmationSecret
		if kind == KindResetPassword {
			secret = c.resetPasswordSecret
		}
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, emailClaims{
			RegisteredClaims: reg,
			UserID:           sub.ID,
			Confirmed:        sub.Confirmed,
		})
		signed, err := token.SignedString(secret)
		if err != nil {
			return "", fmt.Errorf("failed to sign %s token: %w", kind, err)
		}
		return signed, nil
	}

	return "", fmt.Errorf("unknown token kind %q", kind)
}

// IssuePair issues an access and refresh token for the subject in one call.
// The refresh token always carries a freshly minted instance id.
func (c *Codec) IssuePair(sub Subject, audience string) (access, refresh string, err error) {
	access, err = c.Issue(KindAccess, sub, audience, "")
	if err != nil {
		return "", "", err
	}
	refresh, err = c.Issue(KindRefresh, sub, audience, "")
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// Verify parses and validates a token of the given kind.
//
// The key and algorithm are selected by kind, never by the token header.
// Beyond the signature, verification enforces a max age equal to the kind's
// configured lifetime independent of the token's own "exp", issuer equality,
// and audience matching against the domain pattern. Failures are ErrExpired,
// ErrMalformed, or ErrClaimMismatch.
func (c *Codec) Verify(kind Kind, token string) (*Payload, error) {
	switch kind {
	case KindAccess:
		var claims accessClaims
		if err := c.parse(token, &claims, jwt.SigningMethodRS256.Alg(), c.accessPublicKey); err != nil {
			return nil, err
		}
		if err := c.validateClaims(&claims.RegisteredClaims, kind); err != nil {
			return nil, err
		}
		if claims.UserID == "" {
			return nil, fmt.Errorf("%w: missing subject id", ErrMalformed)
		}
		return c.payload(kind, &claims.RegisteredClaims, claims.UserID, false, ""), nil

	case KindRefresh:
		var claims refreshClaims
		if err := c.parse(token, &claims, jwt.SigningMethodHS256.Alg(), c.refreshSecret); err != nil {
			return nil, err
		}
		if err := c.validateClaims(&claims.RegisteredClaims, kind); err != nil {
			return nil, err
		}
		if claims.UserID == "" || claims.TokenID == "" {
			return nil, fmt.Errorf("%w: missing subject or instance id", ErrMalformed)
		}
		return c.payload(kind, &claims.RegisteredClaims, claims.UserID, claims.Confirmed, claims.TokenID), nil

	case KindConfirmation, KindResetPassword:
		secret := c.confirmationSecret
		if kind == KindResetPassword {
			secret = c.resetPasswordSecret
		}
		var claims emailClaims
		if err := c.parse(token, &claims, jwt.SigningMethodHS256.Alg(), secret); err != nil {
			return nil, err
		}
		if err := c.validateClaims(&claims.RegisteredClaims, kind); err != nil {
			return nil, err
		}
		if claims.UserID == "" {
			return nil, fmt.Errorf("%w: missing subject id", ErrMalformed)
		}
		return c.payload(kind, &claims.RegisteredClaims, claims.UserID, claims.Confirmed, ""), nil
	}

	return nil, fmt.Errorf("unknown token kind %q", kind)
}

func (c *Codec) registeredClaims(sub Subject, audience string, ttl time.Duration) jwt.RegisteredClaims {
	if audience == "" {
		audience = c.domain
	}
	now := c.now()
	return jwt.RegisteredClaims{
		Issuer:    c.issuer,
		Subject:   sub.Email,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

// parse verifies the signature with the pinned algorithm and fills claims.
// Claim validation is done manually afterwards so expiry can be reported
// separately from malformed tokens.
func (c *Codec) parse(token string, claims jwt.Claims, alg string, key any) error {
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{alg}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

func (c *Codec) validateClaims(reg *jwt.RegisteredClaims, kind Kind) error {
	now := c.now()

	if reg.ExpiresAt == nil || reg.IssuedAt == nil {
		return fmt.Errorf("%w: missing exp or iat claim", ErrMalformed)
	}
	if now.After(reg.ExpiresAt.Time.Add(c.clockSkew)) {
		return ErrExpired
	}
	// Max age is enforced from iat against the configured lifetime,
	// independent of whatever exp the token carries.
	if now.Sub(reg.IssuedAt.Time) > c.TTL(kind)+c.clockSkew {
		return ErrExpired
	}

	if reg.Issuer != c.issuer {
		return fmt.Errorf("%w: unexpected issuer", ErrClaimMismatch)
	}

	matched := false
	for _, aud := range reg.Audience {
		if c.audience.MatchString(aud) {
			matched = true
			break
		}
	}
	if !matched {
		return fmt.Errorf("%w: unexpected audience", ErrClaimMismatch)
	}

	return nil
}

func (c *Codec) payload(kind Kind, reg *jwt.RegisteredClaims, userID string, confirmed bool, tokenID string) *Payload {
	return &Payload{
		Kind:      kind,
		UserID:    userID,
		Email:     reg.Subject,
		Confirmed: confirmed,
		TokenID:   tokenID,
		IssuedAt:  reg.IssuedAt.Time,
		ExpiresAt: reg.ExpiresAt.Time,
	}
}
