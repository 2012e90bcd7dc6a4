package storage

import (
	"context"
	"errors"
	"time"
)

// Typed errors so callers can distinguish user-facing conditions from
// transient backend failures.
var (
	// ErrUserNotFound indicates no user matches the given id or email.
	ErrUserNotFound = errors.New("user not found")

	// ErrEmailTaken indicates the email is already registered.
	ErrEmailTaken = errors.New("email already in use")
)

// PasswordUnset is the sentinel digest of an account that has no local
// password. It is only valid while the account has at least one non-local
// OAuth provider link, and it never verifies against any password.
const PasswordUnset = "UNSET"

// ProviderTag identifies an authentication provider linked to a user.
type ProviderTag string

// The closed set of supported provider tags. Local is the password
// provider; it has no OAuth endpoints.
const (
	ProviderLocal     ProviderTag = "local"
	ProviderGoogle    ProviderTag = "google"
	ProviderMicrosoft ProviderTag = "microsoft"
	ProviderFacebook  ProviderTag = "facebook"
	ProviderGitHub    ProviderTag = "github"
)

// User is the identity record owned by the external user store. The token
// core consumes it but never mutates it directly.
type User struct {
	ID             string
	Email          string // case-normalized, unique
	FirstName      string
	LastName       string
	PasswordDigest string // opaque hash, or PasswordUnset
	Confirmed      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ProviderLink records a provider linked to a user account.
type ProviderLink struct {
	Provider  ProviderTag
	CreatedAt time.Time
}

// RevocationCache marks specific refresh-token instances unusable before
// their natural expiry. Entries expire on their own once the underlying
// token would have expired anyway, so the revoked set stays bounded to the
// refresh-token lifetime window and no delete operation is needed.
//
// Implementations must be safe for concurrent use; Revoke and IsRevoked are
// individually atomic.
type RevocationCache interface {
	// IsRevoked reports whether the token instance has been revoked.
	IsRevoked(ctx context.Context, userID, tokenID string) (bool, error)

	// Revoke marks the token instance unusable for ttl. A non-positive
	// ttl means the token is already naturally expired and the entry is
	// not written.
	Revoke(ctx context.Context, userID, tokenID string, ttl time.Duration) error
}

// UserStore is the boundary of the external relational user store.
// Emails are normalized by the caller before reaching the store. All
// methods accept context.Context for cancellation and tracing.
type UserStore interface {
	// Create persists a new user and links the given provider.
	// Returns ErrEmailTaken when the email is already registered.
	Create(ctx context.Context, user *User, provider ProviderTag) (*User, error)

	// GetByEmail returns the user with the given normalized email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByID returns the user with the given id.
	GetByID(ctx context.Context, id string) (*User, error)

	// ConfirmEmail sets confirmed=true. Confirmation is monotonic; it is
	// never reverted.
	ConfirmEmail(ctx context.Context, id string) (*User, error)

	// UpdatePassword replaces the user's password digest.
	UpdatePassword(ctx context.Context, id, digest string) (*User, error)

	// LinkProvider records a provider link for the user. Linking an
	// already-linked provider is a no-op.
	LinkProvider(ctx context.Context, id string, provider ProviderTag) error

	// Providers lists the providers linked to the user.
	Providers(ctx context.Context, id string) ([]ProviderLink, error)
}
