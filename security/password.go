package security

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hasher is the opaque password hashing capability used by the
// authentication flows. Implementations must be safe for concurrent use.
type Hasher interface {
	// Hash derives a storable digest from a plaintext password.
	Hash(password string) (string, error)

	// Verify reports whether the password matches the digest.
	// Implementations must take the same time for unknown digests as for
	// real ones to avoid leaking account existence.
	Verify(digest, password string) bool
}

// dummyBcryptHash is a pre-computed bcrypt hash (of "test") compared against
// when no real digest is available. This ensures a bcrypt comparison is
// always performed, preventing timing attacks that could reveal whether an
// account exists or has a local password.
const dummyBcryptHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// BcryptHasher implements Hasher with bcrypt from golang.org/x/crypto.
type BcryptHasher struct {
	// Cost is the bcrypt work factor. Zero uses bcrypt.DefaultCost.
	Cost int
}

// Hash derives a bcrypt digest from the password.
func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	digest, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(digest), nil
}

// Verify reports whether the password matches the bcrypt digest.
// When the digest is not a usable hash (empty or the UNSET sentinel of an
// OAuth-only account), the comparison runs against a dummy hash and always
// fails, keeping the operation constant-time.
func (h BcryptHasher) Verify(digest, password string) bool {
	compareTo := digest
	usable := true
	if _, err := bcrypt.Cost([]byte(digest)); err != nil {
		compareTo = dummyBcryptHash
		usable = false
	}

	err := bcrypt.CompareHashAndPassword([]byte(compareTo), []byte(password))
	return usable && err == nil
}
