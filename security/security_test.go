package security

import (
	"strings"
	"testing"
)

func TestGenerateState(t *testing.T) {
	state, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState() error = %v", err)
	}
	if len(state) != stateEntropyBytes*2 {
		t.Errorf("state length = %d, want %d hex characters", len(state), stateEntropyBytes*2)
	}

	other, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState() error = %v", err)
	}
	if state == other {
		t.Error("two generated states are identical")
	}
}

func TestStatesEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"equal", "deadbeef", "deadbeef", true},
		{"different", "deadbeef", "deadbeee", false},
		{"different lengths", "deadbeef", "dead", false},
		{"empty a", "", "deadbeef", false},
		{"empty b", "deadbeef", "", false},
		{"both empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatesEqual(tt.a, tt.b); got != tt.want {
				t.Errorf("StatesEqual(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestCookieSignerRoundTrip(t *testing.T) {
	signer, err := NewCookieSigner([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewCookieSigner() error = %v", err)
	}

	// JWT-shaped values contain dots; the signature must still verify.
	value := "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJhQGIuY29tIn0.c2ln"
	signed := signer.Sign(value)

	got, ok := signer.Verify(signed)
	if !ok {
		t.Fatal("Verify() rejected a freshly signed value")
	}
	if got != value {
		t.Errorf("Verify() = %q, want %q", got, value)
	}
}

func TestCookieSignerRejectsTampering(t *testing.T) {
	signer, err := NewCookieSigner([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewCookieSigner() error = %v", err)
	}

	signed := signer.Sign("refresh-token-value")

	tests := []struct {
		name  string
		input string
	}{
		{"flipped value byte", "Refresh" + signed[7:]},
		{"truncated signature", signed[:len(signed)-2]},
		{"no signature", "refresh-token-value"},
		{"empty", ""},
		{"only separator", "."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := signer.Verify(tt.input); ok {
				t.Errorf("Verify(%q) accepted a tampered value", tt.input)
			}
		})
	}
}

func TestCookieSignerRejectsWrongKey(t *testing.T) {
	a, _ := NewCookieSigner([]byte(strings.Repeat("a", 32)))
	b, _ := NewCookieSigner([]byte(strings.Repeat("b", 32)))

	if _, ok := b.Verify(a.Sign("value")); ok {
		t.Error("Verify() accepted a value signed with a different key")
	}
}

func TestNewCookieSignerShortSecret(t *testing.T) {
	if _, err := NewCookieSigner([]byte("short")); err == nil {
		t.Error("NewCookieSigner() accepted a short secret")
	}
}

func TestBcryptHasher(t *testing.T) {
	hasher := BcryptHasher{Cost: 4} // minimum cost keeps the test fast

	digest, err := hasher.Hash("s3cret-password")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	if !hasher.Verify(digest, "s3cret-password") {
		t.Error("Verify() rejected the correct password")
	}
	if hasher.Verify(digest, "wrong-password") {
		t.Error("Verify() accepted a wrong password")
	}
}

func TestBcryptHasherUnusableDigest(t *testing.T) {
	hasher := BcryptHasher{Cost: 4}

	// The UNSET sentinel and empty digests must never verify, even against
	// the dummy hash plaintext.
	for _, digest := range []string{"UNSET", "", "not-a-hash"} {
		if hasher.Verify(digest, "test") {
			t.Errorf("Verify(%q, \"test\") = true, want false", digest)
		}
	}
}
