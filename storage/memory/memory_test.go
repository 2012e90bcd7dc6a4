package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/giantswarm/authcore/storage"
)

func TestRevocationCacheRoundTrip(t *testing.T) {
	cache := NewRevocationCache()
	defer cache.Stop()
	ctx := context.Background()

	revoked, err := cache.IsRevoked(ctx, "user-1", "token-1")
	if err != nil {
		t.Fatalf("IsRevoked() error = %v", err)
	}
	if revoked {
		t.Error("fresh cache reports a token as revoked")
	}

	if err := cache.Revoke(ctx, "user-1", "token-1", time.Hour); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	revoked, err = cache.IsRevoked(ctx, "user-1", "token-1")
	if err != nil {
		t.Fatalf("IsRevoked() error = %v", err)
	}
	if !revoked {
		t.Error("revoked token reported as usable")
	}

	// A different instance id of the same user is unaffected.
	revoked, _ = cache.IsRevoked(ctx, "user-1", "token-2")
	if revoked {
		t.Error("unrelated instance id reported as revoked")
	}
}

func TestRevocationCacheNonPositiveTTL(t *testing.T) {
	cache := NewRevocationCache()
	defer cache.Stop()
	ctx := context.Background()

	// A token past its natural expiry needs no entry.
	if err := cache.Revoke(ctx, "user-1", "token-1", 0); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if err := cache.Revoke(ctx, "user-1", "token-2", -time.Minute); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	for _, tokenID := range []string{"token-1", "token-2"} {
		if revoked, _ := cache.IsRevoked(ctx, "user-1", tokenID); revoked {
			t.Errorf("no-op revocation of %q left an entry", tokenID)
		}
	}
}

func TestRevocationCacheExpiry(t *testing.T) {
	cache := NewRevocationCacheWithInterval(10 * time.Millisecond)
	defer cache.Stop()
	ctx := context.Background()

	if err := cache.Revoke(ctx, "user-1", "token-1", 20*time.Millisecond); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		revoked, err := cache.IsRevoked(ctx, "user-1", "token-1")
		if err != nil {
			t.Fatalf("IsRevoked() error = %v", err)
		}
		if !revoked {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("revocation entry did not expire")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestUserStoreCreateAndLookup(t *testing.T) {
	store := NewUserStore()
	ctx := context.Background()

	created, err := store.Create(ctx, &storage.User{
		Email:          "a@b.com",
		FirstName:      "Ada",
		LastName:       "Lovelace",
		PasswordDigest: "digest",
	}, storage.ProviderLocal)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID == "" {
		t.Fatal("created user has no id")
	}

	byEmail, err := store.GetByEmail(ctx, "a@b.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if byEmail.ID != created.ID {
		t.Errorf("GetByEmail() id = %q, want %q", byEmail.ID, created.ID)
	}

	byID, err := store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if byID.Email != "a@b.com" {
		t.Errorf("GetByID() email = %q, want %q", byID.Email, "a@b.com")
	}

	if _, err := store.GetByEmail(ctx, "missing@b.com"); !errors.Is(err, storage.ErrUserNotFound) {
		t.Errorf("GetByEmail(missing) error = %v, want ErrUserNotFound", err)
	}
}

func TestUserStoreDuplicateEmail(t *testing.T) {
	store := NewUserStore()
	ctx := context.Background()

	if _, err := store.Create(ctx, &storage.User{Email: "a@b.com"}, storage.ProviderLocal); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := store.Create(ctx, &storage.User{Email: "a@b.com"}, storage.ProviderGoogle); !errors.Is(err, storage.ErrEmailTaken) {
		t.Errorf("Create(duplicate) error = %v, want ErrEmailTaken", err)
	}
}

func TestUserStoreConfirmAndPassword(t *testing.T) {
	store := NewUserStore()
	ctx := context.Background()

	created, _ := store.Create(ctx, &storage.User{Email: "a@b.com", PasswordDigest: "old"}, storage.ProviderLocal)

	confirmed, err := store.ConfirmEmail(ctx, created.ID)
	if err != nil {
		t.Fatalf("ConfirmEmail() error = %v", err)
	}
	if !confirmed.Confirmed {
		t.Error("ConfirmEmail() did not set confirmed")
	}

	updated, err := store.UpdatePassword(ctx, created.ID, "new")
	if err != nil {
		t.Fatalf("UpdatePassword() error = %v", err)
	}
	if updated.PasswordDigest != "new" {
		t.Errorf("UpdatePassword() digest = %q, want %q", updated.PasswordDigest, "new")
	}
}

func TestUserStoreProviderLinks(t *testing.T) {
	store := NewUserStore()
	ctx := context.Background()

	created, _ := store.Create(ctx, &storage.User{Email: "a@b.com"}, storage.ProviderGoogle)

	if err := store.LinkProvider(ctx, created.ID, storage.ProviderGitHub); err != nil {
		t.Fatalf("LinkProvider() error = %v", err)
	}
	// Linking twice is a no-op.
	if err := store.LinkProvider(ctx, created.ID, storage.ProviderGitHub); err != nil {
		t.Fatalf("LinkProvider(again) error = %v", err)
	}

	links, err := store.Providers(ctx, created.ID)
	if err != nil {
		t.Fatalf("Providers() error = %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("Providers() returned %d links, want 2", len(links))
	}
	if links[0].Provider != storage.ProviderGoogle || links[1].Provider != storage.ProviderGitHub {
		t.Errorf("Providers() = %v, want [google github]", links)
	}

	if err := store.LinkProvider(ctx, "missing", storage.ProviderLocal); !errors.Is(err, storage.ErrUserNotFound) {
		t.Errorf("LinkProvider(missing user) error = %v, want ErrUserNotFound", err)
	}
}
