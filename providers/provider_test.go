package providers

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

// fakeProvider records calls so tests can assert which steps of the
// flow were reached.
type fakeProvider struct {
	name          string
	profile       *Profile
	exchangeErr   error
	profileErr    error
	exchangeCalls int
	profileCalls  int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) AuthorizationURL(state string) string {
	return "https://provider.example/authorize?state=" + state
}

func (f *fakeProvider) ExchangeCode(ctx context.Context, code string) (string, error) {
	f.exchangeCalls++
	if f.exchangeErr != nil {
		return "", f.exchangeErr
	}
	return "upstream-access-token", nil
}

func (f *fakeProvider) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	f.profileCalls++
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return f.profile, nil
}

func TestRegistryLookup(t *testing.T) {
	registry := NewRegistry(nil)
	registry.Register(&fakeProvider{name: "google"})

	if _, err := registry.Lookup("google"); err != nil {
		t.Fatalf("Lookup(google) error = %v", err)
	}

	if _, err := registry.Lookup("gitlab"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Lookup(gitlab) error = %v, want ErrNotConfigured", err)
	}
}

func TestRegistryNames(t *testing.T) {
	registry := NewRegistry(nil)
	registry.Register(&fakeProvider{name: "google"})
	registry.Register(&fakeProvider{name: "facebook"})
	registry.Register(&fakeProvider{name: "github"})

	got := registry.Names()
	want := []string{"facebook", "github", "google"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestRegistryExchange(t *testing.T) {
	fake := &fakeProvider{
		name:    "google",
		profile: &Profile{Email: "a@b.com", FirstName: "Ada", LastName: "Lovelace"},
	}
	registry := NewRegistry(nil)
	registry.Register(fake)

	profile, err := registry.Exchange(context.Background(), "google", "code", "state-1", "state-1")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if profile.Email != "a@b.com" {
		t.Errorf("Exchange() email = %q, want %q", profile.Email, "a@b.com")
	}
	if fake.exchangeCalls != 1 || fake.profileCalls != 1 {
		t.Errorf("provider calls = (%d, %d), want (1, 1)", fake.exchangeCalls, fake.profileCalls)
	}
}

func TestRegistryExchangeStateMismatch(t *testing.T) {
	fake := &fakeProvider{name: "google", profile: &Profile{Email: "a@b.com"}}
	registry := NewRegistry(nil)
	registry.Register(fake)

	tests := []struct {
		name          string
		state         string
		expectedState string
	}{
		{"different states", "state-1", "state-2"},
		{"missing callback state", "", "state-1"},
		{"missing expected state", "state-1", ""},
		{"both missing", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := registry.Exchange(context.Background(), "google", "code", tt.state, tt.expectedState)
			if !errors.Is(err, ErrStateMismatch) {
				t.Errorf("Exchange() error = %v, want ErrStateMismatch", err)
			}
		})
	}

	// A forged callback must never reach the token endpoint.
	if fake.exchangeCalls != 0 {
		t.Errorf("ExchangeCode called %d times on state mismatch, want 0", fake.exchangeCalls)
	}
}

func TestRegistryExchangeFailures(t *testing.T) {
	t.Run("exchange error", func(t *testing.T) {
		fake := &fakeProvider{name: "google", exchangeErr: errors.New("upstream down")}
		registry := NewRegistry(nil)
		registry.Register(fake)

		_, err := registry.Exchange(context.Background(), "google", "code", "s", "s")
		if !errors.Is(err, ErrExchangeFailed) {
			t.Errorf("Exchange() error = %v, want ErrExchangeFailed", err)
		}
		if fake.profileCalls != 0 {
			t.Error("FetchProfile called after failed exchange")
		}
	})

	t.Run("profile error", func(t *testing.T) {
		fake := &fakeProvider{name: "google", profileErr: errors.New("upstream down")}
		registry := NewRegistry(nil)
		registry.Register(fake)

		_, err := registry.Exchange(context.Background(), "google", "code", "s", "s")
		if !errors.Is(err, ErrProfileFailed) {
			t.Errorf("Exchange() error = %v, want ErrProfileFailed", err)
		}
	})

	t.Run("profile without email", func(t *testing.T) {
		fake := &fakeProvider{name: "google", profile: &Profile{FirstName: "Ada"}}
		registry := NewRegistry(nil)
		registry.Register(fake)

		_, err := registry.Exchange(context.Background(), "google", "code", "s", "s")
		if !errors.Is(err, ErrProfileIncomplete) {
			t.Errorf("Exchange() error = %v, want ErrProfileIncomplete", err)
		}
	})

	t.Run("unknown provider", func(t *testing.T) {
		registry := NewRegistry(nil)

		_, err := registry.Exchange(context.Background(), "gitlab", "code", "s", "s")
		if !errors.Is(err, ErrNotConfigured) {
			t.Errorf("Exchange() error = %v, want ErrNotConfigured", err)
		}
	})
}
