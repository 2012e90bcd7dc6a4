package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/giantswarm/authcore/storage"
)

// UserStore is an in-memory implementation of storage.UserStore.
type UserStore struct {
	mu      sync.RWMutex
	users   map[string]*storage.User          // id -> user
	byEmail map[string]string                 // normalized email -> id
	links   map[string][]storage.ProviderLink // id -> provider links
}

var _ storage.UserStore = (*UserStore)(nil)

// NewUserStore creates an empty in-memory user store.
func NewUserStore() *UserStore {
	return &UserStore{
		users:   make(map[string]*storage.User),
		byEmail: make(map[string]string),
		links:   make(map[string][]storage.ProviderLink),
	}
}

// Create persists a new user and links the given provider.
func (s *UserStore) Create(ctx context.Context, user *storage.User, provider storage.ProviderTag) (*storage.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[user.Email]; exists {
		return nil, storage.ErrEmailTaken
	}

	now := time.Now()
	stored := *user
	stored.ID = uuid.NewString()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	s.users[stored.ID] = &stored
	s.byEmail[stored.Email] = stored.ID
	s.links[stored.ID] = append(s.links[stored.ID], storage.ProviderLink{
		Provider:  provider,
		CreatedAt: now,
	})

	out := stored
	return &out, nil
}

// GetByEmail returns the user with the given normalized email.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*storage.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	out := *s.users[id]
	return &out, nil
}

// GetByID returns the user with the given id.
func (s *UserStore) GetByID(ctx context.Context, id string) (*storage.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	out := *user
	return &out, nil
}

// ConfirmEmail sets confirmed=true for the user.
func (s *UserStore) ConfirmEmail(ctx context.Context, id string) (*storage.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}

	user.Confirmed = true
	user.UpdatedAt = time.Now()

	out := *user
	return &out, nil
}

// UpdatePassword replaces the user's password digest.
func (s *UserStore) UpdatePassword(ctx context.Context, id, digest string) (*storage.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}

	user.PasswordDigest = digest
	user.UpdatedAt = time.Now()

	out := *user
	return &out, nil
}

// LinkProvider records a provider link; linking twice is a no-op.
func (s *UserStore) LinkProvider(ctx context.Context, id string, provider storage.ProviderTag) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return storage.ErrUserNotFound
	}

	for _, link := range s.links[id] {
		if link.Provider == provider {
			return nil
		}
	}

	s.links[id] = append(s.links[id], storage.ProviderLink{
		Provider:  provider,
		CreatedAt: time.Now(),
	})
	return nil
}

// Providers lists the providers linked to the user.
func (s *UserStore) Providers(ctx context.Context, id string) ([]storage.ProviderLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.users[id]; !ok {
		return nil, storage.ErrUserNotFound
	}

	out := make([]storage.ProviderLink, len(s.links[id]))
	copy(out, s.links[id])
	return out, nil
}
