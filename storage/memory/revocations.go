package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/giantswarm/authcore/storage"
)

// RevocationCache is an in-memory implementation of storage.RevocationCache.
// Entries expire via a background cleanup loop, mirroring the TTL semantics
// of the shared backends.
type RevocationCache struct {
	mu      sync.RWMutex
	entries map[string]time.Time // composite key -> expiry

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	logger          *slog.Logger
}

var _ storage.RevocationCache = (*RevocationCache)(nil)

// NewRevocationCache creates an in-memory revocation cache with the default
// cleanup interval (1 minute).
func NewRevocationCache() *RevocationCache {
	return NewRevocationCacheWithInterval(time.Minute)
}

// NewRevocationCacheWithInterval creates an in-memory revocation cache with
// a custom cleanup interval. If cleanupInterval is 0 or negative, the
// default of 1 minute is used.
func NewRevocationCacheWithInterval(cleanupInterval time.Duration) *RevocationCache {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	c := &RevocationCache{
		entries:         make(map[string]time.Time),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
	}

	go c.cleanupLoop()

	return c
}

// SetLogger sets a custom logger.
func (c *RevocationCache) SetLogger(logger *slog.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = logger
}

// Stop gracefully stops the cleanup goroutine.
func (c *RevocationCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCleanup) })
}

// IsRevoked reports whether the token instance has a live revocation entry.
func (c *RevocationCache) IsRevoked(ctx context.Context, userID, tokenID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	c.mu.RLock()
	expiresAt, ok := c.entries[revocationKey(userID, tokenID)]
	c.mu.RUnlock()

	if !ok {
		return false, nil
	}
	// An expired entry that the cleanup loop has not collected yet counts
	// as absent: the token it guarded is already naturally expired.
	return time.Now().Before(expiresAt), nil
}

// Revoke marks the token instance unusable for ttl. Non-positive ttl is a
// no-op: the token is already naturally expired and revocation is moot.
func (c *RevocationCache) Revoke(ctx context.Context, userID, tokenID string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl <= 0 {
		return nil
	}

	c.mu.Lock()
	c.entries[revocationKey(userID, tokenID)] = time.Now().Add(ttl)
	c.mu.Unlock()

	c.logger.Debug("Revoked refresh token instance", "user_id", userID)
	return nil
}

func revocationKey(userID, tokenID string) string {
	return userID + ":" + tokenID
}

func (c *RevocationCache) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCleanup:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

func (c *RevocationCache) cleanup() {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	cleaned := 0
	for key, expiresAt := range c.entries {
		if now.After(expiresAt) {
			delete(c.entries, key)
			cleaned++
		}
	}

	if cleaned > 0 {
		c.logger.Debug("Cleaned up expired revocation entries", "count", cleaned)
	}
}
