package valkey

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/giantswarm/authcore/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys.
	DefaultKeyPrefix = "authcore:"

	// connectionVerifyTimeout is the timeout for initial connection verification.
	connectionVerifyTimeout = 5 * time.Second
)

// Config holds configuration for the Valkey revocation cache.
type Config struct {
	// Address is the Valkey server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "authcore:")
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// RevocationCache is a Valkey-backed implementation of storage.RevocationCache.
type RevocationCache struct {
	client valkeygo.Client
	prefix string
	logger *slog.Logger
}

var _ storage.RevocationCache = (*RevocationCache)(nil)

// New creates a new Valkey-backed revocation cache.
// Returns an error if the connection cannot be established.
func New(cfg Config) (*RevocationCache, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	logger.Info("Connected to Valkey revocation cache",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return &RevocationCache{
		client: client,
		prefix: prefix,
		logger: logger,
	}, nil
}

// Close closes the Valkey client connection.
func (c *RevocationCache) Close() {
	c.client.Close()
	c.logger.Info("Valkey revocation cache connection closed")
}

// SetLogger sets a custom logger for the cache.
func (c *RevocationCache) SetLogger(logger *slog.Logger) {
	c.logger = logger
}

func (c *RevocationCache) key(userID, tokenID string) string {
	return c.prefix + "revoked:" + userID + ":" + tokenID
}

// Revoke marks a token instance as revoked for the remainder of its
// lifetime. A non-positive ttl means the token is already past its
// natural expiry and no entry is written.
func (c *RevocationCache) Revoke(ctx context.Context, userID, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	key := c.key(userID, tokenID)
	if err := c.client.Do(ctx, c.client.B().Set().Key(key).Value("1").Ex(ttl).Build()).Error(); err != nil {
		return fmt.Errorf("failed to store revocation: %w", err)
	}

	return nil
}

// IsRevoked reports whether a token instance has been revoked.
func (c *RevocationCache) IsRevoked(ctx context.Context, userID, tokenID string) (bool, error) {
	key := c.key(userID, tokenID)

	err := c.client.Do(ctx, c.client.B().Get().Key(key).Build()).Error()
	if err != nil {
		if valkeygo.IsValkeyNil(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}

	return true, nil
}
