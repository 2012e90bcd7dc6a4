// Package valkey provides a Valkey-backed token revocation cache.
//
// Entries are stored with the remaining lifetime of the revoked token
// instance, so the server never accumulates revocations past their
// natural expiry. The package is the production counterpart of the
// in-memory cache in storage/memory.
package valkey
