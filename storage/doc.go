// Package storage defines the interfaces the authentication core depends on
// for persistence: the revocation cache that marks refresh-token instances
// unusable before their natural expiry, and the user store boundary of the
// external relational database.
//
// Backends live in subpackages: memory for development, testing, and
// single-instance deployments, and valkey for shared deployments.
package storage
