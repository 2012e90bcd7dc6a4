// Package util provides common utility functions used across the authcore library.
// These utilities handle string normalization and formatting operations that
// don't fit into domain-specific packages.
package util

import "strings"

// SafeTruncate safely truncates a string to maxLen characters without panicking.
// Returns the original string if it's shorter than maxLen, otherwise returns
// the first maxLen characters. This prevents index out of bounds errors when
// logging sensitive data like tokens, where only a prefix should be shown.
//
// If maxLen is negative, it's treated as 0 and returns an empty string.
//
// Example:
//
//	SafeTruncate("very-long-token-abc123", 8) // Returns: "very-lon"
//	SafeTruncate("short", 10)                  // Returns: "short"
//	SafeTruncate("test", -1)                   // Returns: ""
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// NormalizeEmail canonicalizes an email address for storage and lookup.
// Addresses are compared case-insensitively, so the same mailbox registered
// as "A@B.com" and "a@b.com" must resolve to one account.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SplitName splits a display name into first and last name parts.
// The first word becomes the first name and everything after it the last
// name. A single-word name leaves the last name empty.
func SplitName(name string) (first, last string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ""
	}
	parts := strings.SplitN(name, " ", 2)
	first = parts[0]
	if len(parts) == 2 {
		last = strings.TrimSpace(parts[1])
	}
	return first, last
}
