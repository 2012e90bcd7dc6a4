// Package tokens implements stateless issuance and verification of the four
// identity token kinds: access, refresh, confirmation, and reset-password.
//
// Access tokens are signed with RS256 so untrusted downstream services can
// verify them holding only the public key. The remaining kinds are verified
// only by this service and use per-kind HS256 secrets. The signing algorithm
// is pinned per kind and never taken from the token header: a token signed
// with the wrong algorithm or key fails verification structurally.
package tokens
