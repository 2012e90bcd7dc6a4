// Package security provides the cryptographic building blocks of the
// authentication service: CSRF state generation and comparison, HMAC-signed
// cookie values, password hashing, and the shared clock-skew grace period.
//
// These primitives are intentionally small so that the token and
// orchestration layers can be audited independently of them.
package security
