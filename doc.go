// Package authcore issues, verifies, and revokes identity tokens for a
// multi-provider authentication service.
//
// The Service type is the use-case layer: registration, email
// confirmation, password login, refresh-token rotation with reuse
// detection, logout, password recovery, and OAuth logins against the
// providers registered in a providers.Registry. Handler exposes the
// service over HTTP with signed refresh cookies.
//
// The user store, revocation cache, password hasher, and mailer are
// injected; see the storage, security, and providers packages for the
// shipped implementations.
package authcore
