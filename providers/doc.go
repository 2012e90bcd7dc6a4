// Package providers defines the interface for OAuth identity providers and
// implements provider-specific logic for Google, Microsoft, Facebook, and
// GitHub in the subpackages of the same names.
package providers
