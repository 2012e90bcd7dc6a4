// Package google implements the Google OAuth identity provider.
package google
