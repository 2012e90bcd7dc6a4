// Package github implements the GitHub OAuth identity provider.
package github
