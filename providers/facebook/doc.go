// Package facebook implements the Facebook OAuth identity provider
// backed by the Graph API.
package facebook
