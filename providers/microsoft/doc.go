// Package microsoft implements the Microsoft OAuth identity provider
// backed by the common Azure AD tenant and the Microsoft Graph API.
package microsoft
