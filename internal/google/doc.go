// Package google provides the OAuth2 client configuration for Google APIs
// and resolves the authenticated user's email address from an exchanged
// token.
//
// The OAuth client identity is injected at startup; there is no lazily
// loaded global client configuration. Email resolution follows the token
// introspection order used by Google: the ID token claims first, falling
// back to the tokeninfo endpoint with the access token.
package google
