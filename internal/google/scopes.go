package google

// DefaultOAuthScopes are the Google OAuth scopes requested during login.
// These scopes are used consistently across the application: the consent
// screen, the stored credential and the reconstructed live credential all
// carry the same set.
//
// The scopes provide access to:
//   - OpenID Connect: user identity (required to resolve the user's email)
//   - Gmail: read-only message access
var DefaultOAuthScopes = []string{
	// OpenID Connect scopes (required for user info)
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",

	// Gmail scope (read-only; mailpeek never mutates the mailbox)
	"https://www.googleapis.com/auth/gmail.readonly",
}
