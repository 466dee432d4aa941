package mastodon

import "fmt"

const (
	// ClientName is the application name sent during app registration.
	ClientName = "tootsync"

	// Website is the project URL, also embedded in the User-Agent.
	Website = "https://github.com/tootsync/tootsync"

	// UserAgent identifies the archiver on every outbound request.
	UserAgent = "tootsync (+" + Website + ")"

	// RedirectURI is the out-of-band OAuth redirect URI: the user copies the
	// authorization code manually instead of being redirected.
	RedirectURI = "urn:ietf:wg:oauth:2.0:oob"

	// Scopes requested during authorization. Read-only on purpose; the
	// archiver never asks for write or push access.
	Scopes = "read:statuses read:accounts profile"

	// WebfingerPath is the discovery endpoint used to validate a domain.
	WebfingerPath = "/.well-known/webfinger"

	// NodeinfoPath lists links to the actual nodeinfo documents.
	NodeinfoPath = "/.well-known/nodeinfo"

	// AppsPath registers a new OAuth application.
	AppsPath = "/api/v1/apps"

	// AuthorizePath is the user-facing OAuth authorization page.
	AuthorizePath = "/oauth/authorize"

	// TokenPath exchanges an authorization code for an access token.
	TokenPath = "/oauth/token"

	// VerifyCredentialsPath resolves the authenticated user's account.
	VerifyCredentialsPath = "/api/v1/accounts/verify_credentials"

	// AccountsSearchPath searches accounts by handle.
	AccountsSearchPath = "/api/v1/accounts/search"

	// MaxPageLimit is the largest page size the statuses endpoint accepts.
	MaxPageLimit = 40
)

// StatusesPath returns the statuses listing path for an account.
func StatusesPath(accountID string) string {
	return fmt.Sprintf("/api/v1/accounts/%s/statuses", accountID)
}
