package auth

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// Provider is the credential acquisition surface consumed by the Google
// service clients and the MCP server wiring.
type Provider interface {
	// Initialize loads any persisted state. It is idempotent, safe for
	// concurrent use, and never starts an interactive flow.
	Initialize(ctx context.Context) error

	// Token returns a valid access token, refreshing or running the
	// interactive flow as needed.
	Token(ctx context.Context) (*oauth2.Token, error)

	// HTTPClient returns an authenticated client whose transport
	// refreshes and persists tokens transparently.
	HTTPClient(ctx context.Context) (*http.Client, error)

	// Validate reports whether current credentials are usable,
	// attempting a silent refresh first. It never returns an error.
	Validate(ctx context.Context) bool

	// Refresh forces a token renewal.
	Refresh(ctx context.Context) error

	// Account returns the identity this provider authenticates, or ""
	// when unknown.
	Account() string

	// AuthInfo describes the current credential state for diagnostics.
	AuthInfo(ctx context.Context) AuthInfo

	// HealthCheck returns nil when credentials are usable.
	HealthCheck(ctx context.Context) error
}

// AuthInfo is a diagnostic snapshot, safe to log and to return from the
// auth_status tool. It never contains token material.
type AuthInfo struct {
	Strategy        string    `json:"strategy"`
	Account         string    `json:"account,omitempty"`
	Authenticated   bool      `json:"authenticated"`
	HasRefreshToken bool      `json:"hasRefreshToken"`
	Expiry          time.Time `json:"expiry,omitzero"`
	Scopes          []string  `json:"scopes,omitempty"`
}

// expirySkew treats tokens this close to expiry as already expired, so a
// request issued now does not outlive its credential.
const expirySkew = 60 * time.Second

// tokenUsable reports validity under the expiry skew.
func tokenUsable(tok *oauth2.Token, now time.Time) bool {
	if tok == nil || tok.AccessToken == "" {
		return false
	}
	if tok.Expiry.IsZero() {
		return true
	}
	return tok.Expiry.Add(-expirySkew).After(now)
}
