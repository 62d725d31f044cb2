package tokenstore

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// TokenData mirrors the wire shape of a stored OAuth2 token.
type TokenData struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`

	// ExpiryDate is epoch milliseconds; zero means unknown.
	ExpiryDate int64 `json:"expiry_date,omitempty"`

	Scope string `json:"scope,omitempty"`
}

// ClientConfig binds stored tokens to the OAuth client that issued them.
// Tokens persisted under a different client ID are ignored on load.
type ClientConfig struct {
	ClientID string   `json:"clientId"`
	Scopes   []string `json:"scopes"`
}

// Credentials is the unit of persistence.
type Credentials struct {
	Tokens       TokenData    `json:"tokens"`
	ClientConfig ClientConfig `json:"clientConfig"`

	// StoredAt is epoch milliseconds of the last save.
	StoredAt int64 `json:"storedAt"`
}

// Validate enforces the structural invariants required before persisting
// or after loading. A violation on load is structure corruption.
func (c *Credentials) Validate() error {
	if c == nil {
		return fmt.Errorf("credentials are nil")
	}
	if c.Tokens.AccessToken == "" {
		return fmt.Errorf("access token is empty")
	}
	if c.ClientConfig.ClientID == "" {
		return fmt.Errorf("client ID is empty")
	}
	if c.StoredAt == 0 {
		return fmt.Errorf("storedAt is not set")
	}
	return nil
}

// Token converts the stored form to an oauth2.Token.
func (c *Credentials) Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  c.Tokens.AccessToken,
		RefreshToken: c.Tokens.RefreshToken,
		TokenType:    "Bearer",
	}
	if c.Tokens.ExpiryDate > 0 {
		tok.Expiry = time.UnixMilli(c.Tokens.ExpiryDate)
	}
	return tok
}

// FromToken builds Credentials from a live token and the client config it
// was issued against, stamping StoredAt with the given time.
func FromToken(tok *oauth2.Token, clientID string, scopes []string, now time.Time) *Credentials {
	c := &Credentials{
		Tokens: TokenData{
			AccessToken:  tok.AccessToken,
			RefreshToken: tok.RefreshToken,
			Scope:        strings.Join(scopes, " "),
		},
		ClientConfig: ClientConfig{
			ClientID: clientID,
			Scopes:   scopes,
		},
		StoredAt: now.UnixMilli(),
	}
	if !tok.Expiry.IsZero() {
		c.Tokens.ExpiryDate = tok.Expiry.UnixMilli()
	}
	return c
}
