package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"

	"github.com/driftware/workspace-mcp/internal/errdefs"
	"github.com/driftware/workspace-mcp/internal/logging"
	"github.com/driftware/workspace-mcp/internal/tokenstore"
)

// DefaultFlowTimeout bounds the wait for the user to complete the
// browser consent screen.
const DefaultFlowTimeout = 5 * time.Minute

// OAuth2Config configures the interactive authorization-code strategy.
type OAuth2Config struct {
	ClientID     string
	ClientSecret string
	Scopes       []string

	// Account keys the persisted credentials, typically the user's
	// email. Defaults to "default".
	Account string

	// CallbackPort pins the loopback listener port; 0 uses an
	// ephemeral port.
	CallbackPort int

	// FlowTimeout bounds the interactive wait. Zero means
	// DefaultFlowTimeout.
	FlowTimeout time.Duration

	// LaunchBrowser opens the system browser for the consent screen.
	// When false the authorization URL is only printed.
	LaunchBrowser bool
}

// OAuth2Provider implements Provider with the authorization-code flow.
// The in-memory token is the source of truth during the process
// lifetime and is written back to the store after every change.
type OAuth2Provider struct {
	cfg      OAuth2Config
	endpoint oauth2.Endpoint
	store    tokenstore.Store
	logger   *slog.Logger
	now      func() time.Time
	browser  func(url string) error

	// refreshHook, when set, is invoked after every refresh attempt
	// with its outcome.
	refreshHook func(err error)

	mu          sync.Mutex
	token       *oauth2.Token
	initialized bool

	// sf collapses concurrent initializations and interactive flows so
	// two callers never race two browser tabs or two code exchanges.
	sf singleflight.Group
}

// OAuth2Option configures an OAuth2Provider.
type OAuth2Option func(*OAuth2Provider)

// WithOAuth2Logger sets the provider's logger.
func WithOAuth2Logger(l *slog.Logger) OAuth2Option {
	return func(p *OAuth2Provider) { p.logger = l }
}

// WithEndpoint substitutes the OAuth2 endpoint, for tests.
func WithEndpoint(ep oauth2.Endpoint) OAuth2Option {
	return func(p *OAuth2Provider) { p.endpoint = ep }
}

// WithBrowserLauncher substitutes the browser launch, for tests and
// headless contexts.
func WithBrowserLauncher(fn func(url string) error) OAuth2Option {
	return func(p *OAuth2Provider) { p.browser = fn }
}

// WithOAuth2Now substitutes the clock, for tests.
func WithOAuth2Now(now func() time.Time) OAuth2Option {
	return func(p *OAuth2Provider) { p.now = now }
}

// WithOAuth2RefreshHook registers a hook invoked after every token
// refresh attempt, with nil on success and the classified error on
// failure. Used to record refresh metrics.
func WithOAuth2RefreshHook(fn func(err error)) OAuth2Option {
	return func(p *OAuth2Provider) { p.refreshHook = fn }
}

// NewOAuth2Provider builds the interactive provider.
func NewOAuth2Provider(cfg OAuth2Config, store tokenstore.Store, opts ...OAuth2Option) (*OAuth2Provider, error) {
	if cfg.ClientID == "" {
		return nil, &errdefs.AuthError{Code: errdefs.CodeInvalidClient, Message: "OAuth client ID is required"}
	}
	if len(cfg.Scopes) == 0 {
		return nil, &errdefs.AuthError{Code: errdefs.CodeInvalidClient, Message: "at least one scope is required"}
	}
	if cfg.Account == "" {
		cfg.Account = "default"
	}
	if cfg.FlowTimeout <= 0 {
		cfg.FlowTimeout = DefaultFlowTimeout
	}

	p := &OAuth2Provider{
		cfg:      cfg,
		endpoint: google.Endpoint,
		store:    store,
		logger:   slog.Default(),
		now:      time.Now,
		browser:  openBrowser,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *OAuth2Provider) oauthConfig(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		Scopes:       p.cfg.Scopes,
		Endpoint:     p.endpoint,
		RedirectURL:  redirectURI,
	}
}

// Initialize loads persisted tokens bound to this client ID. Corruption
// in the store surfaces to the caller; the provider still counts as
// initialized so a subsequent interactive flow can overwrite the damage.
func (p *OAuth2Provider) Initialize(ctx context.Context) error {
	_, err, _ := p.sf.Do("initialize", func() (any, error) {
		p.mu.Lock()
		if p.initialized {
			p.mu.Unlock()
			return nil, nil
		}
		p.mu.Unlock()

		creds, err := p.store.Load(ctx, p.cfg.Account)

		p.mu.Lock()
		p.initialized = true
		if creds != nil {
			if creds.ClientConfig.ClientID == p.cfg.ClientID {
				p.token = creds.Token()
			} else {
				p.logger.Warn("ignoring persisted tokens bound to a different client ID",
					logging.Account(p.cfg.Account))
			}
		}
		p.mu.Unlock()

		return nil, err
	})
	return err
}

// Token returns a usable access token, initializing, silently refreshing
// or running the interactive flow as needed.
func (p *OAuth2Provider) Token(ctx context.Context) (*oauth2.Token, error) {
	if err := p.Initialize(ctx); err != nil {
		var cerr *errdefs.CorruptionError
		if !errors.As(err, &cerr) {
			return nil, err
		}
		p.logger.Warn("token cache corrupted, re-authentication required", logging.Err(err))
	}

	if p.Validate(ctx) {
		return p.currentToken(), nil
	}
	return p.Authenticate(ctx)
}

// Authenticate runs the interactive flow. Concurrent callers join the
// in-flight flow instead of opening a second browser tab.
func (p *OAuth2Provider) Authenticate(ctx context.Context) (*oauth2.Token, error) {
	v, err, _ := p.sf.Do("flow", func() (any, error) {
		// A caller that lost the race to a just-completed flow reuses
		// its result instead of opening another browser tab.
		if p.Validate(ctx) {
			return p.currentToken(), nil
		}
		return p.performAuthFlow(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*oauth2.Token), nil
}

// performAuthFlow drives one authorization-code exchange: loopback
// listener up, browser out, wait for the redirect, verify state, exchange
// the code, persist. The listener is torn down on every path.
func (p *OAuth2Provider) performAuthFlow(ctx context.Context) (*oauth2.Token, error) {
	state, err := randomState()
	if err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}

	cs, err := newCallbackServer(p.cfg.CallbackPort)
	if err != nil {
		return nil, err
	}
	defer cs.Stop()

	cfg := p.oauthConfig(cs.RedirectURI())
	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	p.logger.Info("starting interactive authorization",
		logging.Account(p.cfg.Account),
		slog.Int("callback_port", cs.Port()))

	if p.cfg.LaunchBrowser {
		if err := p.browser(authURL); err != nil {
			p.logger.Warn("browser launch failed, complete the flow manually", logging.Err(err))
			fmt.Println("Open this URL to authorize:")
			fmt.Println(authURL)
		}
	} else {
		fmt.Println("Open this URL to authorize:")
		fmt.Println(authURL)
	}

	res, err := cs.Wait(ctx, p.cfg.FlowTimeout)
	if err != nil {
		var typed errdefs.Error
		if errors.As(err, &typed) {
			return nil, typed
		}
		return nil, errdefs.Classify("auth", "authorize", err)
	}

	// Hard CSRF invariant: a mismatched state fails the flow even when
	// the authorization code itself is valid.
	if subtle.ConstantTimeCompare([]byte(res.state), []byte(state)) != 1 {
		return nil, &errdefs.AuthError{
			Code:    errdefs.CodeStateMismatch,
			Message: "authorization response state does not match the request",
		}
	}

	tok, err := cfg.Exchange(ctx, res.code)
	if err != nil {
		return nil, exchangeError(err)
	}

	if err := p.setToken(ctx, tok); err != nil {
		p.logger.Warn("token obtained but persistence failed", logging.Err(err))
	}
	p.logger.Info("authorization complete", logging.Account(p.cfg.Account))
	return tok, nil
}

// Validate reports credential usability, attempting a silent refresh when
// the access token is expired and a refresh token exists. Never errors.
func (p *OAuth2Provider) Validate(ctx context.Context) bool {
	tok := p.currentToken()
	if tok == nil || tok.AccessToken == "" {
		return false
	}
	if tokenUsable(tok, p.now()) {
		return true
	}
	if tok.RefreshToken == "" {
		return false
	}
	return p.Refresh(ctx) == nil
}

// Refresh forces a token renewal using the stored refresh token and
// persists the result.
func (p *OAuth2Provider) Refresh(ctx context.Context) error {
	tok := p.currentToken()
	if tok == nil || tok.RefreshToken == "" {
		return &errdefs.AuthError{
			Code:    errdefs.CodeRefreshFailed,
			Message: "no refresh token available; re-authorization required",
		}
	}

	src := p.oauthConfig("").TokenSource(ctx, &oauth2.Token{RefreshToken: tok.RefreshToken})
	fresh, err := src.Token()
	if err != nil {
		rerr := refreshError(err)
		p.notifyRefresh(rerr)
		return rerr
	}
	p.notifyRefresh(nil)

	if err := p.setToken(ctx, fresh); err != nil {
		p.logger.Warn("refreshed token persistence failed", logging.Err(err))
	}
	return nil
}

func (p *OAuth2Provider) notifyRefresh(err error) {
	if p.refreshHook != nil {
		p.refreshHook(err)
	}
}

// setToken updates the in-memory token and writes it through to the
// store. The refresh token is sticky: a refresh response without one
// keeps the previous value.
func (p *OAuth2Provider) setToken(ctx context.Context, tok *oauth2.Token) error {
	p.mu.Lock()
	if tok.RefreshToken == "" && p.token != nil {
		tok.RefreshToken = p.token.RefreshToken
	}
	p.token = tok
	p.mu.Unlock()

	creds := tokenstore.FromToken(tok, p.cfg.ClientID, p.cfg.Scopes, p.now())
	return p.store.Save(ctx, p.cfg.Account, creds)
}

func (p *OAuth2Provider) currentToken() *oauth2.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token
}

// HTTPClient returns a client whose transport refreshes and persists
// tokens transparently.
func (p *OAuth2Provider) HTTPClient(ctx context.Context) (*http.Client, error) {
	tok, err := p.Token(ctx)
	if err != nil {
		return nil, err
	}
	base := p.oauthConfig("").TokenSource(ctx, tok)
	return oauth2.NewClient(ctx, newPersistingTokenSource(base, p, tok.AccessToken)), nil
}

// Account returns the configured account key.
func (p *OAuth2Provider) Account() string { return p.cfg.Account }

// AuthInfo describes the current credential state without token material.
func (p *OAuth2Provider) AuthInfo(_ context.Context) AuthInfo {
	tok := p.currentToken()
	info := AuthInfo{
		Strategy: "oauth2",
		Account:  p.cfg.Account,
		Scopes:   p.cfg.Scopes,
	}
	if tok != nil {
		info.Authenticated = tokenUsable(tok, p.now())
		info.HasRefreshToken = tok.RefreshToken != ""
		info.Expiry = tok.Expiry
	}
	return info
}

// HealthCheck reports nil when credentials are usable without user
// interaction.
func (p *OAuth2Provider) HealthCheck(ctx context.Context) error {
	if err := p.Initialize(ctx); err != nil {
		return err
	}
	if !p.Validate(ctx) {
		return &errdefs.AuthError{
			Code:    errdefs.CodeNoCredentials,
			Message: "no usable credentials; run auth login",
		}
	}
	return nil
}

// Logout drops credentials from memory and from the store.
func (p *OAuth2Provider) Logout(ctx context.Context) error {
	p.mu.Lock()
	p.token = nil
	p.mu.Unlock()
	return p.store.Delete(ctx, p.cfg.Account)
}

// randomState produces the CSRF state parameter: 32 random bytes,
// base64url without padding.
func randomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// exchangeError maps a code-exchange failure onto the taxonomy.
func exchangeError(err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		code := errdefs.CodeInvalidGrant
		switch rerr.ErrorCode {
		case "invalid_client", "unauthorized_client":
			code = errdefs.CodeInvalidClient
		case "access_denied":
			code = errdefs.CodeAccessDenied
		}
		return &errdefs.AuthError{Code: code, Message: "code exchange rejected", Cause: err}
	}
	return &errdefs.AuthError{
		Code:      errdefs.CodeRefreshFailed,
		Message:   "code exchange failed",
		Cause:     err,
		Transient: true,
	}
}

// refreshError distinguishes a rejected grant (terminal, the refresh
// token is dead) from a transport failure (transient).
func refreshError(err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		if rerr.ErrorCode == "invalid_grant" {
			return &errdefs.AuthError{
				Code:    errdefs.CodeTokenExpired,
				Message: "refresh token expired or revoked; re-authorization required",
				Cause:   err,
			}
		}
		return &errdefs.AuthError{Code: errdefs.CodeRefreshFailed, Message: "token refresh rejected", Cause: err}
	}
	return &errdefs.AuthError{
		Code:      errdefs.CodeRefreshFailed,
		Message:   "token refresh failed",
		Cause:     err,
		Transient: true,
	}
}
