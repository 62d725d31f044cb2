package auth

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"

	"github.com/driftware/workspace-mcp/internal/errdefs"
)

// ServiceAccountConfig configures the key-file strategy.
type ServiceAccountConfig struct {
	// KeyFile is the path to the service-account JSON key.
	KeyFile string

	// Subject impersonates a user via domain-wide delegation. Optional.
	Subject string

	Scopes []string
}

// ServiceAccountProvider implements Provider without user interaction.
// Tokens are always silently renewable given a valid key, so nothing is
// persisted.
type ServiceAccountProvider struct {
	cfg ServiceAccountConfig
	now func() time.Time

	mu   sync.Mutex
	jwt  *jwt.Config
	tok  *oauth2.Token
	init bool
}

// NewServiceAccountProvider builds the key-file provider.
func NewServiceAccountProvider(cfg ServiceAccountConfig) (*ServiceAccountProvider, error) {
	if cfg.KeyFile == "" {
		return nil, &errdefs.AuthError{Code: errdefs.CodeKeyFileInvalid, Message: "service account key file path is required"}
	}
	if len(cfg.Scopes) == 0 {
		return nil, &errdefs.AuthError{Code: errdefs.CodeKeyFileInvalid, Message: "at least one scope is required"}
	}
	return &ServiceAccountProvider{cfg: cfg, now: time.Now}, nil
}

// Initialize parses the key file. Safe to call concurrently; the parsed
// config is built once.
func (p *ServiceAccountProvider) Initialize(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.init {
		return nil
	}

	if _, err := os.Stat(p.cfg.KeyFile); err != nil {
		return &errdefs.AuthError{
			Code:    errdefs.CodeKeyFileInvalid,
			Message: fmt.Sprintf("service account key file %q is not readable", p.cfg.KeyFile),
			Cause:   err,
		}
	}
	data, err := os.ReadFile(p.cfg.KeyFile)
	if err != nil {
		return &errdefs.AuthError{Code: errdefs.CodeKeyFileInvalid, Message: "reading service account key file", Cause: err}
	}
	conf, err := google.JWTConfigFromJSON(data, p.cfg.Scopes...)
	if err != nil {
		return &errdefs.AuthError{Code: errdefs.CodeKeyFileInvalid, Message: "parsing service account key file", Cause: err}
	}
	if p.cfg.Subject != "" {
		conf.Subject = p.cfg.Subject
	}

	p.jwt = conf
	p.init = true
	return nil
}

func (p *ServiceAccountProvider) tokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	if err := p.Initialize(ctx); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jwt.TokenSource(ctx), nil
}

// Token fetches an access token, reusing the cached one while usable.
func (p *ServiceAccountProvider) Token(ctx context.Context) (*oauth2.Token, error) {
	p.mu.Lock()
	cached := p.tok
	p.mu.Unlock()
	if tokenUsable(cached, p.now()) {
		return cached, nil
	}

	src, err := p.tokenSource(ctx)
	if err != nil {
		return nil, err
	}
	tok, err := src.Token()
	if err != nil {
		return nil, refreshError(err)
	}

	p.mu.Lock()
	p.tok = tok
	p.mu.Unlock()
	return tok, nil
}

// HTTPClient returns a client backed by the JWT token source.
func (p *ServiceAccountProvider) HTTPClient(ctx context.Context) (*http.Client, error) {
	src, err := p.tokenSource(ctx)
	if err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, src), nil
}

// Validate performs a live token fetch and reports boolean validity.
func (p *ServiceAccountProvider) Validate(ctx context.Context) bool {
	_, err := p.Token(ctx)
	return err == nil
}

// Refresh re-fetches the token; service-account tokens carry no refresh
// token and are always renewable from the key.
func (p *ServiceAccountProvider) Refresh(ctx context.Context) error {
	p.mu.Lock()
	p.tok = nil
	p.mu.Unlock()
	_, err := p.Token(ctx)
	return err
}

// Account returns the service-account email once initialized.
func (p *ServiceAccountProvider) Account() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.jwt == nil {
		return ""
	}
	if p.jwt.Subject != "" {
		return p.jwt.Subject
	}
	return p.jwt.Email
}

// AuthInfo describes the current credential state.
func (p *ServiceAccountProvider) AuthInfo(ctx context.Context) AuthInfo {
	info := AuthInfo{
		Strategy: "service_account",
		Account:  p.Account(),
		Scopes:   p.cfg.Scopes,
	}
	p.mu.Lock()
	tok := p.tok
	p.mu.Unlock()
	if tok != nil {
		info.Authenticated = tokenUsable(tok, p.now())
		info.Expiry = tok.Expiry
	}
	return info
}

// HealthCheck verifies a token can be fetched.
func (p *ServiceAccountProvider) HealthCheck(ctx context.Context) error {
	_, err := p.Token(ctx)
	return err
}
