package auth

import (
	"context"
	"sync"

	"golang.org/x/oauth2"
)

// persistingTokenSource writes refreshed tokens through to the provider's
// store the moment they change. This replaces an implicit refresh-event
// hook with an explicit persist-after-refresh step on the token path
// itself, so a process crash after a refresh never strands a stale
// refresh token on disk.
type persistingTokenSource struct {
	src      oauth2.TokenSource
	provider *OAuth2Provider

	mu   sync.Mutex
	last string
}

func newPersistingTokenSource(src oauth2.TokenSource, p *OAuth2Provider, lastAccessToken string) oauth2.TokenSource {
	return &persistingTokenSource{src: src, provider: p, last: lastAccessToken}
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		rerr := refreshError(err)
		s.provider.notifyRefresh(rerr)
		return nil, rerr
	}

	s.mu.Lock()
	changed := tok.AccessToken != s.last
	s.last = tok.AccessToken
	s.mu.Unlock()

	// A changed access token means the underlying source refreshed.
	if changed {
		s.provider.notifyRefresh(nil)
		if perr := s.provider.setToken(context.Background(), tok); perr != nil {
			s.provider.logger.Warn("persisting refreshed token failed", "error", perr)
		}
	}
	return tok, nil
}
