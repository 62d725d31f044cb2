package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/driftware/workspace-mcp/internal/instrumentation"
)

const sessionCleanupInterval = 10 * time.Minute

// sessionInfo tracks session metadata for cleanup
type sessionInfo struct {
	account    string
	lastAccess time.Time
}

// SessionIDManager maps bearer tokens to accounts so that multiple
// Google accounts can share one MCP server instance. Session IDs are
// derived from the Authorization header, so the same token always lands
// on the same session.
type SessionIDManager struct {
	sessions       map[string]*sessionInfo
	mu             sync.RWMutex
	clock          clockwork.Clock
	cleanupTicker  clockwork.Ticker
	cleanupDone    chan struct{}
	sessionTimeout time.Duration
	logger         *slog.Logger
	metrics        *instrumentation.Metrics
}

// SessionOption configures a SessionIDManager.
type SessionOption func(*SessionIDManager)

// WithSessionTimeout sets how long an idle session is kept.
func WithSessionTimeout(timeout time.Duration) SessionOption {
	return func(m *SessionIDManager) { m.sessionTimeout = timeout }
}

// WithSessionLogger sets the logger.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(m *SessionIDManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithSessionClock sets the clock, letting tests drive expiry.
func WithSessionClock(clock clockwork.Clock) SessionOption {
	return func(m *SessionIDManager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithSessionMetrics wires session creation, removal and expiry into the
// active-sessions gauge.
func WithSessionMetrics(metrics *instrumentation.Metrics) SessionOption {
	return func(m *SessionIDManager) { m.metrics = metrics }
}

// NewSessionIDManager creates a session manager and starts its cleanup
// goroutine. Call Stop when done.
func NewSessionIDManager(opts ...SessionOption) *SessionIDManager {
	m := &SessionIDManager{
		sessions:       make(map[string]*sessionInfo),
		clock:          clockwork.NewRealClock(),
		cleanupDone:    make(chan struct{}),
		sessionTimeout: 24 * time.Hour,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.cleanupTicker = m.clock.NewTicker(sessionCleanupInterval)
	go m.cleanupExpiredSessions()

	return m
}

// ErrNoAuthorizationHeader is returned when no Authorization header is provided
var ErrNoAuthorizationHeader = errors.New("no authorization header provided")

// ResolveSessionID derives the session ID for an HTTP request from its
// Authorization header. The token uniquely identifies the account, so
// hashing it yields a stable session ID.
func (m *SessionIDManager) ResolveSessionID(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", ErrNoAuthorizationHeader
	}
	return m.generateSessionID(authHeader), nil
}

// GetAccountForSession returns the account associated with a session ID
// and refreshes its last-access time.
func (m *SessionIDManager) GetAccountForSession(sessionID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if info, ok := m.sessions[sessionID]; ok {
		info.lastAccess = m.clock.Now()
		return info.account
	}
	return "default"
}

// SetAccountForSession associates an account with a session ID. Rebinding
// an existing session does not count as a new one.
func (m *SessionIDManager) SetAccountForSession(sessionID, account string) {
	m.mu.Lock()
	_, existed := m.sessions[sessionID]
	m.sessions[sessionID] = &sessionInfo{
		account:    account,
		lastAccess: m.clock.Now(),
	}
	m.mu.Unlock()

	if !existed && m.metrics != nil {
		m.metrics.IncrementActiveSessions(context.Background())
	}
}

func (m *SessionIDManager) generateSessionID(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// RemoveSession removes a session from the manager
func (m *SessionIDManager) RemoveSession(sessionID string) {
	m.mu.Lock()
	_, existed := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if existed && m.metrics != nil {
		m.metrics.DecrementActiveSessions(context.Background())
	}
}

// ListSessions returns all active session IDs
func (m *SessionIDManager) ListSessions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]string, 0, len(m.sessions))
	for sessionID := range m.sessions {
		sessions = append(sessions, sessionID)
	}
	return sessions
}

// removeExpired deletes sessions idle longer than the timeout and
// returns how many were removed.
func (m *SessionIDManager) removeExpired() int {
	m.mu.Lock()
	now := m.clock.Now()
	expired := 0
	for sessionID, info := range m.sessions {
		if now.Sub(info.lastAccess) > m.sessionTimeout {
			delete(m.sessions, sessionID)
			expired++
		}
	}
	m.mu.Unlock()

	if m.metrics != nil {
		for i := 0; i < expired; i++ {
			m.metrics.DecrementActiveSessions(context.Background())
		}
	}
	return expired
}

func (m *SessionIDManager) cleanupExpiredSessions() {
	for {
		select {
		case <-m.cleanupTicker.Chan():
			if expired := m.removeExpired(); expired > 0 {
				m.logger.Info("Cleaned up expired sessions", "count", expired)
			}
		case <-m.cleanupDone:
			return
		}
	}
}

// Stop stops the session cleanup goroutine
func (m *SessionIDManager) Stop() {
	if m.cleanupTicker != nil {
		m.cleanupTicker.Stop()
	}
	if m.cleanupDone != nil {
		close(m.cleanupDone)
	}
}
