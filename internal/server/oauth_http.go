package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/driftware/workspace-mcp/internal/instrumentation"
)

// googleUserinfoURL is the endpoint used to validate bearer tokens.
var googleUserinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleUserInfo is the subset of the userinfo response the server needs
// to attribute a request to an account.
type GoogleUserInfo struct {
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name,omitempty"`
}

// contextKey is the type for context keys
type contextKey string

const userContextKey contextKey = "oauth_user"

// ContextWithUser stores a validated Google user in the context.
func ContextWithUser(ctx context.Context, user *GoogleUserInfo) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// GetUserFromContext retrieves the validated Google user from the
// request context.
func GetUserFromContext(ctx context.Context) (*GoogleUserInfo, bool) {
	user, ok := ctx.Value(userContextKey).(*GoogleUserInfo)
	return user, ok
}

// OAuthHTTPServer exposes the MCP server over streamable HTTP, with
// every request authenticated by a Google bearer token. The token is
// validated against Google's userinfo endpoint; validation results are
// cached briefly so a chatty client does not hammer Google.
type OAuthHTTPServer struct {
	mcpServer        *mcpserver.MCPServer
	httpServer       *http.Server
	baseURL          string
	disableStreaming bool
	logger           *slog.Logger
	metrics          *instrumentation.Metrics
	health           *HealthChecker
	sessions         *SessionIDManager

	userinfoURL string

	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	userCache map[string]cachedUser
}

type cachedUser struct {
	user    *GoogleUserInfo
	expires time.Time
}

// userCacheTTL bounds how long a validated token is trusted without
// re-checking with Google.
const userCacheTTL = time.Minute

// OAuthHTTPOption configures the HTTP server.
type OAuthHTTPOption func(*OAuthHTTPServer)

// WithHTTPLogger sets the logger.
func WithHTTPLogger(logger *slog.Logger) OAuthHTTPOption {
	return func(s *OAuthHTTPServer) { s.logger = logger }
}

// WithHTTPMetrics attaches request metrics.
func WithHTTPMetrics(m *instrumentation.Metrics) OAuthHTTPOption {
	return func(s *OAuthHTTPServer) { s.metrics = m }
}

// WithHealthChecker registers the health endpoints on the same mux.
func WithHealthChecker(h *HealthChecker) OAuthHTTPOption {
	return func(s *OAuthHTTPServer) { s.health = h }
}

// WithSessionManager attaches the session manager used to map bearer
// tokens to accounts.
func WithSessionManager(m *SessionIDManager) OAuthHTTPOption {
	return func(s *OAuthHTTPServer) { s.sessions = m }
}

// WithDisableStreaming turns off streaming responses for clients that
// cannot consume them.
func WithDisableStreaming(disable bool) OAuthHTTPOption {
	return func(s *OAuthHTTPServer) { s.disableStreaming = disable }
}

// NewOAuthHTTPServer creates a new OAuth-protected HTTP server for MCP.
func NewOAuthHTTPServer(mcpServer *mcpserver.MCPServer, baseURL string, opts ...OAuthHTTPOption) (*OAuthHTTPServer, error) {
	if err := validateHTTPSRequirement(baseURL); err != nil {
		return nil, err
	}

	s := &OAuthHTTPServer{
		mcpServer:   mcpServer,
		baseURL:     baseURL,
		logger:      slog.Default(),
		userinfoURL: googleUserinfoURL,
		limiters:    make(map[string]*rate.Limiter),
		userCache:   make(map[string]cachedUser),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start starts the HTTP server and blocks until it stops.
func (s *OAuthHTTPServer) Start(addr string) error {
	mux := http.NewServeMux()

	// Protected Resource Metadata (RFC 9728) tells MCP clients that
	// Google is the authorization server.
	mux.Handle("/.well-known/oauth-protected-resource",
		s.rateLimitMiddleware(http.HandlerFunc(s.serveProtectedResourceMetadata)))

	var streamable http.Handler
	if s.disableStreaming {
		streamable = mcpserver.NewStreamableHTTPServer(s.mcpServer,
			mcpserver.WithEndpointPath("/mcp"),
			mcpserver.WithDisableStreaming(true),
		)
	} else {
		streamable = mcpserver.NewStreamableHTTPServer(s.mcpServer,
			mcpserver.WithEndpointPath("/mcp"),
		)
	}

	mux.Handle("/mcp", s.instrumentationMiddleware(
		s.rateLimitMiddleware(
			s.validateGoogleToken(
				s.oauthInstrumentationWrapper(streamable)))))

	if s.health != nil {
		s.health.RegisterHealthEndpoints(mux)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *OAuthHTTPServer) Shutdown(ctx context.Context) error {
	if s.sessions != nil {
		s.sessions.Stop()
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// serveProtectedResourceMetadata implements RFC 9728.
func (s *OAuthHTTPServer) serveProtectedResourceMetadata(w http.ResponseWriter, _ *http.Request) {
	metadata := map[string]any{
		"resource":              s.baseURL,
		"authorization_servers": []string{"https://accounts.google.com"},
		"bearer_methods_supported": []string{
			"header",
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(metadata)
}

// validateGoogleToken is middleware that validates Google OAuth bearer
// tokens against the userinfo endpoint and stores the resolved user in
// the request context.
func (s *OAuthHTTPServer) validateGoogleToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			w.Header().Set("WWW-Authenticate", fmt.Sprintf(
				`Bearer realm=%q, resource_metadata="/.well-known/oauth-protected-resource"`, s.baseURL))
			s.writeUnauthorized(w, "missing_token", "Missing Authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			s.writeUnauthorized(w, "invalid_token", "Invalid Authorization header format")
			return
		}
		accessToken := parts[1]

		user, err := s.userForToken(r.Context(), accessToken)
		if err != nil {
			s.logger.Warn("bearer token validation failed", "error", err)
			w.Header().Set("WWW-Authenticate", fmt.Sprintf(
				`Bearer realm=%q, error="invalid_token"`, s.baseURL))
			s.writeUnauthorized(w, "invalid_token",
				"Google token is invalid or expired. Re-authenticate through your MCP client.")
			return
		}

		if s.sessions != nil {
			if sessionID, err := s.sessions.ResolveSessionID(r); err == nil {
				s.sessions.SetAccountForSession(sessionID, user.Email)
			}
		}

		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
	})
}

// userForToken resolves a bearer token to a Google user, consulting the
// short-lived cache first.
func (s *OAuthHTTPServer) userForToken(ctx context.Context, accessToken string) (*GoogleUserInfo, error) {
	now := time.Now()

	s.mu.Lock()
	if cached, ok := s.userCache[accessToken]; ok && cached.expires.After(now) {
		s.mu.Unlock()
		return cached.user, nil
	}
	s.mu.Unlock()

	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	resp, err := client.Get(s.userinfoURL)
	if err != nil {
		return nil, fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo request failed with status %d", resp.StatusCode)
	}

	var user GoogleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}

	s.mu.Lock()
	s.userCache[accessToken] = cachedUser{user: &user, expires: now.Add(userCacheTTL)}
	s.mu.Unlock()

	return &user, nil
}

// rateLimitMiddleware applies a per-IP token bucket.
func (s *OAuthHTTPServer) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}

		s.mu.Lock()
		limiter, ok := s.limiters[host]
		if !ok {
			limiter = rate.NewLimiter(10, 20)
			s.limiters[host] = limiter
		}
		s.mu.Unlock()

		if !limiter.Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// instrumentationMiddleware records request counts and latency.
func (s *OAuthHTTPServer) instrumentationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)
		s.metrics.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}

// oauthInstrumentationWrapper counts token validation outcomes. It runs
// inside validateGoogleToken, so reaching it means validation passed.
func (s *OAuthHTTPServer) oauthInstrumentationWrapper(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}

		s.metrics.RecordOAuthAuth(r.Context(), instrumentation.OAuthResultSuccess)
		next.ServeHTTP(w, r)
	})
}

// writeUnauthorized writes an OAuth error response with 401 status.
func (s *OAuthHTTPServer) writeUnauthorized(w http.ResponseWriter, errorCode, description string) {
	if s.metrics != nil {
		s.metrics.RecordOAuthAuth(context.Background(), instrumentation.OAuthResultFailure)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}

// responseWriter captures the status code for instrumentation.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// validateHTTPSRequirement ensures OAuth 2.1 HTTPS compliance
// Allows HTTP only for loopback addresses (localhost, 127.0.0.1, ::1)
func validateHTTPSRequirement(baseURL string) error {
	if baseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	if u.Scheme == "http" {
		host := u.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			return fmt.Errorf("OAuth 2.1 requires HTTPS for production (got: %s). Use HTTPS or localhost for development", baseURL)
		}
	} else if u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s. Must be http (localhost only) or https", u.Scheme)
	}

	return nil
}
