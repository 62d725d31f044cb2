package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestValidateHTTPSRequirement(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{
			name:    "valid HTTPS URL",
			baseURL: "https://mcp.example.com",
			wantErr: false,
		},
		{
			name:    "valid HTTP localhost",
			baseURL: "http://localhost:8080",
			wantErr: false,
		},
		{
			name:    "valid HTTP 127.0.0.1",
			baseURL: "http://127.0.0.1:8080",
			wantErr: false,
		},
		{
			name:    "valid HTTP ::1 (IPv6 loopback)",
			baseURL: "http://[::1]:8080",
			wantErr: false,
		},
		{
			name:    "invalid HTTP non-localhost",
			baseURL: "http://mcp.example.com",
			wantErr: true,
		},
		{
			name:    "invalid HTTP with localhost substring",
			baseURL: "http://localhost.example.com",
			wantErr: true,
		},
		{
			name:    "invalid HTTP with 127.0.0.1 in domain",
			baseURL: "http://127.0.0.1.example.com",
			wantErr: true,
		},
		{
			name:    "empty URL",
			baseURL: "",
			wantErr: true,
		},
		{
			name:    "invalid URL format",
			baseURL: "not a url",
			wantErr: true,
		},
		{
			name:    "invalid scheme",
			baseURL: "ftp://example.com",
			wantErr: true,
		},
		{
			name:    "HTTPS with path",
			baseURL: "https://mcp.example.com/api",
			wantErr: false,
		},
		{
			name:    "HTTPS with port",
			baseURL: "https://mcp.example.com:8443",
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateHTTPSRequirement(tt.baseURL)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateHTTPSRequirement() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestResponseWriter(t *testing.T) {
	t.Run("captures status code", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		rw := newResponseWriter(recorder)

		rw.WriteHeader(http.StatusNotFound)

		if rw.statusCode != http.StatusNotFound {
			t.Errorf("statusCode = %d, want %d", rw.statusCode, http.StatusNotFound)
		}
	})

	t.Run("defaults to 200", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		rw := newResponseWriter(recorder)

		// Don't call WriteHeader, check default
		if rw.statusCode != http.StatusOK {
			t.Errorf("statusCode = %d, want %d", rw.statusCode, http.StatusOK)
		}
	})

	t.Run("passes write header to underlying writer", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		rw := newResponseWriter(recorder)

		rw.WriteHeader(http.StatusCreated)

		if recorder.Code != http.StatusCreated {
			t.Errorf("recorder.Code = %d, want %d", recorder.Code, http.StatusCreated)
		}
	})
}

func TestInstrumentationMiddleware(t *testing.T) {
	t.Run("calls next handler when no metrics", func(t *testing.T) {
		server := &OAuthHTTPServer{} // No metrics set
		called := false
		next := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
			called = true
		})

		handler := server.instrumentationMiddleware(next)
		req := httptest.NewRequest("GET", "/test", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if !called {
			t.Error("expected next handler to be called")
		}
	})
}

func TestValidateGoogleToken(t *testing.T) {
	userinfo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth != "Bearer good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(GoogleUserInfo{Email: "jane@example.com", VerifiedEmail: true})
	}))
	defer userinfo.Close()

	newServer := func() *OAuthHTTPServer {
		s, err := NewOAuthHTTPServer(nil, "http://localhost:8080")
		if err != nil {
			t.Fatalf("NewOAuthHTTPServer() error = %v", err)
		}
		s.userinfoURL = userinfo.URL
		return s
	}

	t.Run("missing authorization header", func(t *testing.T) {
		s := newServer()
		handler := s.validateGoogleToken(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
			t.Error("next handler should not be called")
		}))

		req := httptest.NewRequest("POST", "/mcp", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
		if !strings.Contains(rec.Header().Get("WWW-Authenticate"), "resource_metadata") {
			t.Errorf("WWW-Authenticate = %q, want resource_metadata hint", rec.Header().Get("WWW-Authenticate"))
		}
	})

	t.Run("malformed authorization header", func(t *testing.T) {
		s := newServer()
		handler := s.validateGoogleToken(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
			t.Error("next handler should not be called")
		}))

		req := httptest.NewRequest("POST", "/mcp", nil)
		req.Header.Set("Authorization", "Basic abc123")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("rejected token", func(t *testing.T) {
		s := newServer()
		handler := s.validateGoogleToken(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
			t.Error("next handler should not be called")
		}))

		req := httptest.NewRequest("POST", "/mcp", nil)
		req.Header.Set("Authorization", "Bearer bad-token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("valid token puts user in context", func(t *testing.T) {
		s := newServer()
		var gotEmail string
		handler := s.validateGoogleToken(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			if user, ok := GetUserFromContext(r.Context()); ok {
				gotEmail = user.Email
			}
		}))

		req := httptest.NewRequest("POST", "/mcp", nil)
		req.Header.Set("Authorization", "Bearer good-token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		if gotEmail != "jane@example.com" {
			t.Errorf("user email = %q, want %q", gotEmail, "jane@example.com")
		}
	})

	t.Run("validation result is cached", func(t *testing.T) {
		s := newServer()
		handler := s.validateGoogleToken(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))

		req := httptest.NewRequest("POST", "/mcp", nil)
		req.Header.Set("Authorization", "Bearer good-token")
		handler.ServeHTTP(httptest.NewRecorder(), req)

		// Close the backend; the cached result must still serve.
		userinfo.Close()
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("status after cache hit = %d, want %d", rec.Code, http.StatusOK)
		}
	})
}

func TestUserCacheExpiry(t *testing.T) {
	s, err := NewOAuthHTTPServer(nil, "http://localhost:8080")
	if err != nil {
		t.Fatalf("NewOAuthHTTPServer() error = %v", err)
	}

	s.userCache["stale-token"] = cachedUser{
		user:    &GoogleUserInfo{Email: "old@example.com"},
		expires: time.Now().Add(-time.Second),
	}

	// An expired entry must not be trusted; with no backend reachable the
	// lookup fails instead of returning the stale user.
	s.userinfoURL = "http://127.0.0.1:0/userinfo"
	if _, err := s.userForToken(t.Context(), "stale-token"); err == nil {
		t.Error("expected error for expired cache entry with unreachable backend")
	}
}

func TestServeProtectedResourceMetadata(t *testing.T) {
	s, err := NewOAuthHTTPServer(nil, "https://mcp.example.com")
	if err != nil {
		t.Fatalf("NewOAuthHTTPServer() error = %v", err)
	}

	req := httptest.NewRequest("GET", "/.well-known/oauth-protected-resource", nil)
	rec := httptest.NewRecorder()
	s.serveProtectedResourceMetadata(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var metadata struct {
		Resource             string   `json:"resource"`
		AuthorizationServers []string `json:"authorization_servers"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&metadata); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if metadata.Resource != "https://mcp.example.com" {
		t.Errorf("resource = %q, want %q", metadata.Resource, "https://mcp.example.com")
	}
	if len(metadata.AuthorizationServers) != 1 || metadata.AuthorizationServers[0] != "https://accounts.google.com" {
		t.Errorf("authorization_servers = %v, want Google", metadata.AuthorizationServers)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	s, err := NewOAuthHTTPServer(nil, "http://localhost:8080")
	if err != nil {
		t.Fatalf("NewOAuthHTTPServer() error = %v", err)
	}

	handler := s.rateLimitMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var limited bool
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest("GET", "/mcp", nil)
		req.RemoteAddr = "10.0.0.1:54321"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Error("expected rate limiter to reject a burst of 50 requests")
	}

	// A different client IP gets its own bucket.
	req := httptest.NewRequest("GET", "/mcp", nil)
	req.RemoteAddr = "10.0.0.2:54321"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("fresh client status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestOAuthInstrumentationWrapper(t *testing.T) {
	t.Run("calls next handler when no metrics", func(t *testing.T) {
		server := &OAuthHTTPServer{} // No metrics set
		called := false
		next := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
			called = true
		})

		handler := server.oauthInstrumentationWrapper(next)
		req := httptest.NewRequest("GET", "/mcp", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if !called {
			t.Error("expected next handler to be called")
		}
	})
}
