package cmd

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/driftware/workspace-mcp/internal/errdefs"
	"github.com/driftware/workspace-mcp/internal/instrumentation"
)

func TestParseCommaSeparatedList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: nil,
		},
		{
			name:     "single value",
			input:    "scope-a",
			expected: []string{"scope-a"},
		},
		{
			name:     "multiple values",
			input:    "scope-a,scope-b",
			expected: []string{"scope-a", "scope-b"},
		},
		{
			name:     "values with spaces around comma",
			input:    "scope-a, scope-b",
			expected: []string{"scope-a", "scope-b"},
		},
		{
			name:     "values with leading/trailing spaces",
			input:    "  scope-a  ,  scope-b  ",
			expected: []string{"scope-a", "scope-b"},
		},
		{
			name:     "trailing comma",
			input:    "scope-a,scope-b,",
			expected: []string{"scope-a", "scope-b"},
		},
		{
			name:     "leading comma",
			input:    ",scope-a,scope-b",
			expected: []string{"scope-a", "scope-b"},
		},
		{
			name:     "multiple consecutive commas",
			input:    "scope-a,,scope-b",
			expected: []string{"scope-a", "scope-b"},
		},
		{
			name:     "only commas and spaces",
			input:    ",  , , ",
			expected: []string{},
		},
		{
			name:     "single value with surrounding whitespace",
			input:    "  scope-a  ",
			expected: []string{"scope-a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseCommaSeparatedList(tt.input)

			// Handle nil vs empty slice comparison
			if tt.expected == nil {
				if result != nil {
					t.Errorf("parseCommaSeparatedList(%q) = %v, want nil", tt.input, result)
				}
				return
			}

			if len(result) != len(tt.expected) {
				t.Errorf("parseCommaSeparatedList(%q) = %v (len %d), want %v (len %d)",
					tt.input, result, len(result), tt.expected, len(tt.expected))
				return
			}

			for i, v := range result {
				if v != tt.expected[i] {
					t.Errorf("parseCommaSeparatedList(%q)[%d] = %q, want %q",
						tt.input, i, v, tt.expected[i])
				}
			}
		})
	}
}

func TestResolveBaseURL(t *testing.T) {
	tests := []struct {
		name     string
		baseURL  string
		addr     string
		expected string
	}{
		{
			name:     "explicit base URL wins",
			baseURL:  "https://mcp.example.com",
			addr:     ":8080",
			expected: "https://mcp.example.com",
		},
		{
			name:     "port-only addr auto-detects localhost",
			baseURL:  "",
			addr:     ":8080",
			expected: "http://localhost:8080",
		},
		{
			name:     "host and port addr used as-is",
			baseURL:  "",
			addr:     "127.0.0.1:9000",
			expected: "http://127.0.0.1:9000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveBaseURL(tt.baseURL, tt.addr)
			if got != tt.expected {
				t.Errorf("resolveBaseURL(%q, %q) = %q, want %q", tt.baseURL, tt.addr, got, tt.expected)
			}
		})
	}
}

func TestResolveBaseURLEnvFallback(t *testing.T) {
	t.Setenv("MCP_BASE_URL", "https://deployed.example.com")
	got := resolveBaseURL("", ":8080")
	if got != "https://deployed.example.com" {
		t.Errorf("resolveBaseURL with MCP_BASE_URL set = %q, want env value", got)
	}
}

func TestCredentialConfigProviderFactory(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	t.Run("no credentials", func(t *testing.T) {
		cfg := CredentialConfig{}
		if _, err := cfg.providerFactory(false, nil, logger, nil); err == nil {
			t.Fatal("expected error when no credentials are configured")
		}
	})

	t.Run("service account takes precedence", func(t *testing.T) {
		key := t.TempDir() + "/key.json"
		if err := os.WriteFile(key, []byte(`{}`), 0o600); err != nil {
			t.Fatal(err)
		}
		cfg := CredentialConfig{
			ServiceAccountKey: key,
			ClientID:          "ignored",
			ClientSecret:      "ignored",
		}
		factory, err := cfg.providerFactory(false, nil, logger, nil)
		if err != nil {
			t.Fatalf("providerFactory: %v", err)
		}
		provider, err := factory(t.Context(), "alice@example.com")
		if err != nil {
			t.Fatalf("factory: %v", err)
		}
		info := provider.AuthInfo(t.Context())
		if info.Strategy != "service_account" {
			t.Errorf("strategy = %q, want service_account", info.Strategy)
		}
	})

	t.Run("oauth2 fallback", func(t *testing.T) {
		cfg := CredentialConfig{
			ClientID:       "client-id",
			ClientSecret:   "client-secret",
			TokenStoreMode: "file",
			TokenFile:      t.TempDir() + "/tokens.json",
		}
		store, err := cfg.tokenStore(logger, nil)
		if err != nil {
			t.Fatalf("tokenStore: %v", err)
		}
		factory, err := cfg.providerFactory(true, store, logger, nil)
		if err != nil {
			t.Fatalf("providerFactory: %v", err)
		}
		provider, err := factory(t.Context(), "default")
		if err != nil {
			t.Fatalf("factory: %v", err)
		}
		info := provider.AuthInfo(t.Context())
		if info.Strategy != "oauth2" {
			t.Errorf("strategy = %q, want oauth2", info.Strategy)
		}
		if info.Account != "default" {
			t.Errorf("account = %q, want default", info.Account)
		}
	})
}

func TestRetryLabels(t *testing.T) {
	tests := []struct {
		operation   string
		wantService string
		wantOp      string
	}{
		{"values.update", "values", "update"},
		{"files.list", "files", "list"},
		{"spreadsheets.batchUpdate", "spreadsheets", "batchUpdate"},
		{"export", "export", "export"},
	}

	for _, tt := range tests {
		service, op := retryLabels(tt.operation)
		if service != tt.wantService || op != tt.wantOp {
			t.Errorf("retryLabels(%q) = (%q, %q), want (%q, %q)",
				tt.operation, service, op, tt.wantService, tt.wantOp)
		}
	}
}

func TestRefreshResult(t *testing.T) {
	if got := refreshResult(nil); got != instrumentation.OAuthResultSuccess {
		t.Errorf("refreshResult(nil) = %q, want success", got)
	}
	expired := &errdefs.AuthError{Code: errdefs.CodeTokenExpired, Message: "refresh token revoked"}
	if got := refreshResult(expired); got != instrumentation.OAuthResultExpired {
		t.Errorf("refreshResult(token expired) = %q, want expired", got)
	}
	rejected := &errdefs.AuthError{Code: errdefs.CodeRefreshFailed, Message: "rejected"}
	if got := refreshResult(rejected); got != instrumentation.OAuthResultFailure {
		t.Errorf("refreshResult(refresh failed) = %q, want failure", got)
	}
	if got := refreshResult(errors.New("network down")); got != instrumentation.OAuthResultFailure {
		t.Errorf("refreshResult(plain error) = %q, want failure", got)
	}
}

func TestCredentialConfigScopesFor(t *testing.T) {
	cfg := CredentialConfig{}
	full := cfg.scopesFor(false)
	ro := cfg.scopesFor(true)
	if len(full) == 0 || len(ro) == 0 {
		t.Fatal("default scope sets must not be empty")
	}

	cfg.Scopes = []string{"https://www.googleapis.com/auth/spreadsheets"}
	if got := cfg.scopesFor(true); len(got) != 1 || got[0] != cfg.Scopes[0] {
		t.Errorf("scope override not honored: %v", got)
	}
}
