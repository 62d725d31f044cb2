package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/driftware/workspace-mcp/internal/auth"
	"github.com/driftware/workspace-mcp/internal/errdefs"
	"github.com/driftware/workspace-mcp/internal/google"
	"github.com/driftware/workspace-mcp/internal/instrumentation"
	"github.com/driftware/workspace-mcp/internal/retry"
	"github.com/driftware/workspace-mcp/internal/server"
	"github.com/driftware/workspace-mcp/internal/tokenstore"
	"github.com/driftware/workspace-mcp/internal/tools/auth_tools"
	"github.com/driftware/workspace-mcp/internal/tools/calendar_tools"
	"github.com/driftware/workspace-mcp/internal/tools/docs_tools"
	"github.com/driftware/workspace-mcp/internal/tools/drive_tools"
	"github.com/driftware/workspace-mcp/internal/tools/sheets_tools"
)

// CredentialConfig holds the Google credential settings shared by the
// serve and auth commands.
type CredentialConfig struct {
	// ClientID and ClientSecret select the interactive OAuth2 strategy.
	ClientID     string
	ClientSecret string

	// ServiceAccountKey selects the service-account strategy. When set
	// it takes precedence over the OAuth2 client settings.
	ServiceAccountKey string

	// Impersonate is the subject for domain-wide delegation. When empty
	// and the account name looks like an email address, the account is
	// used as the subject.
	Impersonate string

	// TokenStoreMode is "auto", "keyring" or "file".
	TokenStoreMode string

	// TokenFile overrides the encrypted token file location.
	TokenFile string

	// Scopes overrides the default scope set when non-empty.
	Scopes []string
}

// applyEnv fills unset fields from environment variables.
func (c *CredentialConfig) applyEnv() {
	if c.ClientID == "" {
		c.ClientID = os.Getenv("GOOGLE_CLIENT_ID")
	}
	if c.ClientSecret == "" {
		c.ClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	}
	if c.ServiceAccountKey == "" {
		c.ServiceAccountKey = os.Getenv("GOOGLE_SERVICE_ACCOUNT_KEY")
	}
	if c.Impersonate == "" {
		c.Impersonate = os.Getenv("GOOGLE_IMPERSONATE_SUBJECT")
	}
	if c.TokenStoreMode == "" {
		c.TokenStoreMode = os.Getenv("TOKEN_STORE_MODE")
	}
	if c.TokenFile == "" {
		c.TokenFile = os.Getenv("TOKEN_FILE")
	}
	if len(c.Scopes) == 0 {
		c.Scopes = parseCommaSeparatedList(os.Getenv("GOOGLE_SCOPES"))
	}
}

// scopesFor returns the configured scope override or the default set.
func (c *CredentialConfig) scopesFor(readOnly bool) []string {
	if len(c.Scopes) > 0 {
		return c.Scopes
	}
	return google.ScopesFor(readOnly)
}

// tokenStore builds the credential store from the config. A non-nil
// metrics wires backend operations and corruption events into the
// token-store counters.
func (c *CredentialConfig) tokenStore(logger *slog.Logger, metrics *instrumentation.Metrics) (*tokenstore.DualStore, error) {
	opts := []tokenstore.DualOption{tokenstore.WithLogger(logger)}
	if metrics != nil {
		opts = append(opts,
			tokenstore.WithEventSink(func(ev tokenstore.CorruptionEvent) {
				metrics.RecordCorruptionEvent(context.Background(), ev.Backend, ev.Kind)
			}),
			tokenstore.WithOpSink(func(ctx context.Context, operation, backend string, err error) {
				result := instrumentation.StatusSuccess
				if err != nil {
					result = instrumentation.StatusError
				}
				metrics.RecordTokenStoreOp(ctx, operation, backend, result)
			}),
		)
	}
	return tokenstore.NewDualStore(tokenstore.Mode(c.TokenStoreMode), c.TokenFile, opts...)
}

// providerFactory builds the per-account auth provider constructor used
// by the server context. A non-nil metrics wires token refresh outcomes
// into the refresh counter.
func (c *CredentialConfig) providerFactory(readOnly bool, store tokenstore.Store, logger *slog.Logger, metrics *instrumentation.Metrics) (server.ProviderFactory, error) {
	scopes := c.scopesFor(readOnly)

	if c.ServiceAccountKey != "" {
		keyFile := c.ServiceAccountKey
		impersonate := c.Impersonate
		return func(_ context.Context, account string) (auth.Provider, error) {
			subject := impersonate
			if subject == "" && strings.Contains(account, "@") {
				subject = account
			}
			return auth.NewServiceAccountProvider(auth.ServiceAccountConfig{
				KeyFile: keyFile,
				Subject: subject,
				Scopes:  scopes,
			})
		}, nil
	}

	if c.ClientID == "" || c.ClientSecret == "" {
		return nil, fmt.Errorf("no credentials configured: set --google-client-id and --google-client-secret (or GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET), or --service-account-key")
	}

	clientID, clientSecret := c.ClientID, c.ClientSecret
	oauthOpts := []auth.OAuth2Option{auth.WithOAuth2Logger(logger)}
	if metrics != nil {
		oauthOpts = append(oauthOpts, auth.WithOAuth2RefreshHook(func(err error) {
			metrics.RecordOAuthTokenRefresh(context.Background(), refreshResult(err))
		}))
	}
	return func(_ context.Context, account string) (auth.Provider, error) {
		return auth.NewOAuth2Provider(auth.OAuth2Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       scopes,
			Account:      account,
		}, store, oauthOpts...)
	}, nil
}

// refreshResult maps a token refresh outcome onto the metric result
// label: success, expired (the refresh token is dead) or failure.
func refreshResult(err error) string {
	if err == nil {
		return instrumentation.OAuthResultSuccess
	}
	var aerr *errdefs.AuthError
	if errors.As(err, &aerr) && aerr.Code == errdefs.CodeTokenExpired {
		return instrumentation.OAuthResultExpired
	}
	return instrumentation.OAuthResultFailure
}

// retryLabels splits a dotted Google API operation name such as
// "values.update" into the service and operation metric labels.
func retryLabels(operation string) (service, op string) {
	service, op, ok := strings.Cut(operation, ".")
	if !ok {
		return operation, operation
	}
	return service, op
}

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

func newServeCmd() *cobra.Command {
	var (
		debugMode        bool
		transport        string
		httpAddr         string
		readOnly         bool
		disableStreaming bool
		baseURL          string
		scopesList       string
		creds            CredentialConfig
		metricsEnabled   bool
		metricsAddr      string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server to provide Google Sheets,
Drive, Calendar and Docs tools for AI assistants.

Supports multiple transport types:
  - stdio: Standard input/output (default)
  - streamable-http: Streamable HTTP transport

Safety Mode:
  Use --read-only to hide mutating tools (cell writes, file deletion,
  event creation, etc.) and request read-only OAuth scopes.

Credentials:
  Interactive OAuth2 (default):
    --google-client-id and --google-client-secret flags
    OR GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET env vars
    Run 'workspace-mcp auth login' once before starting the server.

  Service account (headless deployments):
    --service-account-key path/to/key.json
    OR GOOGLE_SERVICE_ACCOUNT_KEY env var
    Use --impersonate for domain-wide delegation.

HTTP Transport:
  Clients authenticate with a Google OAuth bearer token; the server
  validates it against Google's userinfo endpoint. Base URL is required
  for deployed instances (--base-url or MCP_BASE_URL); HTTPS is enforced
  for non-localhost URLs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds.Scopes = parseCommaSeparatedList(scopesList)
			creds.applyEnv()

			metricsConfig := MetricsConfig{
				Enabled: metricsEnabled,
				Addr:    metricsAddr,
			}
			if !cmd.Flags().Changed("metrics-addr") {
				if addr := os.Getenv("METRICS_ADDR"); addr != "" {
					metricsConfig.Addr = addr
				}
			}
			if !cmd.Flags().Changed("metrics-enabled") && os.Getenv("METRICS_ENABLED") == "false" {
				metricsConfig.Enabled = false
			}

			return runServe(transport, debugMode, httpAddr, readOnly, disableStreaming, baseURL, creds, metricsConfig)
		},
	}

	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":8080", "HTTP server address (for streamable-http transport)")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "Hide mutating tools and request read-only OAuth scopes")
	cmd.Flags().BoolVar(&disableStreaming, "disable-streaming", false, "Disable streaming for HTTP transport (for compatibility with certain clients)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Public base URL (HTTP transport only). Required for deployed instances. Can also use MCP_BASE_URL env var. Example: https://mcp.example.com")

	cmd.Flags().StringVar(&creds.ClientID, "google-client-id", "", "Google OAuth Client ID. Can also use GOOGLE_CLIENT_ID env var.")
	cmd.Flags().StringVar(&creds.ClientSecret, "google-client-secret", "", "Google OAuth Client Secret. Can also use GOOGLE_CLIENT_SECRET env var.")
	cmd.Flags().StringVar(&creds.ServiceAccountKey, "service-account-key", "", "Path to a service-account JSON key. Can also use GOOGLE_SERVICE_ACCOUNT_KEY env var.")
	cmd.Flags().StringVar(&creds.Impersonate, "impersonate", "", "Subject to impersonate via domain-wide delegation (service account only). Can also use GOOGLE_IMPERSONATE_SUBJECT env var.")
	cmd.Flags().StringVar(&creds.TokenStoreMode, "token-store", "auto", "Token store backend: auto, keyring or file. Can also use TOKEN_STORE_MODE env var.")
	cmd.Flags().StringVar(&creds.TokenFile, "token-file", "", "Override the encrypted token file location. Can also use TOKEN_FILE env var.")
	cmd.Flags().StringVar(&scopesList, "scopes", "", "Comma-separated OAuth scope override. Can also use GOOGLE_SCOPES env var.")

	cmd.Flags().BoolVar(&metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

// setupLogging configures the process-wide slog default. Stdio transport
// must keep stdout clean for the MCP protocol, so logs always go to
// stderr.
func setupLogging(debugMode bool, transport string) *slog.Logger {
	level := slog.LevelInfo
	if debugMode {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if transport == "stdio" {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func runServe(transport string, debugMode bool, httpAddr string, readOnly bool, disableStreaming bool, baseURL string, creds CredentialConfig, metricsConfig MetricsConfig) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := setupLogging(debugMode, transport)

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Error("instrumentation shutdown failed", "error", err)
		}
	}()

	// Start metrics server if enabled and not in stdio mode
	var metricsServer *server.MetricsServer
	if transport != "stdio" && metricsConfig.Enabled && provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    metricsConfig.Addr,
			Enabled:                 true,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}

		go func() {
			if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	var metrics *instrumentation.Metrics
	if provider.Enabled() {
		metrics = provider.Metrics()
	}

	// Build the credential store and per-account provider factory
	store, err := creds.tokenStore(logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to open token store: %w", err)
	}

	factory, err := creds.providerFactory(readOnly, store, logger, metrics)
	if err != nil {
		return err
	}

	// Build the retry executor shared by all Google API clients
	retryConfig := retry.ConfigFromEnv()
	retryOpts := []retry.Option{retry.WithLogger(logger)}
	if metrics != nil {
		retryOpts = append(retryOpts, retry.WithOnRetry(func(operation string, _ int, _ time.Duration, _ error) {
			service, op := retryLabels(operation)
			metrics.RecordRetryAttempt(context.Background(), service, op)
		}))
	}
	executor, err := retry.NewExecutor(retryConfig, retryOpts...)
	if err != nil {
		return fmt.Errorf("invalid retry configuration: %w", err)
	}

	// Create server context
	var contextOpts []server.ServerContextOption
	if provider.Enabled() {
		contextOpts = append(contextOpts,
			server.WithMetrics(provider.Metrics()),
			server.WithAuditLogger(instrumentation.NewAuditLoggerWithConfig(nil, instrConfig.AuditLogging)),
		)
	}

	serverContext, err := server.NewServerContext(shutdownCtx, factory, executor, readOnly, contextOpts...)
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		// Shutdown metrics server first
		if metricsServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics server shutdown failed", "error", err)
			}
		}
		if err := serverContext.Shutdown(); err != nil {
			logger.Error("server context shutdown failed", "error", err)
		}
	}()

	// Create MCP server
	mcpSrv := mcpserver.NewMCPServer("workspace-mcp", version,
		mcpserver.WithToolCapabilities(true),
	)

	if readOnly {
		logger.Info("starting server in read-only mode (mutating tools hidden)")
	} else {
		logger.Info("starting server with write operations enabled")
	}

	// Register all tools
	if err := registerAllTools(mcpSrv, serverContext); err != nil {
		return err
	}

	// Start the appropriate server based on transport type
	switch transport {
	case "stdio":
		return runStdioServer(mcpSrv)
	case "streamable-http":
		return runStreamableHTTPServer(shutdownCtx, mcpSrv, serverContext, httpAddr, baseURL, disableStreaming, metricsConfig, provider, logger)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", transport)
	}
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	err := <-serverDone
	if err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

// registerAllTools registers all MCP tools with the server.
func registerAllTools(mcpSrv *mcpserver.MCPServer, sc *server.ServerContext) error {
	type toolRegistration struct {
		name     string
		register func() error
	}

	registrations := []toolRegistration{
		{
			name: "Sheets",
			register: func() error {
				return sheets_tools.RegisterSheetsTools(mcpSrv, sc)
			},
		},
		{
			name: "Drive",
			register: func() error {
				return drive_tools.RegisterDriveTools(mcpSrv, sc)
			},
		},
		{
			name: "Calendar",
			register: func() error {
				return calendar_tools.RegisterCalendarTools(mcpSrv, sc)
			},
		},
		{
			name: "Docs",
			register: func() error {
				return docs_tools.RegisterDocsTools(mcpSrv, sc)
			},
		},
		{
			name: "Auth",
			register: func() error {
				return auth_tools.RegisterAuthTools(mcpSrv, sc)
			},
		},
	}

	for _, reg := range registrations {
		if err := reg.register(); err != nil {
			return fmt.Errorf("failed to register %s tools: %w", reg.name, err)
		}
	}

	return nil
}

// resolveBaseURL determines the public base URL from the flag, the
// MCP_BASE_URL environment variable, or localhost auto-detection.
func resolveBaseURL(baseURL, addr string) string {
	if baseURL == "" {
		baseURL = os.Getenv("MCP_BASE_URL")
	}
	if baseURL != "" {
		return baseURL
	}
	if strings.HasPrefix(addr, ":") {
		return fmt.Sprintf("http://localhost%s", addr)
	}
	return fmt.Sprintf("http://%s", addr)
}

func runStreamableHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, addr, baseURL string, disableStreaming bool, metricsConfig MetricsConfig, instrProvider *instrumentation.Provider, logger *slog.Logger) error {
	resolved := resolveBaseURL(baseURL, addr)
	if baseURL == "" && os.Getenv("MCP_BASE_URL") == "" {
		logger.Info("no base URL configured, using auto-detected", "base_url", resolved)
		logger.Info("for deployed instances, set --base-url flag or MCP_BASE_URL env var")
	} else {
		logger.Info("using configured base URL", "base_url", resolved)
	}

	sessionOpts := []server.SessionOption{server.WithSessionLogger(logger)}
	if instrProvider != nil && instrProvider.Enabled() {
		sessionOpts = append(sessionOpts, server.WithSessionMetrics(instrProvider.Metrics()))
	}
	sessions := server.NewSessionIDManager(sessionOpts...)

	opts := []server.OAuthHTTPOption{
		server.WithHTTPLogger(logger),
		server.WithHealthChecker(server.NewHealthChecker(sc)),
		server.WithSessionManager(sessions),
		server.WithDisableStreaming(disableStreaming),
	}
	if instrProvider != nil && instrProvider.Enabled() {
		opts = append(opts, server.WithHTTPMetrics(instrProvider.Metrics()))
	}

	httpServer, err := server.NewOAuthHTTPServer(mcpSrv, resolved, opts...)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	logger.Info("streamable HTTP server starting",
		"addr", addr,
		"mcp_endpoint", "/mcp",
		"health_endpoints", "/healthz /readyz",
		"resource_metadata", "/.well-known/oauth-protected-resource",
	)
	if metricsConfig.Enabled {
		logger.Info("metrics endpoint available", "addr", metricsConfig.Addr, "path", "/metrics")
	}
	logger.Info("clients must present a Google OAuth bearer token to access this server")

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.Start(addr); err != nil {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
		logger.Info("HTTP server stopped normally")
	}

	logger.Info("HTTP server gracefully stopped")
	return nil
}

// parseCommaSeparatedList parses a comma-separated string into a slice,
// trimming whitespace from each element and filtering out empty strings.
// Returns nil if the input is empty or contains only whitespace/commas.
func parseCommaSeparatedList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
