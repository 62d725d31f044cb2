package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/driftware/workspace-mcp/internal/auth"
	"github.com/driftware/workspace-mcp/internal/calendar"
	"github.com/driftware/workspace-mcp/internal/docs"
	"github.com/driftware/workspace-mcp/internal/drive"
	"github.com/driftware/workspace-mcp/internal/google"
	"github.com/driftware/workspace-mcp/internal/instrumentation"
	"github.com/driftware/workspace-mcp/internal/retry"
	"github.com/driftware/workspace-mcp/internal/sheets"
)

// ProviderFactory builds an auth provider for a named account. The
// server context calls it at most once per account and caches the
// result.
type ProviderFactory func(ctx context.Context, account string) (auth.Provider, error)

// ServerContext holds the shared state of the MCP server: one auth
// provider per account and lazily constructed, cached service clients.
// All clients built here share a single retry executor so resilience
// behavior is uniform.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	newProvider ProviderFactory
	executor    *retry.Executor
	readOnly    bool
	metrics     *instrumentation.Metrics
	auditLogger *instrumentation.AuditLogger

	mu              sync.RWMutex
	providers       map[string]auth.Provider
	runners         map[string]*google.Runner
	sheetsClients   map[string]*sheets.Client
	driveClients    map[string]*drive.Client
	calendarClients map[string]*calendar.Client
	docsClients     map[string]*docs.Client
	shutdown        bool
}

// ServerContextOption configures optional server context behavior.
type ServerContextOption func(*ServerContext)

// WithMetrics attaches tool invocation metrics.
func WithMetrics(m *instrumentation.Metrics) ServerContextOption {
	return func(sc *ServerContext) { sc.metrics = m }
}

// WithAuditLogger attaches the audit logger for tool invocations.
func WithAuditLogger(al *instrumentation.AuditLogger) ServerContextOption {
	return func(sc *ServerContext) { sc.auditLogger = al }
}

// NewServerContext creates a new server context. The factory supplies
// auth providers per account; the executor is shared by every service
// runner.
func NewServerContext(ctx context.Context, factory ProviderFactory, executor *retry.Executor, readOnly bool, opts ...ServerContextOption) (*ServerContext, error) {
	if factory == nil {
		return nil, fmt.Errorf("provider factory is required")
	}
	if executor == nil {
		return nil, fmt.Errorf("retry executor is required")
	}

	shutdownCtx, cancel := context.WithCancel(ctx)
	sc := &ServerContext{
		ctx:             shutdownCtx,
		cancel:          cancel,
		newProvider:     factory,
		executor:        executor,
		readOnly:        readOnly,
		providers:       make(map[string]auth.Provider),
		runners:         make(map[string]*google.Runner),
		sheetsClients:   make(map[string]*sheets.Client),
		driveClients:    make(map[string]*drive.Client),
		calendarClients: make(map[string]*calendar.Client),
		docsClients:     make(map[string]*docs.Client),
	}
	for _, opt := range opts {
		opt(sc)
	}
	return sc, nil
}

// Metrics returns the metrics recorder, or nil if not configured.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// AuditLogger returns the audit logger, or nil if not configured.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	return sc.auditLogger
}

// Context returns the server context.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// ReadOnly reports whether write tools are disabled.
func (sc *ServerContext) ReadOnly() bool {
	return sc.readOnly
}

// ProviderForAccount returns the cached auth provider for an account,
// building and initializing it on first use. Initialization failures
// are returned so callers can surface them to the user.
func (sc *ServerContext) ProviderForAccount(account string) (auth.Provider, error) {
	if account == "" {
		account = "default"
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	if provider, ok := sc.providers[account]; ok {
		return provider, nil
	}

	provider, err := sc.newProvider(sc.ctx, account)
	if err != nil {
		return nil, fmt.Errorf("create auth provider for account %s: %w", account, err)
	}
	if err := provider.Initialize(sc.ctx); err != nil {
		return nil, fmt.Errorf("initialize auth provider for account %s: %w", account, err)
	}

	sc.providers[account] = provider
	return provider, nil
}

// Provider returns the auth provider for the default account.
func (sc *ServerContext) Provider() (auth.Provider, error) {
	return sc.ProviderForAccount("default")
}

// Accounts returns the accounts with a cached provider.
func (sc *ServerContext) Accounts() []string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	accounts := make([]string, 0, len(sc.providers))
	for account := range sc.providers {
		accounts = append(accounts, account)
	}
	return accounts
}

// runnerFor returns the shared runner for a service, building it on
// first use. The lock must be held by the caller.
func (sc *ServerContext) runnerFor(service string) *google.Runner {
	if runner, ok := sc.runners[service]; ok {
		return runner
	}
	runner := google.NewRunner(service, sc.executor, google.NewRateLimiter(0, 0))
	sc.runners[service] = runner
	return runner
}

// SheetsClientForAccount returns the Sheets client for an account,
// creating and caching it on first use.
func (sc *ServerContext) SheetsClientForAccount(account string) (*sheets.Client, error) {
	if account == "" {
		account = "default"
	}

	provider, err := sc.ProviderForAccount(account)
	if err != nil {
		return nil, err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	if client, ok := sc.sheetsClients[account]; ok {
		return client, nil
	}
	client, err := sheets.NewClient(sc.ctx, provider, sc.runnerFor(google.ServiceSheets))
	if err != nil {
		return nil, err
	}
	sc.sheetsClients[account] = client
	return client, nil
}

// DriveClientForAccount returns the Drive client for an account,
// creating and caching it on first use.
func (sc *ServerContext) DriveClientForAccount(account string) (*drive.Client, error) {
	if account == "" {
		account = "default"
	}

	provider, err := sc.ProviderForAccount(account)
	if err != nil {
		return nil, err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	if client, ok := sc.driveClients[account]; ok {
		return client, nil
	}
	client, err := drive.NewClient(sc.ctx, provider, sc.runnerFor(google.ServiceDrive))
	if err != nil {
		return nil, err
	}
	sc.driveClients[account] = client
	return client, nil
}

// CalendarClientForAccount returns the Calendar client for an account,
// creating and caching it on first use.
func (sc *ServerContext) CalendarClientForAccount(account string) (*calendar.Client, error) {
	if account == "" {
		account = "default"
	}

	provider, err := sc.ProviderForAccount(account)
	if err != nil {
		return nil, err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	if client, ok := sc.calendarClients[account]; ok {
		return client, nil
	}
	client, err := calendar.NewClient(sc.ctx, provider, sc.runnerFor(google.ServiceCalendar))
	if err != nil {
		return nil, err
	}
	sc.calendarClients[account] = client
	return client, nil
}

// DocsClientForAccount returns the Docs client for an account, creating
// and caching it on first use.
func (sc *ServerContext) DocsClientForAccount(account string) (*docs.Client, error) {
	if account == "" {
		account = "default"
	}

	provider, err := sc.ProviderForAccount(account)
	if err != nil {
		return nil, err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	if client, ok := sc.docsClients[account]; ok {
		return client, nil
	}
	client, err := docs.NewClient(sc.ctx, provider, sc.runnerFor(google.ServiceDocs))
	if err != nil {
		return nil, err
	}
	sc.docsClients[account] = client
	return client, nil
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
