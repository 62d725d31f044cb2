// Package server provides the MCP server context, session management,
// and the OAuth-protected HTTP transport for workspace-mcp.
//
// # Key Components
//
// ServerContext holds shared server state: one auth provider per
// account and lazily constructed, cached Google service clients
// (Sheets, Drive, Calendar, Docs). All clients share a single retry
// executor so resilience behavior is uniform across services.
//
// OAuthHTTPServer exposes the MCP server over streamable HTTP. Google
// acts as the authorization server: every request must carry a Google
// OAuth bearer token, which is validated against the userinfo endpoint
// and cached briefly. Protected Resource Metadata (RFC 9728) points
// clients at accounts.google.com.
//
// SessionIDManager handles multi-account session tracking for HTTP
// transport. It maps bearer tokens to accounts, enabling multiple users
// to share a single MCP server instance.
//
// MetricsServer serves Prometheus metrics on a dedicated port so
// operational metrics never ride on the authenticated MCP endpoint.
//
// # Security
//
//   - HTTPS required for production (localhost exempt for development)
//   - Bearer tokens validated against Google on every new token
//   - Rate limiting per client IP
//   - Health endpoints carry no account data
package server
