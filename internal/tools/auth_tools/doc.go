// Package auth_tools provides MCP tools for authentication diagnostics.
//
// The tools report credential state (strategy, validity, token expiry)
// without ever exposing token material. Interactive authentication runs
// through the CLI (auth login), not through MCP tools.
package auth_tools
