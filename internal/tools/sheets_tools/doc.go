// Package sheets_tools provides MCP tools for interacting with Google Sheets.
//
// This package registers tools that allow AI assistants to:
//   - Create spreadsheets and add sheets (tabs)
//   - Read and write cell ranges in A1 notation
//   - Append rows to tables and clear ranges
//
// Write operations are hidden when the server runs in read-only mode.
package sheets_tools
