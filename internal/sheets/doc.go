// Package sheets provides a client for interacting with the Google Sheets API.
//
// Supported operations cover spreadsheet creation, metadata lookup,
// reading and writing cell ranges in A1 notation, appending rows and
// clearing ranges. Writes default to USER_ENTERED input so formulas and
// dates behave like values typed into the editor.
//
// Each client instance is bound to one authenticated account and routes
// every API call through the shared runner, which applies the retry
// policy and per-service rate limiting. Appends run a single attempt
// because a retried append would duplicate rows.
package sheets
