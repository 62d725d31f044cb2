// Package auth acquires Google API credentials through one of two
// interchangeable strategies: a service-account key file (no user
// interaction) or the OAuth2 authorization-code flow with a local
// loopback listener and browser launch.
//
// Both strategies implement Provider. The OAuth2 variant persists tokens
// through the tokenstore package and saves again after every silent
// refresh, so a process restart never forces a new browser flow while a
// refresh token remains valid.
package auth
