// Package google holds the plumbing shared by all Workspace service
// clients: the scope registry, per-service rate limiting, and the Runner
// that wraps every API call in the retry executor so timeout, backoff and
// classification semantics are uniform across services.
package google
