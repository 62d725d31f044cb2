// Package errdefs defines the typed error taxonomy shared by the auth,
// token-store, retry and Google API layers.
//
// Every error in the taxonomy implements the Error interface, which adds a
// retryability verdict and a stable machine-readable code on top of the
// standard error contract. The retry executor consults IsRetryable after
// Classify has normalized a raw failure; callers switch on the concrete type
// with errors.As to decide between re-authentication, surfacing the failure,
// or giving up.
package errdefs
