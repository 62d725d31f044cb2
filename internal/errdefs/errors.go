package errdefs

import (
	"fmt"
	"time"
)

// Error is implemented by every error in the taxonomy.
type Error interface {
	error

	// IsRetryable reports whether retrying the failed operation can
	// plausibly succeed without caller intervention.
	IsRetryable() bool

	// ErrorCode returns a stable machine-readable identifier for the
	// failure, suitable for metrics labels and log fields.
	ErrorCode() string
}

// Auth error codes.
const (
	CodeNoCredentials  = "no_credentials"
	CodeInvalidGrant   = "invalid_grant"
	CodeInvalidClient  = "invalid_client"
	CodeAccessDenied   = "access_denied"
	CodeStateMismatch  = "state_mismatch"
	CodeTokenExpired   = "token_expired"
	CodeRefreshFailed  = "refresh_failed"
	CodeFlowTimeout    = "flow_timeout"
	CodeKeyFileInvalid = "key_file_invalid"
)

// AuthError reports a credential acquisition or validation failure.
// Auth failures are terminal: retrying without user or operator action
// cannot succeed, with the single exception of a refresh attempt that
// failed on a transient transport error.
type AuthError struct {
	Code    string
	Message string
	Cause   error

	// Transient marks a refresh failure caused by a transport error
	// rather than a rejected grant.
	Transient bool
}

func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("auth: %s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("auth: %s: %s", e.Code, e.Message)
}

func (e *AuthError) Unwrap() error { return e.Cause }

func (e *AuthError) IsRetryable() bool {
	return e.Code == CodeRefreshFailed && e.Transient
}

func (e *AuthError) ErrorCode() string { return e.Code }

// Timeout phases.
const (
	TimeoutPhaseRequest = "request"
	TimeoutPhaseTotal   = "total"
)

// TimeoutError reports that an operation exceeded one of the two
// configured ceilings. Request-phase timeouts bound a single attempt and
// are retry-eligible; total-phase timeouts bound the whole retry loop and
// are terminal.
type TimeoutError struct {
	Phase             string
	Operation         string
	Limit             time.Duration
	Elapsed           time.Duration
	CompletedAttempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout: %s operation %q exceeded %s after %s (%d attempts completed)",
		e.Phase, e.Operation, e.Limit, e.Elapsed.Round(time.Millisecond), e.CompletedAttempts)
}

func (e *TimeoutError) IsRetryable() bool { return e.Phase == TimeoutPhaseRequest }

func (e *TimeoutError) ErrorCode() string { return "timeout_" + e.Phase }

// Token store backends.
const (
	BackendKeyring = "keyring"
	BackendFile    = "file"
)

// Corruption kinds.
const (
	CorruptionEncryption = "encryption"
	CorruptionJSON       = "json"
	CorruptionStructure  = "structure"
)

// CorruptionError reports that persisted credentials could not be read
// back intact. It is never retryable; the caller must treat the stored
// credentials as lost and re-authenticate.
type CorruptionError struct {
	Backend string
	Kind    string
	Path    string
	Cause   error

	// Recoverable reports whether the other backend held usable
	// credentials when the corruption was detected.
	Recoverable bool

	// BackupPath is set when the corrupted file was quarantined.
	BackupPath string
}

func (e *CorruptionError) Error() string {
	msg := fmt.Sprintf("token cache corrupted: %s corruption in %s backend", e.Kind, e.Backend)
	if e.BackupPath != "" {
		msg += fmt.Sprintf(" (preserved at %s)", e.BackupPath)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *CorruptionError) Unwrap() error { return e.Cause }

func (e *CorruptionError) IsRetryable() bool { return false }

func (e *CorruptionError) ErrorCode() string {
	return fmt.Sprintf("corruption_%s_%s", e.Backend, e.Kind)
}

// ServiceError is the normalized form of a Google API failure. It carries
// the original HTTP status so retry classification and callers see the
// root cause rather than a synthetic wrapper.
type ServiceError struct {
	Service    string
	Operation  string
	StatusCode int
	Reason     string
	Message    string
	Cause      error

	// RetryAfter is the server-specified delay from a rate-limit
	// response. When non-zero it overrides computed backoff verbatim.
	RetryAfter time.Duration
}

func (e *ServiceError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s failed with status %d: %s", e.Service, e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s failed: %s", e.Service, e.Operation, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

// IsRetryable follows the HTTP status classification: 429 and 5xx are
// transient, other 4xx are caller errors, statusless failures are assumed
// to be transport problems and retried.
func (e *ServiceError) IsRetryable() bool {
	switch {
	case e.StatusCode == 429:
		return true
	case e.StatusCode >= 500:
		return true
	case e.StatusCode >= 400:
		return false
	default:
		return true
	}
}

func (e *ServiceError) ErrorCode() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("http_%d", e.StatusCode)
}
