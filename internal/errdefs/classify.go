package errdefs

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
)

// authReasons are structured googleapi reasons that indicate a credential
// problem rather than a generic service failure.
var authReasons = map[string]bool{
	"authError":         true,
	"forbidden":         true,
	"insufficientScope": true,
	"invalid":           true,
	"expired":           true,
	"tokenExpired":      true,
	"required":          true,
}

// Classify converts an arbitrary failure into a taxonomy error attributed
// to the given service and operation. Already-typed errors pass through
// unchanged. Structured fields are inspected before any message matching;
// keyword matching on the message is the last resort.
func Classify(service, operation string, err error) Error {
	if err == nil {
		return nil
	}

	var typed Error
	if errors.As(err, &typed) {
		return typed
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{
			Phase:     TimeoutPhaseRequest,
			Operation: operation,
		}
	}
	if errors.Is(err, context.Canceled) {
		return &ServiceError{
			Service:   service,
			Operation: operation,
			Reason:    "canceled",
			Message:   "operation canceled",
			Cause:     err,
		}
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return classifyGoogleError(service, operation, gerr)
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		if nerr.Timeout() {
			return &TimeoutError{
				Phase:     TimeoutPhaseRequest,
				Operation: operation,
			}
		}
		return &ServiceError{
			Service:   service,
			Operation: operation,
			Reason:    "network",
			Message:   nerr.Error(),
			Cause:     err,
		}
	}

	if code, ok := authKeyword(err.Error()); ok {
		return &AuthError{Code: code, Message: err.Error(), Cause: err}
	}

	return &ServiceError{
		Service:   service,
		Operation: operation,
		Message:   err.Error(),
		Cause:     err,
	}
}

func classifyGoogleError(service, operation string, gerr *googleapi.Error) Error {
	reason := ""
	if len(gerr.Errors) > 0 {
		reason = gerr.Errors[0].Reason
	}

	if gerr.Code == 401 || (gerr.Code == 403 && authReasons[reason]) {
		code := CodeTokenExpired
		if gerr.Code == 403 {
			code = CodeAccessDenied
		}
		return &AuthError{Code: code, Message: gerr.Message, Cause: gerr}
	}

	return &ServiceError{
		Service:    service,
		Operation:  operation,
		StatusCode: gerr.Code,
		Reason:     reason,
		Message:    gerr.Message,
		RetryAfter: retryAfterFromHeader(gerr),
		Cause:      gerr,
	}
}

// retryAfterFromHeader extracts a Retry-After hint from a googleapi error.
// Only the delta-seconds form is honored; HTTP-date values are ignored.
func retryAfterFromHeader(gerr *googleapi.Error) time.Duration {
	if gerr.Header == nil {
		return 0
	}
	v := gerr.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func authKeyword(msg string) (string, bool) {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "invalid_grant"):
		return CodeInvalidGrant, true
	case strings.Contains(lower, "invalid_client"):
		return CodeInvalidClient, true
	case strings.Contains(lower, "access_denied"), strings.Contains(lower, "access denied"):
		return CodeAccessDenied, true
	case strings.Contains(lower, "token has been expired or revoked"):
		return CodeTokenExpired, true
	default:
		return "", false
	}
}

// StatusCode extracts a normalized HTTP status from a taxonomy error.
// The second return is false when the error carries no status.
func StatusCode(err error) (int, bool) {
	var serr *ServiceError
	if errors.As(err, &serr) && serr.StatusCode > 0 {
		return serr.StatusCode, true
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code, true
	}
	return 0, false
}

// RetryAfterHint returns the server-specified retry delay, if any.
func RetryAfterHint(err error) (time.Duration, bool) {
	var serr *ServiceError
	if errors.As(err, &serr) && serr.RetryAfter > 0 {
		return serr.RetryAfter, true
	}
	return 0, false
}

// IsRetryable reports the taxonomy verdict for an arbitrary error,
// classifying it first if needed. Nil errors are not retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var typed Error
	if errors.As(err, &typed) {
		return typed.IsRetryable()
	}
	return Classify("", "", err).IsRetryable()
}
