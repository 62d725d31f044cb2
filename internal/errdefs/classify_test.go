package errdefs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func TestClassifyPassesThroughTypedErrors(t *testing.T) {
	orig := &AuthError{Code: CodeStateMismatch, Message: "state mismatch"}
	wrapped := fmt.Errorf("flow failed: %w", orig)

	got := Classify("sheets", "spreadsheets.get", wrapped)

	var aerr *AuthError
	require.True(t, errors.As(got, &aerr))
	assert.Equal(t, CodeStateMismatch, aerr.Code)
}

func TestClassifyGoogleError(t *testing.T) {
	tests := []struct {
		name       string
		gerr       *googleapi.Error
		wantAuth   bool
		wantStatus int
		wantRetry  bool
	}{
		{
			name:      "401 maps to auth",
			gerr:      &googleapi.Error{Code: 401, Message: "Invalid Credentials"},
			wantAuth:  true,
			wantRetry: false,
		},
		{
			name: "403 with auth reason maps to auth",
			gerr: &googleapi.Error{
				Code:    403,
				Message: "Insufficient Permission",
				Errors:  []googleapi.ErrorItem{{Reason: "insufficientScope"}},
			},
			wantAuth:  true,
			wantRetry: false,
		},
		{
			name: "403 with quota reason stays a service error",
			gerr: &googleapi.Error{
				Code:    403,
				Message: "Quota exceeded",
				Errors:  []googleapi.ErrorItem{{Reason: "quotaExceeded"}},
			},
			wantStatus: 403,
			wantRetry:  false,
		},
		{
			name:       "429 is retryable",
			gerr:       &googleapi.Error{Code: 429, Message: "Rate limit"},
			wantStatus: 429,
			wantRetry:  true,
		},
		{
			name:       "503 is retryable",
			gerr:       &googleapi.Error{Code: 503, Message: "Backend error"},
			wantStatus: 503,
			wantRetry:  true,
		},
		{
			name:       "404 is terminal",
			gerr:       &googleapi.Error{Code: 404, Message: "Not found"},
			wantStatus: 404,
			wantRetry:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify("drive", "files.get", tt.gerr)
			assert.Equal(t, tt.wantRetry, got.IsRetryable())

			if tt.wantAuth {
				var aerr *AuthError
				assert.True(t, errors.As(got, &aerr))
				return
			}
			var serr *ServiceError
			require.True(t, errors.As(got, &serr))
			assert.Equal(t, tt.wantStatus, serr.StatusCode)
			assert.Equal(t, "drive", serr.Service)
			assert.Equal(t, "files.get", serr.Operation)
		})
	}
}

func TestClassifyRetryAfterHeader(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "7")
	gerr := &googleapi.Error{Code: 429, Message: "slow down", Header: h}

	got := Classify("sheets", "values.get", gerr)

	after, ok := RetryAfterHint(got)
	require.True(t, ok)
	assert.Equal(t, 7*time.Second, after)
}

func TestClassifyContextErrors(t *testing.T) {
	got := Classify("docs", "documents.get", context.DeadlineExceeded)
	var terr *TimeoutError
	require.True(t, errors.As(got, &terr))
	assert.Equal(t, TimeoutPhaseRequest, terr.Phase)
	assert.True(t, terr.IsRetryable())

	got = Classify("docs", "documents.get", context.Canceled)
	assert.False(t, got.IsRetryable())
}

func TestClassifyAuthKeywordFallback(t *testing.T) {
	got := Classify("calendar", "events.list",
		errors.New(`oauth2: "invalid_grant" token has been expired or revoked`))

	var aerr *AuthError
	require.True(t, errors.As(got, &aerr))
	assert.Equal(t, CodeInvalidGrant, aerr.Code)
	assert.False(t, aerr.IsRetryable())
}

func TestTimeoutErrorRetryability(t *testing.T) {
	req := &TimeoutError{Phase: TimeoutPhaseRequest, Operation: "files.list", Limit: 30 * time.Second}
	total := &TimeoutError{Phase: TimeoutPhaseTotal, Operation: "files.list", Limit: 2 * time.Minute}

	assert.True(t, req.IsRetryable())
	assert.False(t, total.IsRetryable())
	assert.Equal(t, "timeout_request", req.ErrorCode())
	assert.Equal(t, "timeout_total", total.ErrorCode())
}

func TestCorruptionErrorNeverRetryable(t *testing.T) {
	err := &CorruptionError{
		Backend:    BackendFile,
		Kind:       CorruptionEncryption,
		Path:       "/home/u/.config/workspace-mcp/oauth2-tokens.enc",
		BackupPath: "/home/u/.config/workspace-mcp/oauth2-tokens.enc.corrupted-1700000000000",
	}

	assert.False(t, err.IsRetryable())
	assert.Equal(t, "corruption_file_encryption", err.ErrorCode())
	assert.Contains(t, err.Error(), "preserved at")
}

func TestAuthErrorTransientRefresh(t *testing.T) {
	terminal := &AuthError{Code: CodeRefreshFailed, Message: "grant revoked"}
	transient := &AuthError{Code: CodeRefreshFailed, Message: "connection reset", Transient: true}

	assert.False(t, terminal.IsRetryable())
	assert.True(t, transient.IsRetryable())
}
