package retry

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variables recognized by ConfigFromEnv. All are optional;
// invalid values fall back to the defaults.
const (
	EnvMaxAttempts    = "GOOGLE_RETRY_MAX_ATTEMPTS"
	EnvBaseDelay      = "GOOGLE_RETRY_BASE_DELAY"
	EnvMaxDelay       = "GOOGLE_RETRY_MAX_DELAY"
	EnvJitter         = "GOOGLE_RETRY_JITTER"
	EnvRetriableCodes = "GOOGLE_RETRY_RETRIABLE_CODES"
	EnvRequestTimeout = "GOOGLE_REQUEST_TIMEOUT"
	EnvTotalTimeout   = "GOOGLE_TOTAL_TIMEOUT"
)

// Defaults.
const (
	DefaultMaxAttempts    = 3
	DefaultBaseDelay      = 1000 * time.Millisecond
	DefaultMaxDelay       = 30000 * time.Millisecond
	DefaultMultiplier     = 2.0
	DefaultJitter         = 0.1
	DefaultRequestTimeout = 30000 * time.Millisecond
	DefaultTotalTimeout   = 120000 * time.Millisecond
)

// validRetriableCodes is the closed set of HTTP statuses that may ever be
// configured as retriable. Anything else in the env list is filtered out.
var validRetriableCodes = map[int]bool{429: true, 500: true, 502: true, 503: true, 504: true}

// Config controls the retry executor. Construct with DefaultConfig or
// ConfigFromEnv; a Config is immutable once handed to NewExecutor.
type Config struct {
	// MaxAttempts is the total number of invocations, including the
	// first. Must be >= 1.
	MaxAttempts int

	// BaseDelay is the backoff before the second attempt.
	BaseDelay time.Duration

	// MaxDelay caps the computed exponential backoff. Server-specified
	// Retry-After hints are not capped.
	MaxDelay time.Duration

	// Multiplier is the exponential growth factor between attempts.
	Multiplier float64

	// Jitter in [0,1] widens each delay by delay*Jitter*U(0,1).
	Jitter float64

	// RetriableCodes is the set of HTTP statuses eligible for retry.
	// 429 is always retried regardless of membership.
	RetriableCodes map[int]bool

	// RequestTimeout bounds a single attempt. Zero disables it.
	RequestTimeout time.Duration

	// TotalTimeout bounds the whole retry loop including sleeps.
	// Zero disables it.
	TotalTimeout time.Duration
}

// DefaultConfig returns the hard-coded defaults without consulting the
// environment.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    DefaultMaxAttempts,
		BaseDelay:      DefaultBaseDelay,
		MaxDelay:       DefaultMaxDelay,
		Multiplier:     DefaultMultiplier,
		Jitter:         DefaultJitter,
		RetriableCodes: map[int]bool{429: true, 500: true, 502: true, 503: true, 504: true},
		RequestTimeout: DefaultRequestTimeout,
		TotalTimeout:   DefaultTotalTimeout,
	}
}

// ConfigFromEnv returns the defaults overridden by any GOOGLE_RETRY_* and
// GOOGLE_*_TIMEOUT environment variables. Unparseable values keep the
// default and log a warning; out-of-range retriable codes are dropped.
func ConfigFromEnv() Config {
	c := DefaultConfig()

	c.MaxAttempts = envInt(EnvMaxAttempts, c.MaxAttempts, func(v int) bool { return v >= 1 })
	c.BaseDelay = envMillis(EnvBaseDelay, c.BaseDelay)
	c.MaxDelay = envMillis(EnvMaxDelay, c.MaxDelay)
	c.Jitter = envFloat(EnvJitter, c.Jitter, func(v float64) bool { return v >= 0 && v <= 1 })
	c.RequestTimeout = envMillis(EnvRequestTimeout, c.RequestTimeout)
	c.TotalTimeout = envMillis(EnvTotalTimeout, c.TotalTimeout)

	if raw := os.Getenv(EnvRetriableCodes); raw != "" {
		codes := parseRetriableCodes(raw)
		if len(codes) > 0 {
			c.RetriableCodes = codes
		} else {
			slog.Warn("no valid retriable codes in environment, keeping defaults",
				"env", EnvRetriableCodes, "value", raw)
		}
	}

	if c.MaxDelay < c.BaseDelay {
		slog.Warn("max delay below base delay, raising to base delay",
			"base_delay", c.BaseDelay, "max_delay", c.MaxDelay)
		c.MaxDelay = c.BaseDelay
	}

	return c
}

// Validate checks the invariants the executor relies on.
func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be >= 1, got %d", c.MaxAttempts)
	}
	if c.BaseDelay <= 0 {
		return fmt.Errorf("base delay must be positive, got %s", c.BaseDelay)
	}
	if c.MaxDelay < c.BaseDelay {
		return fmt.Errorf("max delay %s must be >= base delay %s", c.MaxDelay, c.BaseDelay)
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		return fmt.Errorf("jitter must be in [0,1], got %f", c.Jitter)
	}
	if c.Multiplier < 1 {
		return fmt.Errorf("multiplier must be >= 1, got %f", c.Multiplier)
	}
	return nil
}

// parseRetriableCodes parses a comma-separated status list, keeping only
// members of the valid set.
func parseRetriableCodes(raw string) map[int]bool {
	codes := make(map[int]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code, err := strconv.Atoi(part)
		if err != nil {
			slog.Warn("skipping unparseable retriable code", "value", part)
			continue
		}
		if !validRetriableCodes[code] {
			slog.Warn("skipping retriable code outside the allowed set", "code", code)
			continue
		}
		codes[code] = true
	}
	return codes
}

func envInt(key string, def int, ok func(int) bool) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || !ok(v) {
		slog.Warn("invalid integer in environment, using default", "env", key, "value", raw)
		return def
	}
	return v
}

// envMillis reads a duration expressed as integer milliseconds.
func envMillis(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	ms, err := strconv.Atoi(raw)
	if err != nil || ms <= 0 {
		slog.Warn("invalid duration in environment, using default", "env", key, "value", raw)
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func envFloat(key string, def float64, ok func(float64) bool) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || !ok(v) {
		slog.Warn("invalid float in environment, using default", "env", key, "value", raw)
		return def
	}
	return v
}
