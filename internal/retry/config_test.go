package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFromEnvDefaults(t *testing.T) {
	c := ConfigFromEnv()

	assert.Equal(t, 3, c.MaxAttempts)
	assert.Equal(t, time.Second, c.BaseDelay)
	assert.Equal(t, 30*time.Second, c.MaxDelay)
	assert.Equal(t, 0.1, c.Jitter)
	assert.Equal(t, 30*time.Second, c.RequestTimeout)
	assert.Equal(t, 2*time.Minute, c.TotalTimeout)
	assert.Equal(t, map[int]bool{429: true, 500: true, 502: true, 503: true, 504: true}, c.RetriableCodes)
}

func TestConfigFromEnvOverrides(t *testing.T) {
	t.Setenv(EnvMaxAttempts, "5")
	t.Setenv(EnvBaseDelay, "250")
	t.Setenv(EnvMaxDelay, "5000")
	t.Setenv(EnvJitter, "0.25")
	t.Setenv(EnvRequestTimeout, "10000")
	t.Setenv(EnvTotalTimeout, "60000")
	t.Setenv(EnvRetriableCodes, "429,503")

	c := ConfigFromEnv()

	assert.Equal(t, 5, c.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, c.BaseDelay)
	assert.Equal(t, 5*time.Second, c.MaxDelay)
	assert.Equal(t, 0.25, c.Jitter)
	assert.Equal(t, 10*time.Second, c.RequestTimeout)
	assert.Equal(t, time.Minute, c.TotalTimeout)
	assert.Equal(t, map[int]bool{429: true, 503: true}, c.RetriableCodes)
}

func TestConfigFromEnvInvalidValuesKeepDefaults(t *testing.T) {
	t.Setenv(EnvMaxAttempts, "zero")
	t.Setenv(EnvBaseDelay, "-5")
	t.Setenv(EnvJitter, "1.5")

	c := ConfigFromEnv()

	assert.Equal(t, DefaultMaxAttempts, c.MaxAttempts)
	assert.Equal(t, DefaultBaseDelay, c.BaseDelay)
	assert.Equal(t, DefaultJitter, c.Jitter)
}

func TestConfigFromEnvFiltersCodesOutsideAllowedSet(t *testing.T) {
	t.Setenv(EnvRetriableCodes, "404,429,999,abc,502")

	c := ConfigFromEnv()

	assert.Equal(t, map[int]bool{429: true, 502: true}, c.RetriableCodes)
}

func TestConfigFromEnvAllInvalidCodesKeepDefaults(t *testing.T) {
	t.Setenv(EnvRetriableCodes, "404,418")

	c := ConfigFromEnv()

	assert.Equal(t, map[int]bool{429: true, 500: true, 502: true, 503: true, 504: true}, c.RetriableCodes)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "zero attempts", mutate: func(c *Config) { c.MaxAttempts = 0 }, wantErr: true},
		{name: "zero base delay", mutate: func(c *Config) { c.BaseDelay = 0 }, wantErr: true},
		{name: "max below base", mutate: func(c *Config) { c.MaxDelay = c.BaseDelay / 2 }, wantErr: true},
		{name: "jitter above one", mutate: func(c *Config) { c.Jitter = 1.1 }, wantErr: true},
		{name: "multiplier below one", mutate: func(c *Config) { c.Multiplier = 0.5 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
