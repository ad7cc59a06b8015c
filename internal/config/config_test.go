package config_test

import (
	"github.com/myrjola/talespin/internal/config"
	"github.com/myrjola/talespin/internal/envstruct"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func lookup(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(lookup(map[string]string{"TALESPIN_BASE_URL": "https://stories.example.com/api"}))
	require.NoError(t, err)
	require.Equal(t, config.Config{
		Local: config.Local{
			Journal:   "./talespin.sqlite",
			LogLevel:  "info",
			LogFormat: "text",
			PprofAddr: "",
		},
		BaseURL:       "https://stories.example.com/api",
		Token:         "",
		HTTPTimeout:   30 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Second,
	}, *cfg)

	policy := cfg.RetryPolicy()
	require.Equal(t, uint(3), policy.MaxAttempts)
	require.Equal(t, time.Second, policy.InitialDelay)
	require.Equal(t, 30*time.Second, cfg.HTTPClient().Timeout)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := config.Load(lookup(map[string]string{
		"TALESPIN_BASE_URL":       "http://localhost:8000",
		"TALESPIN_TOKEN":          "secret",
		"TALESPIN_HTTP_TIMEOUT":   "5s",
		"TALESPIN_RETRY_ATTEMPTS": "5",
		"TALESPIN_RETRY_DELAY":    "250ms",
		"TALESPIN_JOURNAL":        ":memory:",
		"TALESPIN_LOG_LEVEL":      "debug",
		"TALESPIN_LOG_FORMAT":     "json",
	}))
	require.NoError(t, err)
	require.Equal(t, "secret", cfg.Token)
	require.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	require.Equal(t, 5, cfg.RetryAttempts)
	require.Equal(t, 250*time.Millisecond, cfg.RetryDelay)
	require.Equal(t, ":memory:", cfg.Journal)
	require.Equal(t, "json", cfg.LogFormat)
}

func TestLoadLocalNeedsNoBackend(t *testing.T) {
	local, err := config.LoadLocal(lookup(map[string]string{"TALESPIN_JOURNAL": "/tmp/stories.sqlite"}))
	require.NoError(t, err)
	require.Equal(t, config.Local{
		Journal:   "/tmp/stories.sqlite",
		LogLevel:  "info",
		LogFormat: "text",
		PprofAddr: "",
	}, *local)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr error
	}{
		{name: "missing base URL", env: map[string]string{}, wantErr: envstruct.ErrEnvNotSet},
		{
			name:    "unparsable attempts",
			env:     map[string]string{"TALESPIN_BASE_URL": "http://localhost", "TALESPIN_RETRY_ATTEMPTS": "many"},
			wantErr: envstruct.ErrInvalidValue,
		},
		{
			name:    "relative base URL",
			env:     map[string]string{"TALESPIN_BASE_URL": "/api"},
			wantErr: config.ErrInvalidConfig,
		},
		{
			name:    "unsupported scheme",
			env:     map[string]string{"TALESPIN_BASE_URL": "ftp://stories.example.com"},
			wantErr: config.ErrInvalidConfig,
		},
		{
			name:    "zero attempts",
			env:     map[string]string{"TALESPIN_BASE_URL": "http://localhost", "TALESPIN_RETRY_ATTEMPTS": "0"},
			wantErr: config.ErrInvalidConfig,
		},
		{
			name:    "negative delay",
			env:     map[string]string{"TALESPIN_BASE_URL": "http://localhost", "TALESPIN_RETRY_DELAY": "-1s"},
			wantErr: config.ErrInvalidConfig,
		},
		{
			name:    "zero timeout",
			env:     map[string]string{"TALESPIN_BASE_URL": "http://localhost", "TALESPIN_HTTP_TIMEOUT": "0s"},
			wantErr: config.ErrInvalidConfig,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load(lookup(tt.env))
			require.ErrorIs(t, err, tt.wantErr)
			require.Nil(t, cfg)
		})
	}
}

func TestWithDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte(
		"TALESPIN_BASE_URL=http://from-file:8000\nTALESPIN_TOKEN=file-token\n"), 0o600))

	lookupEnv, err := config.WithDotEnv(
		lookup(map[string]string{"TALESPIN_TOKEN": "env-token"}),
		path,
		filepath.Join(dir, "missing.env"),
	)
	require.NoError(t, err)

	cfg, err := config.Load(lookupEnv)
	require.NoError(t, err)
	require.Equal(t, "http://from-file:8000", cfg.BaseURL)
	require.Equal(t, "env-token", cfg.Token, "the environment wins over the file")
}
