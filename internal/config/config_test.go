package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/careassist/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	for _, key := range []string{"HTTP_PORT", "POLL_INTERVAL_MS", "RUN_TIMEOUT_MS", "MAX_POLLS", EnvMode} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 2*time.Minute, cfg.RunTimeout)
	assert.Equal(t, 0, cfg.MaxPolls)
	assert.False(t, cfg.MockMode())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "careassist.yaml")
	content := "http_port: 9000\n" +
		"openai_api_key: sk-from-file\n" +
		"openai_assistant_id: asst_file\n" +
		"poll_interval_ms: 250\n" +
		"run_timeout_ms: 5000\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv(EnvConfigFile, path)
	t.Setenv("HTTP_PORT", "")
	t.Setenv("POLL_INTERVAL_MS", "")
	t.Setenv("RUN_TIMEOUT_MS", "")
	t.Setenv("OPENAI_ASSISTANT_ID", "")
	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	t.Setenv(EnvMode, "mock")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.HTTPPort)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.RunTimeout)
	assert.Equal(t, "sk-from-env", cfg.APIKey)
	assert.Equal(t, "asst_file", cfg.AssistantID)
	assert.True(t, cfg.MockMode())
}

func TestLoadBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http_port: [nope"), 0o600))
	t.Setenv(EnvConfigFile, path)

	_, err := Load()
	assert.Error(t, err)
}

func TestCredentialsValidate(t *testing.T) {
	tests := []struct {
		name  string
		creds Credentials
		field string
	}{
		{"valid", Credentials{APIKey: "sk-abc", AssistantID: "asst_123"}, ""},
		{"missing key", Credentials{AssistantID: "asst_123"}, "OPENAI_API_KEY"},
		{"malformed key", Credentials{APIKey: "abc", AssistantID: "asst_123"}, "OPENAI_API_KEY"},
		{"missing assistant", Credentials{APIKey: "sk-abc"}, "OPENAI_ASSISTANT_ID"},
		{"malformed assistant", Credentials{APIKey: "sk-abc", AssistantID: "bot"}, "OPENAI_ASSISTANT_ID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var cfgErr *domain.ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "expected ConfigurationError, got %v", err)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestLoadMockModeFillsCredentials(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	t.Setenv(EnvMode, "mock")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_ASSISTANT_ID", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.MockMode())
	assert.NoError(t, cfg.Credentials().Validate())
}

func TestLoadZeroTimeoutDisablesBound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "careassist.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run_timeout_ms: 0\npoll_interval_ms: 0\n"), 0o600))
	t.Setenv(EnvConfigFile, path)
	t.Setenv("RUN_TIMEOUT_MS", "")
	t.Setenv("POLL_INTERVAL_MS", "")
	t.Setenv("HTTP_TIMEOUT_MS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), cfg.RunTimeout)
	assert.Equal(t, time.Second, cfg.PollInterval, "a zero poll interval keeps the default")

	t.Setenv(EnvConfigFile, "")
	t.Setenv("RUN_TIMEOUT_MS", "0")
	t.Setenv("HTTP_TIMEOUT_MS", "-5")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), cfg.RunTimeout)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
}
