package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func emptyEnv() []string { return nil }

func TestLoader_Load(t *testing.T) {
	t.Run("Should return defaults when no sources are provided", func(t *testing.T) {
		cfg, err := NewLoader().WithEnviron(emptyEnv).Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("Should apply YAML values over defaults", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "workflows.yaml")
		content := "server:\n  base_url: http://example.com:9000\n  timeout: 5s\nstream:\n  include_internal: true\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		cfg, err := NewLoader().WithEnviron(emptyEnv).Load(context.Background(), NewYAMLProvider(path))
		require.NoError(t, err)
		assert.Equal(t, "http://example.com:9000", cfg.Server.BaseURL)
		assert.Equal(t, 5*time.Second, cfg.Server.Timeout)
		assert.True(t, cfg.Stream.IncludeInternal)
		assert.Equal(t, 3, cfg.Server.RetryCount)
	})

	t.Run("Should ignore a missing YAML file", func(t *testing.T) {
		cfg, err := NewLoader().WithEnviron(emptyEnv).
			Load(context.Background(), NewYAMLProvider(filepath.Join(t.TempDir(), "missing.yaml")))
		require.NoError(t, err)
		assert.Equal(t, Default().Server.BaseURL, cfg.Server.BaseURL)
	})

	t.Run("Should let environment override YAML and CLI override environment", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "workflows.yaml")
		require.NoError(t, os.WriteFile(path, []byte("runtime:\n  log_level: warn\n"), 0o600))
		environ := func() []string {
			return []string{
				"WORKFLOWS_LOG_LEVEL=error",
				"WORKFLOWS_SERVER_BASE_URL=http://env.local:8000",
				"WORKFLOWS_API_KEY=secret",
				"WORKFLOWS_UNKNOWN=ignored",
				"OTHER_VAR=1",
			}
		}
		cli := NewCLIProvider(map[string]any{"log-level": "debug", "unknown-flag": true})
		cfg, err := NewLoader().WithEnviron(environ).Load(context.Background(), cli, NewYAMLProvider(path))
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Runtime.LogLevel)
		assert.Equal(t, "http://env.local:8000", cfg.Server.BaseURL)
		assert.Equal(t, "secret", cfg.Server.APIKey.Value())
	})

	t.Run("Should decode durations and integers from environment strings", func(t *testing.T) {
		environ := func() []string {
			return []string{"WORKFLOWS_STREAM_CONNECT_BACKOFF=1s", "WORKFLOWS_STREAM_CONNECT_RETRIES=7"}
		}
		cfg, err := NewLoader().WithEnviron(environ).Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, time.Second, cfg.Stream.ConnectBackoff)
		assert.Equal(t, 7, cfg.Stream.ConnectRetries)
	})

	t.Run("Should reject an invalid log level", func(t *testing.T) {
		cli := NewCLIProvider(map[string]any{"log-level": "verbose"})
		_, err := NewLoader().WithEnviron(emptyEnv).Load(context.Background(), cli)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration validation failed")
	})

	t.Run("Should reject a malformed base URL", func(t *testing.T) {
		cli := NewCLIProvider(map[string]any{"base-url": "not a url"})
		_, err := NewLoader().WithEnviron(emptyEnv).Load(context.Background(), cli)
		require.Error(t, err)
	})

	t.Run("Should reject retry wait above retry max wait", func(t *testing.T) {
		environ := func() []string {
			return []string{"WORKFLOWS_SERVER_RETRY_WAIT=5s", "WORKFLOWS_SERVER_RETRY_MAX_WAIT=1s"}
		}
		_, err := NewLoader().WithEnviron(environ).Load(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "retry max wait")
	})

	t.Run("Should surface YAML parse errors", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0o600))
		_, err := NewLoader().WithEnviron(emptyEnv).Load(context.Background(), NewYAMLProvider(path))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "yaml")
	})
}

func TestSensitiveString(t *testing.T) {
	t.Run("Should redact when printed", func(t *testing.T) {
		s := SensitiveString("top-secret")
		assert.Equal(t, "[REDACTED]", s.String())
		assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
		assert.Equal(t, "top-secret", s.Value())
	})

	t.Run("Should redact when marshaled", func(t *testing.T) {
		out, err := json.Marshal(Default().Server)
		require.NoError(t, err)
		assert.NotContains(t, string(out), "top-secret")
		cfg := Default()
		cfg.Server.APIKey = "top-secret"
		out, err = json.Marshal(cfg.Server)
		require.NoError(t, err)
		assert.NotContains(t, string(out), "top-secret")
		assert.Contains(t, string(out), "[REDACTED]")
	})

	t.Run("Should print empty for an unset secret", func(t *testing.T) {
		assert.Equal(t, "", SensitiveString("").String())
	})
}

func TestGenerateEnvMappings(t *testing.T) {
	t.Run("Should map every tagged field to its config path", func(t *testing.T) {
		assert.Equal(t, "WORKFLOWS_SERVER_BASE_URL", EnvVarForPath("server.base_url"))
		assert.Equal(t, "WORKFLOWS_API_KEY", EnvVarForPath("server.api_key"))
		assert.Equal(t, "WORKFLOWS_STREAM_INCLUDE_INTERNAL", EnvVarForPath("stream.include_internal"))
		assert.Equal(t, "WORKFLOWS_LOG_LEVEL", EnvVarForPath("runtime.log_level"))
		assert.Equal(t, "", EnvVarForPath("runtime.missing"))
	})
}

func TestContext(t *testing.T) {
	t.Run("Should return the stored config", func(t *testing.T) {
		cfg := Default()
		cfg.Server.BaseURL = "http://stored:1"
		ctx := ContextWithConfig(context.Background(), cfg)
		assert.Same(t, cfg, FromContext(ctx))
	})

	t.Run("Should fall back to defaults", func(t *testing.T) {
		assert.Equal(t, Default(), FromContext(context.Background()))
	})
}

func TestCLIProvider(t *testing.T) {
	t.Run("Should nest known flags under their config paths", func(t *testing.T) {
		values, err := NewCLIProvider(map[string]any{"base-url": "http://x:1", "log-json": true}).Load()
		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			"server":  map[string]any{"base_url": "http://x:1"},
			"runtime": map[string]any{"log_json": true},
		}, values)
	})
}
