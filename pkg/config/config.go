package config

import (
	"encoding/json"
	"time"
)

// Config represents the complete configuration of a workflows client process.
type Config struct {
	Server  ServerConfig  `koanf:"server"  validate:"required"`
	Stream  StreamConfig  `koanf:"stream"`
	Runtime RuntimeConfig `koanf:"runtime"`
}

// ServerConfig describes how to reach the remote workflow server.
type ServerConfig struct {
	BaseURL      string          `koanf:"base_url"       validate:"required,url"    env:"WORKFLOWS_SERVER_BASE_URL"`
	APIKey       SensitiveString `koanf:"api_key"                                   env:"WORKFLOWS_API_KEY"                sensitive:"true"`
	Timeout      time.Duration   `koanf:"timeout"        validate:"min=0"           env:"WORKFLOWS_SERVER_TIMEOUT"`
	RetryCount   int             `koanf:"retry_count"    validate:"min=0,max=10"    env:"WORKFLOWS_SERVER_RETRY_COUNT"`
	RetryWait    time.Duration   `koanf:"retry_wait"     validate:"min=0"           env:"WORKFLOWS_SERVER_RETRY_WAIT"`
	RetryMaxWait time.Duration   `koanf:"retry_max_wait" validate:"min=0"           env:"WORKFLOWS_SERVER_RETRY_MAX_WAIT"`
}

// StreamConfig controls event stream subscriptions.
type StreamConfig struct {
	IncludeInternal bool          `koanf:"include_internal"                         env:"WORKFLOWS_STREAM_INCLUDE_INTERNAL"`
	ConnectRetries  int           `koanf:"connect_retries"  validate:"min=0,max=20" env:"WORKFLOWS_STREAM_CONNECT_RETRIES"`
	ConnectBackoff  time.Duration `koanf:"connect_backoff"  validate:"min=0"        env:"WORKFLOWS_STREAM_CONNECT_BACKOFF"`
	BufferSize      int           `koanf:"buffer_size"      validate:"min=4096"     env:"WORKFLOWS_STREAM_BUFFER_SIZE"`
}

// RuntimeConfig contains process level behavior.
type RuntimeConfig struct {
	LogLevel  string `koanf:"log_level"  validate:"oneof=debug info warn error disabled" env:"WORKFLOWS_LOG_LEVEL"`
	LogJSON   bool   `koanf:"log_json"                                                   env:"WORKFLOWS_LOG_JSON"`
	LogSource bool   `koanf:"log_source"                                                 env:"WORKFLOWS_LOG_SOURCE"`
}

// Default returns the built-in configuration. It targets a workflow server
// running locally on its default port.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:      "http://127.0.0.1:8000",
			Timeout:      30 * time.Second,
			RetryCount:   3,
			RetryWait:    100 * time.Millisecond,
			RetryMaxWait: 2 * time.Second,
		},
		Stream: StreamConfig{
			IncludeInternal: false,
			ConnectRetries:  3,
			ConnectBackoff:  250 * time.Millisecond,
			BufferSize:      1 << 20,
		},
		Runtime: RuntimeConfig{
			LogLevel: "info",
		},
	}
}

const redacted = "[REDACTED]"

// SensitiveString holds secrets that must never be printed.
type SensitiveString string

func (s SensitiveString) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

// Value returns the raw secret.
func (s SensitiveString) Value() string {
	return string(s)
}

func (s SensitiveString) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}
