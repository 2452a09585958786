package client

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"dario.cat/mergo"

	"github.com/compozy/workflowkit/pkg/config"
)

// Options configures a Client. Zero fields take DefaultOptions values.
type Options struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	RetryCount     int
	RetryWait      time.Duration
	RetryMaxWait   time.Duration
	ConnectRetries int
	ConnectBackoff time.Duration
	BufferSize     int
	Headers        map[string]string
	Debug          bool
}

func DefaultOptions() Options {
	defaults := config.Default()
	return optionsFromConfig(defaults)
}

func optionsFromConfig(cfg *config.Config) Options {
	return Options{
		BaseURL:        cfg.Server.BaseURL,
		APIKey:         cfg.Server.APIKey.Value(),
		Timeout:        cfg.Server.Timeout,
		RetryCount:     cfg.Server.RetryCount,
		RetryWait:      cfg.Server.RetryWait,
		RetryMaxWait:   cfg.Server.RetryMaxWait,
		ConnectRetries: cfg.Stream.ConnectRetries,
		ConnectBackoff: cfg.Stream.ConnectBackoff,
		BufferSize:     cfg.Stream.BufferSize,
		Debug:          cfg.Runtime.LogLevel == "debug",
	}
}

func (o *Options) normalize() error {
	if err := mergo.Merge(o, DefaultOptions()); err != nil {
		return fmt.Errorf("failed to apply client defaults: %w", err)
	}
	o.BaseURL = strings.TrimRight(strings.TrimSpace(o.BaseURL), "/")
	parsed, err := url.Parse(o.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL %q: %w", o.BaseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid base URL %q: scheme must be http or https", o.BaseURL)
	}
	return nil
}
