package config

import "context"

// ContextKey is used for storing values in context.
type ContextKey string

const configCtxKey ContextKey = "config"

// ContextWithConfig stores cfg in ctx.
func ContextWithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configCtxKey, cfg)
}

// FromContext returns the config stored in ctx, or Default when none is present.
func FromContext(ctx context.Context) *Config {
	if ctx != nil {
		if cfg, ok := ctx.Value(configCtxKey).(*Config); ok && cfg != nil {
			return cfg
		}
	}
	return Default()
}
