package config

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix shared by every environment variable the loader reads.
const EnvPrefix = "WORKFLOWS_"

// sourcePrecedence orders sources from lowest to highest priority.
var sourcePrecedence = map[SourceType]int{
	SourceDefault: 0,
	SourceYAML:    1,
	SourceEnv:     2,
	SourceCLI:     3,
}

// Loader assembles a Config from layered sources.
type Loader struct {
	koanf     *koanf.Koanf
	validator *validator.Validate
	environ   func() []string
}

// NewLoader creates a loader reading the process environment.
func NewLoader() *Loader {
	return &Loader{
		koanf:     koanf.New("."),
		validator: validator.New(),
	}
}

// WithEnviron overrides the environment lookup, used by tests.
func (l *Loader) WithEnviron(environ func() []string) *Loader {
	l.environ = environ
	return l
}

// Load merges defaults, the given sources and the environment. Precedence is
// defaults < YAML < environment < CLI regardless of argument order.
func (l *Loader) Load(_ context.Context, sources ...Source) (*Config, error) {
	l.koanf = koanf.New(".")
	if err := l.koanf.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	ordered := make([]Source, 0, len(sources))
	for _, src := range sources {
		if src != nil {
			ordered = append(ordered, src)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return sourcePrecedence[ordered[i].Type()] < sourcePrecedence[ordered[j].Type()]
	})
	envLoaded := false
	for _, src := range ordered {
		if !envLoaded && sourcePrecedence[src.Type()] > sourcePrecedence[SourceEnv] {
			if err := l.loadEnvironment(); err != nil {
				return nil, err
			}
			envLoaded = true
		}
		if err := l.loadSource(src); err != nil {
			return nil, err
		}
	}
	if !envLoaded {
		if err := l.loadEnvironment(); err != nil {
			return nil, err
		}
	}
	return l.unmarshalAndValidate()
}

func (l *Loader) loadEnvironment() error {
	envToPath := make(map[string]string)
	for _, mapping := range GenerateEnvMappings() {
		envToPath[mapping.EnvVar] = mapping.ConfigPath
	}
	if err := l.koanf.Load(env.Provider(".", env.Opt{
		Prefix:      EnvPrefix,
		EnvironFunc: l.environ,
		TransformFunc: func(key string, value string) (string, any) {
			if value == "" {
				return "", nil
			}
			if configPath, ok := envToPath[key]; ok {
				return configPath, value
			}
			return "", nil
		},
	}), nil); err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}
	return nil
}

func (l *Loader) loadSource(source Source) error {
	if source.Type() == SourceEnv || source.Type() == SourceDefault {
		return nil
	}
	data, err := source.Load()
	if err != nil {
		return fmt.Errorf("failed to load from source %s: %w", source.Type(), err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := l.koanf.Load(rawMap(data), nil); err != nil {
		return fmt.Errorf("failed to apply source %s: %w", source.Type(), err)
	}
	return nil
}

func (l *Loader) unmarshalAndValidate() (*Config, error) {
	var cfg Config
	if err := l.koanf.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &cfg,
			TagName:          "koanf",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
				sensitiveStringDecodeHook,
			),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := l.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks struct tags and cross-field rules.
func (l *Loader) Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if err := l.validator.Struct(cfg); err != nil {
		return err
	}
	if cfg.Server.RetryMaxWait > 0 && cfg.Server.RetryWait > cfg.Server.RetryMaxWait {
		return fmt.Errorf("server retry wait %s exceeds retry max wait %s",
			cfg.Server.RetryWait, cfg.Server.RetryMaxWait)
	}
	return nil
}

// Load is a convenience wrapper around NewLoader().Load.
func Load(ctx context.Context, sources ...Source) (*Config, error) {
	return NewLoader().Load(ctx, sources...)
}

func sensitiveStringDecodeHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(SensitiveString("")) {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return SensitiveString(v), nil
	case []byte:
		return SensitiveString(v), nil
	default:
		return data, nil
	}
}

// rawMap is a koanf.Provider adapter for map[string]any data.
type rawMap map[string]any

func (r rawMap) Read() (map[string]any, error) {
	return r, nil
}

func (r rawMap) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("ReadBytes not implemented")
}
