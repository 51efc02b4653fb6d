// Package config loads the container configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (SERVLET_ADAPTER_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

// EnvPrefix prefixes environment overrides, e.g. SERVLET_ADAPTER_SERVER_PORT
const EnvPrefix = "SERVLET_ADAPTER"

type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Modules   ModulesConfig   `mapstructure:"modules" yaml:"modules"`
	Servlet   ServletConfig   `mapstructure:"servlet" yaml:"servlet"`
	Listener  ListenerConfig  `mapstructure:"listener" yaml:"listener"`
	Context   ContextConfig   `mapstructure:"context" yaml:"context"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

type ServerConfig struct {
	Address string `mapstructure:"address" yaml:"address"`
	Port    int    `mapstructure:"port" validate:"min=0,max=65535" yaml:"port"`

	// Prefix is the URL path the servlet is mounted on
	Prefix string `mapstructure:"prefix" validate:"required,startswith=/" yaml:"prefix"`

	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gte=0" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gte=0" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0" yaml:"shutdown_timeout"`

	// DevMode includes error messages in 500 responses
	DevMode bool `mapstructure:"dev_mode" yaml:"dev_mode"`
}

// Addr returns the listen address in host:port form
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Address, c.Port)
}

type ModulesConfig struct {
	// Name of the implementation module
	Name string `mapstructure:"name" validate:"required" yaml:"name"`

	// Path lists directories searched for plugin files
	Path []string `mapstructure:"path" yaml:"path"`

	// Preload resolves both adapters at startup instead of at first use
	Preload bool `mapstructure:"preload" yaml:"preload"`
}

type ServletConfig struct {
	Enabled    bool              `mapstructure:"enabled" yaml:"enabled"`
	Name       string            `mapstructure:"name" validate:"required_if=Enabled true" yaml:"name"`
	InitParams map[string]string `mapstructure:"init_params" yaml:"init_params,omitempty"`
}

type ListenerConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

type ContextConfig struct {
	Path       string            `mapstructure:"path" yaml:"path"`
	InitParams map[string]string `mapstructure:"init_params" yaml:"init_params,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" validate:"required_if=Enabled true" yaml:"path"`
}

// TelemetryConfig configures OpenTelemetry trace export over OTLP/gRPC.
type TelemetryConfig struct {
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string  `mapstructure:"endpoint" validate:"required_if=Enabled true" yaml:"endpoint"`
	Insecure   bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRate float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1" yaml:"sample_rate"`
}

// Load reads configuration from configPath (optional), the environment and
// defaults, then validates it.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	return validator.New(validator.WithRequiredStructEnabled()).Struct(cfg)
}

// WriteYAML writes cfg to w as YAML.
func (c *Config) WriteYAML(w io.Writer) error {
	return yaml.NewEncoder(w).Encode(c)
}

// Save writes cfg to path. The file is created with owner-only permissions.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		durationFromNumberHook(),
	)
}

// durationFromNumberHook accepts plain numbers as seconds
func durationFromNumberHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch n := data.(type) {
		case int:
			return time.Duration(n) * time.Second, nil
		case int64:
			return time.Duration(n) * time.Second, nil
		case float64:
			return time.Duration(n * float64(time.Second)), nil
		}
		return data, nil
	}
}
