package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultModuleName = "tailrecursion.clojure-adapter-servlet.impl"
	DefaultPort       = 8080
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
			Output: "stdout",
		},
		Server: ServerConfig{
			Address:         "127.0.0.1",
			Port:            DefaultPort,
			Prefix:          "/",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Modules: ModulesConfig{
			Name: DefaultModuleName,
			Path: []string{"modules"},
		},
		Servlet: ServletConfig{
			Enabled: true,
			Name:    "adapter",
		},
		Listener: ListenerConfig{
			Enabled: true,
		},
		Context: ContextConfig{
			Path: "",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Telemetry: TelemetryConfig{
			Endpoint:   "localhost:4317",
			Insecure:   true,
			SampleRate: 1.0,
		},
	}
}

// setDefaults registers every key of Default with v so that environment
// variables are picked up for keys absent from the config file.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)

	v.SetDefault("server.address", d.Server.Address)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.prefix", d.Server.Prefix)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.dev_mode", d.Server.DevMode)

	v.SetDefault("modules.name", d.Modules.Name)
	v.SetDefault("modules.path", d.Modules.Path)
	v.SetDefault("modules.preload", d.Modules.Preload)

	v.SetDefault("servlet.enabled", d.Servlet.Enabled)
	v.SetDefault("servlet.name", d.Servlet.Name)

	v.SetDefault("listener.enabled", d.Listener.Enabled)

	v.SetDefault("context.path", d.Context.Path)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)

	v.SetDefault("telemetry.enabled", d.Telemetry.Enabled)
	v.SetDefault("telemetry.endpoint", d.Telemetry.Endpoint)
	v.SetDefault("telemetry.insecure", d.Telemetry.Insecure)
	v.SetDefault("telemetry.sample_rate", d.Telemetry.SampleRate)
}
