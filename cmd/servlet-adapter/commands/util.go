package commands

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tailrecursion/servlet-adapter/internal/adapter"
	"github.com/tailrecursion/servlet-adapter/internal/config"
	"github.com/tailrecursion/servlet-adapter/internal/logger"
	"github.com/tailrecursion/servlet-adapter/internal/metrics"
	"github.com/tailrecursion/servlet-adapter/internal/module"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// newHost builds the adapter host: modules linked into the binary win over
// plugins found on the module path. m may be nil.
func newHost(cfg *config.Config, m *metrics.Metrics) *adapter.Host {
	loader := module.Chain{
		module.Default,
		module.NewPluginLoader(cfg.Modules.Path...),
	}
	cache := module.NewCache(loader, module.WithMetrics(m))
	return adapter.NewHost(cache, adapter.WithModuleName(cfg.Modules.Name))
}

// newMetrics returns nil collectors when metrics are disabled.
func newMetrics(cfg *config.Config) (*metrics.Metrics, *prometheus.Registry) {
	if !cfg.Metrics.Enabled {
		return nil, nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics.New(reg), reg
}

func configSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	return "defaults"
}
