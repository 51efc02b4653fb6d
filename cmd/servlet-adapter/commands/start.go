package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tailrecursion/servlet-adapter/internal/config"
	"github.com/tailrecursion/servlet-adapter/internal/container"
	"github.com/tailrecursion/servlet-adapter/internal/logger"
	"github.com/tailrecursion/servlet-adapter/internal/telemetry"
)

var (
	startAddr    string
	startPort    int
	startDevMode bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the servlet container",
	Long: `Start the servlet container in the foreground.

The context listener is initialized first, then the servlet (immediately when
modules.preload is set, otherwise on the first request). On SIGINT or SIGTERM
the server drains, the servlet is destroyed and the context listener is
notified.

Examples:
  # Start with defaults, loading plugins from ./modules
  servlet-adapter start

  # Start with a config file
  servlet-adapter start --config /etc/servlet-adapter/config.yaml

  # Override settings from the environment
  SERVLET_ADAPTER_LOGGING_LEVEL=DEBUG servlet-adapter start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&startAddr, "addr", "", "Bind address (overrides server.address)")
	startCmd.Flags().IntVarP(&startPort, "port", "p", 0, "Bind port (overrides server.port)")
	startCmd.Flags().BoolVarP(&startDevMode, "dev", "D", false, "Development mode (error details in responses)")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		cfg.Server.Address = startAddr
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = startPort
	}
	if startDevMode {
		cfg.Server.DevMode = true
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}
	logger.Info("Configuration loaded", "source", configSource(GetConfigFile()))
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)

	telemetryShutdown, err := telemetry.Init(context.Background(), telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "servlet-adapter",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()
	if cfg.Telemetry.Enabled {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}

	m, reg := newMetrics(cfg)
	opts := []container.Option{}
	if reg != nil {
		opts = append(opts, container.WithMetrics(m, reg))
		logger.Info("Metrics enabled", "path", cfg.Metrics.Path)
	} else {
		logger.Info("Metrics collection disabled")
	}

	host := newHost(cfg, m)
	c := container.New(cfg, host, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}

	logger.Info("Server is running. Press Ctrl+C to stop.", "module", host.ModuleName())
	serveErr := c.ListenAndServe(ctx)
	if serveErr != nil {
		logger.Error("Server error", "error", serveErr)
	} else {
		logger.Info("Shutdown signal received, stopping container")
	}

	stopErr := c.Stop()
	if err := errors.Join(serveErr, stopErr); err != nil {
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}
