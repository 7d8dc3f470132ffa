package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"buddy-monitor/internal/config"
	"buddy-monitor/pkg/logger"
)

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the health monitor, repair trigger and HTTP surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, *configPath)
		},
	}
}

// serve runs until ctx is cancelled, then shuts down within the configured
// timeout
func serve(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Ensure logs are flushed on exit
	defer func() {
		if err := log.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to sync logger: %v\n", err)
		}
	}()

	mainLogger := log.WithComponent("main")
	mainLogger.LogStartup(version, buildTime, gitCommit)
	mainLogger.LogConfigLoad(configPath, cfg.EnabledChecks())
	logCheckConfig(mainLogger, cfg)

	a, err := newApp(cfg, log)
	if err != nil {
		mainLogger.LogError("wire components", err)
		return err
	}

	// The root context outlives the signal so in-flight checks are only
	// cancelled by Stop
	if err := a.start(context.WithoutCancel(ctx)); err != nil {
		mainLogger.LogError("start components", err)
		return err
	}

	if a.server != nil {
		mainLogger.Info("HTTP server started", logger.String("addr", a.server.Addr()))
	}

	<-ctx.Done()
	shutdownStart := time.Now()
	mainLogger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout))
	defer cancel()

	err = a.stop(shutdownCtx)
	mainLogger.LogShutdown("signal", time.Since(shutdownStart))
	return err
}

func logCheckConfig(log *logger.Logger, cfg *config.Config) {
	for _, name := range config.CheckNames() {
		checkCfg, err := cfg.GetCheckConfig(name)
		if err != nil {
			continue
		}
		log.LogCheckStatus(name, checkCfg.Enabled, time.Duration(checkCfg.Interval))
	}
}
