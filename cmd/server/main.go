package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/garyjia/erp-workflow/internal/config"
	"github.com/garyjia/erp-workflow/internal/container"
	httpapi "github.com/garyjia/erp-workflow/internal/interfaces/http"
	"github.com/garyjia/erp-workflow/pkg/utils"
)

var version = "dev"

// startupTimeout bounds migrations and exporter setup on boot
const startupTimeout = 2 * time.Minute

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file; empty to use defaults and environment only")
	flag.Parse()

	if *configPath != "" {
		if _, err := os.Stat(*configPath); errors.Is(err, os.ErrNotExist) {
			*configPath = ""
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
		Service:    "erp-workflow",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("Server exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting ERP workflow service",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("database_driver", cfg.Database.Driver))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := container.NewContainer(cfg.ToContainerConfig(), logger)
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}
	startCtx, cancelStart := context.WithTimeout(ctx, startupTimeout)
	err = c.Start(startCtx)
	cancelStart()
	if err != nil {
		return fmt.Errorf("start container: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := c.Close(closeCtx); err != nil {
			logger.Error("Failed to close container", zap.Error(err))
		}
	}()

	httpapi.Version = version
	services := c.Services()
	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
		RequestsPerSecond: cfg.Server.RateLimit.RequestsPerSecond,
		Burst:             cfg.Server.RateLimit.Burst,
	}, httpapi.Dependencies{
		Engine:        c.WorkflowEngine(),
		Definitions:   services.Definitions,
		Queries:       services.Queries,
		Notifications: services.Notifications,
		Health: func(ctx context.Context) (bool, interface{}) {
			h := c.Health(ctx)
			return h.Overall, h.Components
		},
	}, utils.NewKVLogger(logger))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})

	err = g.Wait()
	logger.Info("Shutting down", zap.Duration("grace", cfg.Server.ShutdownTimeout))
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
