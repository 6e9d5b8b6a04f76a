package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/KevinKickass/EcoShareCore/internal/config"
	"github.com/KevinKickass/EcoShareCore/internal/system"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the config file")
	flag.Parse()

	cfg, cfgErr := config.Load(*configPath)
	if cfgErr != nil && errors.Is(cfgErr, fs.ErrNotExist) {
		cfg = config.Default()
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	switch {
	case cfg == nil:
		logger.Fatal("Failed to load config", zap.Error(cfgErr))
	case cfgErr != nil:
		logger.Warn("Config file not found, using defaults", zap.String("path", *configPath))
	default:
		logger.Info("Config loaded successfully", zap.String("path", *configPath))
	}

	lifecycle, err := system.NewLifecycleManager(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize system", zap.Error(err))
	}

	if err := lifecycle.Start(); err != nil {
		logger.Fatal("Failed to start system", zap.Error(err))
	}

	logger.Info("EcoShareCore started successfully")

	// Graceful shutdown on signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := lifecycle.Shutdown(ctx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("EcoShareCore stopped successfully")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg != nil && cfg.Log.Development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
