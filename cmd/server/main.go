// Package main provides the entry point for the CNV ACMG classifier server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cnv-acmg-classifier/internal/api"
	"github.com/cnv-acmg-classifier/internal/config"
	"github.com/cnv-acmg-classifier/internal/feedback"
	"github.com/cnv-acmg-classifier/internal/logging"
	"github.com/cnv-acmg-classifier/internal/service"
	"github.com/cnv-acmg-classifier/internal/setup"
	"github.com/cnv-acmg-classifier/pkg/external"
)

func main() {
	configFile := flag.String("config", "", "path to the configuration file")
	flag.Parse()

	// Handle shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Check for setup subcommand
	if args := flag.Args(); len(args) > 0 && args[0] == "setup" {
		if err := setup.NewCLI(*configFile, os.Stdout).Run(ctx, args[1:]); err != nil {
			log.Fatalf("Setup failed: %v", err)
		}
		return
	}

	if err := run(ctx, *configFile); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func run(ctx context.Context, configFile string) error {
	configManager, err := config.NewManager(configFile)
	if err != nil {
		return err
	}
	if err := configManager.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	cfg := configManager.GetConfig()

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}

	backend := external.NewBackendClient(cfg.Backend, logger)

	// The Redis tier is optional; without it catalogs live in process only.
	var shared service.CatalogStore
	if cfg.Cache.RedisURL != "" {
		redisCache, err := external.NewCatalogCache(cfg.Cache)
		if err != nil {
			logger.WithError(err).Warn("Redis catalog cache unavailable, continuing without it")
		} else {
			defer redisCache.Close()
			shared = redisCache
		}
	}

	catalogs := service.NewCatalogService(backend, shared, cfg.Cache, logger)
	orchestrator := service.NewOrchestrator(backend, cfg.Backend.CallTimeout, logger)
	sessions := service.NewRegistry(orchestrator, catalogs, cfg.Cache.SessionTTL, logger)

	if err := config.EnsureDataDir(cfg.Feedback.DataDir); err != nil {
		return err
	}
	verdicts, err := feedback.Open(cfg.Feedback)
	if err != nil {
		return fmt.Errorf("failed to open feedback store: %w", err)
	}
	defer verdicts.Close()

	logger.WithFields(logrus.Fields{
		"backend":      cfg.Backend.BaseURL,
		"call_timeout": cfg.Backend.CallTimeout.String(),
		"feedback":     cfg.Feedback.Driver,
		"redis":        shared != nil,
	}).Info("Starting CNV ACMG classifier")

	if configManager.IsProduction() || cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	server := api.NewServer(cfg.Server, sessions, catalogs, verdicts, logger)
	if err := server.Start(ctx); err != nil {
		return err
	}

	logger.Info("Server stopped")
	return nil
}
