// Package main is the entry point for the OPTIMADE gateway server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/materials-consortia/optimade-gateway/internal/api"
	"github.com/materials-consortia/optimade-gateway/internal/config"
	"github.com/materials-consortia/optimade-gateway/internal/logging"
	"github.com/materials-consortia/optimade-gateway/internal/registry"
	"github.com/materials-consortia/optimade-gateway/internal/storage"
	"github.com/materials-consortia/optimade-gateway/internal/storage/memory"
	storemongo "github.com/materials-consortia/optimade-gateway/internal/storage/mongo"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	// Command line flags
	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("optimade-gateway %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger := logging.New(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting optimade gateway",
		slog.String("version", version),
		slog.String("storage", cfg.Storage.Type),
		slog.String("address", cfg.Address()),
	)

	// Create storage backend
	store, err := createStorage(cfg, logger)
	if err != nil {
		logger.Error("failed to create storage backend", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Create the registry and seed configured databases
	reg := registry.New(store, logger)
	if err := seedDatabases(cfg, reg, logger); err != nil {
		logger.Error("failed to seed databases", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Create and start the HTTP server
	server := api.NewServer(cfg, reg, logger, version)

	// Handle shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	// Wait for shutdown signal or error
	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	case sig := <-shutdown:
		logger.Info("shutting down", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", slog.String("error", err.Error()))
		}

		if err := store.Close(); err != nil {
			logger.Error("storage close error", slog.String("error", err.Error()))
		}
	}

	logger.Info("shutdown complete")
}

// createStorage creates the appropriate storage backend based on configuration.
func createStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	switch cfg.Storage.Type {
	case "memory":
		logger.Info("using in-memory storage")
		return memory.NewStore(), nil

	case "mongodb":
		logger.Info("connecting to MongoDB",
			slog.String("database", cfg.Storage.MongoDB.Database),
		)
		return storemongo.NewStore(storemongo.Config{
			URI:                 cfg.Storage.MongoDB.URI,
			Database:            cfg.Storage.MongoDB.Database,
			DatabasesCollection: cfg.Storage.MongoDB.DatabasesCollection,
			GatewaysCollection:  cfg.Storage.MongoDB.GatewaysCollection,
			QueriesCollection:   cfg.Storage.MongoDB.QueriesCollection,
		})

	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
}

// seedDatabases registers the databases listed in the configuration file so
// gateways can reference them by id right away.
func seedDatabases(cfg *config.Config, reg *registry.Registry, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, entry := range cfg.Databases {
		record := storage.DatabaseRecord{
			ID:      entry.ID,
			Name:    entry.Name,
			BaseURL: entry.BaseURL,
			Version: entry.Version,
		}
		if _, err := reg.RegisterDatabase(ctx, record); err != nil {
			return err
		}
		logger.Info("seeded database", slog.String("id", entry.ID), slog.String("base_url", entry.BaseURL))
	}
	return nil
}
