package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"populartimes/internal/api"
	"populartimes/internal/clock"
	"populartimes/internal/config"
	"populartimes/internal/coordinator"
	"populartimes/internal/ha"
	"populartimes/internal/populartimes"
	"populartimes/internal/registry"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const defaultAPIPort = 8081

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found, using environment variables")
	}

	haURL := os.Getenv("HA_URL")
	haToken := os.Getenv("HA_TOKEN")
	dataURL := os.Getenv("POPULARTIMES_URL")
	configDir := os.Getenv("CONFIG_DIR")

	if haURL == "" || haToken == "" {
		logger.Fatal("HA_URL and HA_TOKEN environment variables must be set")
	}
	if dataURL == "" {
		logger.Fatal("POPULARTIMES_URL environment variable must be set")
	}
	if configDir == "" {
		configDir = "."
	}

	interval := coordinator.DefaultInterval
	if raw := os.Getenv("UPDATE_INTERVAL_MINUTES"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes <= 0 {
			logger.Fatal("UPDATE_INTERVAL_MINUTES must be a positive integer", zap.String("value", raw))
		}
		interval = time.Duration(minutes) * time.Minute
	}

	apiPort := defaultAPIPort
	if raw := os.Getenv("API_PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			logger.Fatal("API_PORT must be an integer", zap.String("value", raw))
		}
		apiPort = port
	}

	logger.Info("Starting Popular Times bridge",
		zap.String("ha_url", haURL),
		zap.Duration("update_interval", interval))

	// Connect to Home Assistant
	client := ha.NewClient(haURL, haToken, logger)
	if err := client.Connect(); err != nil {
		logger.Fatal("Failed to connect to Home Assistant", zap.Error(err))
	}
	defer client.Disconnect()

	// Load the entry store
	store := config.NewStore(filepath.Join(configDir, "entries.json"), logger)
	if err := store.Load(); err != nil {
		logger.Fatal("Failed to load entry store", zap.Error(err))
	}

	// One-time import of legacy YAML sensor platforms
	imported, err := config.ImportYAML(context.Background(),
		filepath.Join(configDir, "configuration.yaml"), store, client, logger)
	if err != nil {
		logger.Error("YAML import failed", zap.Error(err))
	} else if imported > 0 {
		logger.Info("Imported legacy YAML entries", zap.Int("imported", imported))
	}

	// Start per-entry runtimes
	fetcher := populartimes.NewClient(dataURL, populartimes.DefaultTimeout, logger)
	reg := registry.New(store, fetcher, client, clock.NewRealClock(), logger, interval)
	reg.Start()
	defer reg.Stop()

	// Serve the config/diagnostics API
	server := api.NewServer(reg, logger, apiPort)
	server.Start()
	defer server.Stop()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Popular Times bridge running",
		zap.Int("entries", len(store.Entries())),
		zap.Int("api_port", apiPort))

	<-sigChan

	logger.Info("Shutting down gracefully...")
}
