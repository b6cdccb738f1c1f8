package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"studentmonitor/internal/app"
	"studentmonitor/internal/config"
)

const shutdownTimeout = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatal(err)
	}
}

// run serves until ctx is cancelled, then shuts down gracefully.
// Configuration precedence: file > environment (.env included) > defaults.
func run(ctx context.Context) error {
	// STEP 1: Load configuration
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found, using environment variables")
	}
	configPath := os.Getenv("STUDENTMONITOR_CONFIG_FILE")
	cfg, err := config.LoadConfigWithPrecedence(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config %s: %w", configPath, err)
	}

	// STEP 2: Logging
	logCloser := app.ConfigureLogging(cfg.Logging)
	defer func() { _ = logCloser.Close() }()

	// STEP 3: Build and start the application
	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	if err := application.Start(ctx); err != nil && ctx.Err() == nil {
		_ = application.Stop(context.Background())
		return fmt.Errorf("application error: %w", err)
	}

	// STEP 4: Wait for shutdown
	<-ctx.Done()
	log.Printf("Shutdown requested, stopping gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := application.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}
