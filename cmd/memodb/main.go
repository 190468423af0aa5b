package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"memodb/internal/app"
	"memodb/pkg/banner"
	"memodb/pkg/config"
	"memodb/pkg/logger"
	"memodb/pkg/recall/embedder/mock"
)

// build metadata, set via ldflags during release builds
var version = "dev"

func main() {
	_ = godotenv.Load(".env")

	var cfgPath, dbPath string
	flag.StringVar(&cfgPath, "config", os.Getenv("MEMODB_CONFIG"), "path to YAML config file")
	flag.StringVar(&dbPath, "db", "", "database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if dbPath != "" {
		cfg.Storage.DBPath = dbPath
	}

	logger.InitWithLevel(cfg.Logging.Level)
	defer logger.Sync()

	// The built-in embedder is the deterministic local one; deployments
	// embedding real models construct app.New with their own.
	a, err := app.New(cfg, mock.New())
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer a.Close()

	banner.Print(cfg.Storage.DBPath, version, cfg.Recall.Enabled, cfg.Retention.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		log.Fatalf("run failed: %v", err)
	}
}
