package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"screener-stream/config"
	"screener-stream/internal/app"
	"screener-stream/internal/logger"
)

func main() {
	godotenv.Load()

	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config YAML (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[engine] config: %v", err)
	}
	logger.Init(cfg.Service, cfg.LogFormat, cfg.LogLevel)

	svc, err := app.New(cfg)
	if err != nil {
		log.Fatalf("[engine] init failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Run(ctx); err != nil {
		log.Fatalf("[engine] fatal: %v", err)
	}
}
