package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/open_ring/internal/app"
	"github.com/relabs-tech/open_ring/internal/config"
)

func main() {
	configPath := flag.String("config", "./open_ring_config.txt", "path to configuration file")
	flag.Parse()

	log.Println("starting open-ring streamer (mock samples)")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunMockStreamer(ctx, cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
