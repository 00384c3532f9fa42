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
	tui := flag.Bool("tui", false, "show a terminal dashboard instead of printing lines")
	flag.Parse()

	log.Println("starting open-ring console (MQTT subscriber)")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Wait for Ctrl+C
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *tui {
		err = app.RunConsoleTUI(ctx, cfg)
	} else {
		err = app.RunConsoleMQTT(ctx, cfg, os.Stdout)
	}
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
