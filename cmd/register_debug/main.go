// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

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

	log.Println("starting MPU register debug tool (standalone)")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("Open ws://localhost:%d/ws or http://localhost:%d/api/imu", cfg.RegisterDebugPort, cfg.RegisterDebugPort)
	if err := app.RunRegisterDebug(ctx, cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
