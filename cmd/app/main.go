package main

import (
	"context"
	"flag"
	"log"
	"os"

	"Farenheit/internal/di"
	"Farenheit/pkg/config"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config/config.yaml", "config file path")
	runStage := flag.String("run", "", "run one stage (collect, predict, recommend, alert, retain) and exit")
	flag.Parse()

	// Load config
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s storage=%s", cfg.Environment, cfg.Storage.Backend)

	// Wire DI: Initialize all dependencies
	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	if *runStage != "" {
		sum, err := app.RunStage(context.Background(), *runStage)
		cleanup()
		if err != nil {
			log.Printf("stage %s failed: %v", *runStage, err)
			os.Exit(1)
		}
		log.Printf("stage %s done: ok=%d skipped=%d failed=%d counts=%v",
			sum.Stage, sum.Units.OK, sum.Units.Skipped, sum.Units.Failed, sum.Counts)
		return
	}

	// Run application (blocks until signal)
	err = app.Run(context.Background())
	cleanup()
	if err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
