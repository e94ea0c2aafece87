package main

import (
	"context"
	"log"

	"github.com/orbithq/orbit/internal/app"
	"github.com/orbithq/orbit/internal/config"
	"github.com/orbithq/orbit/internal/logger"
	"github.com/orbithq/orbit/internal/store"
)

func main() {
	// Load configuration
	cfg := config.New()
	logger.InitFromConfig(cfg)

	appCtx, err := app.New(cfg, logger.L())
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	defer appCtx.Store.Close()

	if err := store.Seed(context.Background(), appCtx.Store); err != nil {
		log.Fatalf("failed to seed: %v", err)
	}

	log.Println("Seeding completed.")
}
