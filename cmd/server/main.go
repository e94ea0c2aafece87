package main

import (
	"context"

	"github.com/orbithq/orbit/internal/app"
	"github.com/orbithq/orbit/internal/config"
	"github.com/orbithq/orbit/internal/logger"
	"github.com/orbithq/orbit/internal/persist"
	"github.com/orbithq/orbit/internal/server"
)

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L()

	backend, err := app.BuildBackend(cfg, log)
	if err != nil {
		log.Error("failed to init backend", "err", err)
		return
	}

	if r, ok := backend.(*persist.RedisRemote); ok {
		if err := r.Ping(context.Background()); err != nil {
			log.Error("failed to connect to redis", "err", err)
			return
		}
	}

	if err := server.Start(cfg, backend, log); err != nil {
		log.Error("shared-store endpoint stopped", "err", err)
	}
}
