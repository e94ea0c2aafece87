package app

import (
	"fmt"
	"log/slog"

	"github.com/orbithq/orbit/internal/config"
	"github.com/orbithq/orbit/internal/engage"
	"github.com/orbithq/orbit/internal/match"
	"github.com/orbithq/orbit/internal/persist"
	"github.com/orbithq/orbit/internal/store"
)

// AppContext holds shared dependencies (backend, store, logger, config).
type AppContext struct {
	Config  *config.Config
	Backend persist.Backend
	Store   *store.Store
	Logger  *slog.Logger
}

// New builds the backend from config and wires a store instance with
// the default scorer and an engagement scheduler on top of it.
func New(cfg *config.Config, logger *slog.Logger) (*AppContext, error) {
	backend, err := BuildBackend(cfg, logger)
	if err != nil {
		return nil, err
	}

	sched := engage.New(match.Default, cfg, logger)
	st := store.New(persist.NewDocuments(backend, logger), sched, logger)

	return &AppContext{
		Config:  cfg,
		Backend: backend,
		Store:   st,
		Logger:  logger,
	}, nil
}

// BuildBackend resolves the configured persistence backend, optionally
// tiered under a shared remote (the multi-client deployment mode).
func BuildBackend(cfg *config.Config, logger *slog.Logger) (persist.Backend, error) {
	var local persist.Backend
	switch cfg.Store.Backend {
	case "memory":
		local = persist.NewMemoryBackend()
	case "gorm":
		gb, err := persist.NewGormBackend(cfg)
		if err != nil {
			return nil, err
		}
		local = gb
	case "redis":
		local = persist.NewRedisRemote(cfg)
	case "file", "":
		local = persist.NewFileBackend(cfg.Store.Path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	if !cfg.Store.Shared {
		return local, nil
	}

	var remote persist.Backend
	if cfg.Store.RemoteURL != "" {
		remote = persist.NewHTTPRemote(cfg.Store.RemoteURL, cfg.Store.RemoteTimeout)
	} else {
		remote = persist.NewRedisRemote(cfg)
	}
	return persist.NewSharedBackend(local, remote, cfg.Store.FreshnessTTL, logger), nil
}
