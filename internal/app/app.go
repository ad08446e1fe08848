package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"reading-leveler/internal/config"
	"reading-leveler/internal/generation"
	"reading-leveler/internal/logger"
	"reading-leveler/internal/packaging"
	"reading-leveler/internal/pipeline"
	"reading-leveler/internal/storage"
	"reading-leveler/internal/usage"
	"reading-leveler/internal/workspace"
)

// App bundles the components every binary needs.
type App struct {
	Config   *config.Config
	Store    storage.Store
	Registry *workspace.Registry
	Packager packaging.Packager
	Pipeline *pipeline.Pipeline

	closeStore func() error
}

// OpenStore opens the backend named by STORE_BACKEND. The returned close
// function is never nil.
func OpenStore(ctx context.Context, cfg *config.Config) (storage.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.StoreBackend {
	case config.StoreMemory:
		return storage.NewMemory(), noop, nil
	case config.StoreFile:
		s, err := storage.NewFileStore(cfg.StoreFilePath)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	case config.StoreRedis:
		s, err := storage.NewRedisStore(ctx, storage.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend: %s", cfg.StoreBackend)
	}
}

// Settings maps the configuration onto workspace settings.
func Settings(cfg *config.Config) workspace.Settings {
	return workspace.Settings{
		Limits:        usage.Limits{PerDay: cfg.MaxUsesPerDay, PerMonth: cfg.MaxUsesPerMonth},
		ThemeCapacity: cfg.ThemeCapacity,
		DraftIdle:     cfg.DraftIdle,
		Location:      cfg.Location(),
	}
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	store, closeStore, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	gen, err := generation.FromConfig(cfg)
	if err != nil {
		_ = closeStore()
		return nil, fmt.Errorf("create generator: %w", err)
	}
	pack := packaging.FromConfig(cfg)

	logger.LogEvent(logrus.InfoLevel, "application configured", logrus.Fields{
		"store":     string(cfg.StoreBackend),
		"generator": string(cfg.GeneratorProvider),
		"packager":  packagerKind(cfg),
		"per_day":   cfg.MaxUsesPerDay,
		"per_month": cfg.MaxUsesPerMonth,
	})

	return &App{
		Config:     cfg,
		Store:      store,
		Registry:   workspace.NewRegistry(store, Settings(cfg)),
		Packager:   pack,
		Pipeline:   pipeline.New(gen, pack),
		closeStore: closeStore,
	}, nil
}

// Retention returns the prune policy for usage counters.
func (a *App) Retention() usage.Retention {
	return usage.Retention{Days: a.Config.UsageRetainDays, Months: a.Config.UsageRetainMonths}
}

// Close stops pending draft saves and releases the store.
func (a *App) Close() error {
	a.Registry.Close()
	return a.closeStore()
}

func packagerKind(cfg *config.Config) string {
	if cfg.PackagerURL != "" {
		return "remote"
	}
	return "local"
}
