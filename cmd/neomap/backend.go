package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"neomap/core-go/internal/config"
	"neomap/core-go/internal/controller"
	"neomap/core-go/internal/db"
	"neomap/core-go/internal/httpapi"
	"neomap/core-go/internal/layer"
	"neomap/core-go/internal/store"
)

// layerStore is a controller.LayerStore that can also be read back at
// start-up.
type layerStore interface {
	controller.LayerStore
	ListLayers(ctx context.Context) ([]layer.Config, error)
}

type backend struct {
	name  string
	store layerStore
	ready []httpapi.ReadyCheck
	close func()
}

// openBackend picks the layer store from the configuration. The first
// configured of Postgres, Redis and SQLite wins; memory is the fallback.
func openBackend(ctx context.Context, log zerolog.Logger, cfg config.Config) (backend, error) {
	switch {
	case cfg.DatabaseURL != "":
		pool, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return backend{}, fmt.Errorf("connect to database: %w", err)
		}
		if err := pool.EnsureSchema(ctx); err != nil {
			pool.Close()
			return backend{}, fmt.Errorf("apply schema: %w", err)
		}
		return backend{
			name:  "postgres",
			store: db.NewLayerStore(pool),
			ready: []httpapi.ReadyCheck{{Name: "postgres", Ping: pool.Ping}},
			close: pool.Close,
		}, nil

	case cfg.RedisAddr != "":
		r, err := store.OpenRedis(store.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return backend{}, fmt.Errorf("connect to redis: %w", err)
		}
		return backend{
			name:  "redis",
			store: r,
			ready: []httpapi.ReadyCheck{{Name: "redis", Ping: r.Ping}},
			close: func() {
				if err := r.Close(); err != nil {
					log.Warn().Err(err).Msg("close redis")
				}
			},
		}, nil

	case cfg.SQLitePath != "":
		s, err := store.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return backend{}, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		return backend{
			name:  "sqlite",
			store: s,
			ready: []httpapi.ReadyCheck{{Name: "sqlite", Ping: s.Ping}},
			close: func() {
				if err := s.Close(); err != nil {
					log.Warn().Err(err).Msg("close sqlite")
				}
			},
		}, nil
	}

	log.Warn().Msg("no layer store configured; layers are kept in memory only")
	return backend{name: "memory", store: store.NewMemory(), close: func() {}}, nil
}

// hydrateRegistry registers every stored layer, then the seed layers the
// store does not know yet, and loads their catalogs. New seeds are written to
// the store; catalog failures only leave a layer's option lists as stored.
func hydrateRegistry(ctx context.Context, log zerolog.Logger, reg *controller.Registry, st layerStore, seedPath string) error {
	stored, err := st.ListLayers(ctx)
	if err != nil {
		return fmt.Errorf("list stored layers: %w", err)
	}
	known := make(map[string]bool, len(stored))
	for _, cfg := range stored {
		if _, err := reg.Hydrate(cfg); err != nil {
			return fmt.Errorf("hydrate layer %s: %w", cfg.Key, err)
		}
		known[cfg.Key] = true
	}

	added := 0
	if seedPath != "" {
		if added, err = hydrateSeeds(ctx, log, reg, st, seedPath, known); err != nil {
			return err
		}
	}

	failed := reg.RefreshCatalogs(ctx)
	log.Info().
		Int("layers", len(stored)).
		Int("seeded", added).
		Int("catalog_failures", failed).
		Str("file", seedPath).
		Msg("layers hydrated")
	return nil
}

func hydrateSeeds(ctx context.Context, log zerolog.Logger, reg *controller.Registry, st layerStore, seedPath string, known map[string]bool) (int, error) {
	seeds, err := config.LoadLayers(seedPath)
	if err != nil {
		return 0, fmt.Errorf("load layers file: %w", err)
	}
	added := 0
	for _, cfg := range seeds {
		if known[cfg.Key] {
			log.Debug().Str("layer", cfg.Key).Msg("seed layer already stored; skipping")
			continue
		}
		c, err := reg.Hydrate(cfg)
		if err != nil {
			return added, fmt.Errorf("hydrate seed layer %s: %w", cfg.Key, err)
		}
		if err := st.UpsertLayer(ctx, c.Config()); err != nil {
			return added, fmt.Errorf("store seed layer %s: %w", cfg.Key, err)
		}
		added++
	}
	return added, nil
}
