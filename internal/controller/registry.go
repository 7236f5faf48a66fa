package controller

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"neomap/core-go/internal/layer"
)

// Registry holds one controller per layer key. Layers never share state; the
// registry only hands out controllers.
type Registry struct {
	log   zerolog.Logger
	ds    DataSource
	store LayerStore
	opts  Options

	mu     sync.RWMutex
	layers map[string]*Controller
	order  []string
}

func NewRegistry(log zerolog.Logger, ds DataSource, store LayerStore, opts Options) *Registry {
	return &Registry{
		log:    log,
		ds:     ds,
		store:  store,
		opts:   opts,
		layers: make(map[string]*Controller),
	}
}

// Create adds a fresh layer built from the defaults, stores it and loads its
// catalog. Catalog failures do not fail creation.
func (r *Registry) Create(ctx context.Context, name string) (*Controller, error) {
	cfg := layer.Default(uuid.NewString())
	if n := strings.TrimSpace(name); n != "" {
		cfg.Name = n
	}

	c := New(r.log, r.ds, r.store, cfg, r.opts)
	if err := c.publish(ctx, c.Config()); err != nil {
		return nil, err
	}
	r.add(c)

	if r.ds != nil {
		if err := c.RefreshCatalog(ctx); err != nil {
			r.log.Warn().Err(err).Str("layer", cfg.Key).Msg("initial catalog refresh incomplete")
		}
	}
	return c, nil
}

// Hydrate registers a previously stored layer. The store is not written.
func (r *Registry) Hydrate(cfg layer.Config) (*Controller, error) {
	cfg, err := cfg.Normalize()
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	_, exists := r.layers[cfg.Key]
	r.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("layer %s already registered", cfg.Key)
	}

	c := New(r.log, r.ds, r.store, cfg, r.opts)
	r.add(c)
	return c, nil
}

// RefreshCatalogs loads the option lists of every registered layer, the way
// Create does for a new one. Failures are logged and counted, never fatal.
func (r *Registry) RefreshCatalogs(ctx context.Context) int {
	if r.ds == nil {
		return 0
	}
	failed := 0
	for _, key := range r.Keys() {
		c, ok := r.Get(key)
		if !ok {
			continue
		}
		if err := c.RefreshCatalog(ctx); err != nil {
			failed++
			r.log.Warn().Err(err).Str("layer", key).Msg("catalog refresh incomplete")
		}
	}
	return failed
}

func (r *Registry) add(c *Controller) {
	key := c.Key()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.layers[key]; !exists {
		r.order = append(r.order, key)
	}
	r.layers[key] = c
}

func (r *Registry) Get(key string) (*Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.layers[key]
	return c, ok
}

// Keys returns the registered layer keys in creation order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// List returns layer snapshots in creation order.
func (r *Registry) List() []layer.Config {
	r.mu.RLock()
	ctrls := make([]*Controller, 0, len(r.order))
	for _, key := range r.order {
		ctrls = append(ctrls, r.layers[key])
	}
	r.mu.RUnlock()

	out := make([]layer.Config, 0, len(ctrls))
	for _, c := range ctrls {
		out = append(out, c.Config())
	}
	return out
}

// Delete asks for confirmation and removes the layer. Deleting an unknown key
// succeeds, so the call is idempotent.
func (r *Registry) Delete(ctx context.Context, key string, confirm Confirmer) (bool, error) {
	c, ok := r.Get(key)
	if !ok {
		return true, nil
	}
	deleted, err := c.Delete(ctx, confirm)
	if err != nil || !deleted {
		return deleted, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.layers, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true, nil
}
