package controller

import (
	"context"
	"errors"
	"sync"
	"testing"

	"neomap/core-go/internal/layer"
)

func TestRegistry_CreateStoresAndLoadsCatalog(t *testing.T) {
	ds := &fakeSource{nodeLabelsFn: func(ctx context.Context) ([]layer.Option, error) {
		return []layer.Option{{Value: "City", Label: "City"}}, nil
	}}
	store := &fakeStore{}
	r := NewRegistry(testLogger(), ds, store, Options{})

	c, err := r.Create(context.Background(), "  Cities ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := c.Config()
	if cfg.Key == "" {
		t.Fatalf("expected a generated key")
	}
	if cfg.Name != "Cities" {
		t.Fatalf("expected trimmed name, got %q", cfg.Name)
	}
	if len(store.upserts) != 1 || store.upserts[0].Key != cfg.Key {
		t.Fatalf("expected created layer to be stored, got %+v", store.upserts)
	}
	if len(cfg.Catalog.NodeLabels) != 1 {
		t.Fatalf("expected catalog loaded on create, got %+v", cfg.Catalog)
	}

	other, err := r.Create(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if other.Config().Name != layer.DefaultName {
		t.Fatalf("expected default name, got %q", other.Config().Name)
	}
	if other.Key() == c.Key() {
		t.Fatalf("expected distinct keys")
	}

	list := r.List()
	if len(list) != 2 || list[0].Key != c.Key() || list[1].Key != other.Key() {
		t.Fatalf("expected creation order, got %+v", list)
	}
}

func TestRegistry_CreateSurvivesCatalogFailure(t *testing.T) {
	ds := &fakeSource{nodeLabelsFn: func(ctx context.Context) ([]layer.Option, error) {
		return nil, errors.New("offline")
	}}
	r := NewRegistry(testLogger(), ds, &fakeStore{}, Options{CatalogRetries: 0})

	if _, err := r.Create(context.Background(), "x"); err != nil {
		t.Fatalf("expected create to succeed, got %v", err)
	}
}

func TestRegistry_HydrateDoesNotWrite(t *testing.T) {
	store := &fakeStore{}
	r := NewRegistry(testLogger(), &fakeSource{}, store, Options{})

	cfg := layer.Default("stored-1")
	cfg.Data = []layer.Point{{Latitude: 1, Longitude: 2}}
	c, err := r.Hydrate(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Config().Bounds == nil {
		t.Fatalf("expected bounds computed on hydrate")
	}
	if len(store.upserts) != 0 {
		t.Fatalf("expected hydrate to not write, got %d", len(store.upserts))
	}
	if _, err := r.Hydrate(cfg); err == nil {
		t.Fatalf("expected duplicate key error")
	}
	if _, err := r.Hydrate(layer.Default("")); !errors.Is(err, layer.ErrMissingKey) {
		t.Fatalf("expected ErrMissingKey, got %v", err)
	}
}

func TestRegistry_Delete(t *testing.T) {
	store := &fakeStore{}
	r := NewRegistry(testLogger(), &fakeSource{}, store, Options{})
	c, err := r.Hydrate(layer.Default("k1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if deleted, err := r.Delete(context.Background(), "k1", Always(false)); err != nil || deleted {
		t.Fatalf("expected decline, got deleted=%v err=%v", deleted, err)
	}
	if _, ok := r.Get("k1"); !ok {
		t.Fatalf("expected layer kept after decline")
	}

	if deleted, err := r.Delete(context.Background(), "k1", Always(true)); err != nil || !deleted {
		t.Fatalf("expected delete, got deleted=%v err=%v", deleted, err)
	}
	if _, ok := r.Get("k1"); ok {
		t.Fatalf("expected layer gone")
	}
	if len(r.List()) != 0 {
		t.Fatalf("expected empty list")
	}
	if deleted, err := r.Delete(context.Background(), "k1", nil); err != nil || !deleted {
		t.Fatalf("expected unknown key delete to succeed, got deleted=%v err=%v", deleted, err)
	}
	// The detached controller stays deleted.
	if deleted, _ := c.Delete(context.Background(), nil); !deleted {
		t.Fatalf("expected controller to report deleted")
	}
}

func TestRegistry_RefreshCatalogsLoadsHydratedLayers(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	ds := &fakeSource{nodeLabelsFn: func(ctx context.Context) ([]layer.Option, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 2 {
			return nil, errors.New("offline")
		}
		return []layer.Option{{Value: "City", Label: "City"}}, nil
	}}
	store := &fakeStore{}
	r := NewRegistry(testLogger(), ds, store, Options{CatalogRetries: 0})

	stale := layer.Default("stale")
	stale.Catalog.NodeLabels = []layer.Option{{Value: "Gone", Label: "Gone"}}
	for _, cfg := range []layer.Config{layer.Default("fresh"), stale} {
		if _, err := r.Hydrate(cfg); err != nil {
			t.Fatalf("hydrate: %v", err)
		}
	}

	if failed := r.RefreshCatalogs(context.Background()); failed != 1 {
		t.Fatalf("expected 1 incomplete refresh, got %d", failed)
	}
	if calls != 2 {
		t.Fatalf("expected a catalog fetch per layer, got %d", calls)
	}
	fresh, _ := r.Get("fresh")
	if labels := fresh.Config().Catalog.NodeLabels; len(labels) != 1 || labels[0].Value != "City" {
		t.Fatalf("expected catalog loaded for hydrated layer, got %+v", labels)
	}
	// A failed list keeps what the store had.
	kept, _ := r.Get("stale")
	if labels := kept.Config().Catalog.NodeLabels; len(labels) != 1 || labels[0].Value != "Gone" {
		t.Fatalf("expected previous labels kept, got %+v", labels)
	}
	if len(store.upserts) != 0 {
		t.Fatalf("expected no store writes, got %d", len(store.upserts))
	}

	if failed := NewRegistry(testLogger(), nil, store, Options{}).RefreshCatalogs(context.Background()); failed != 0 {
		t.Fatalf("expected no-op without a data source, got %d", failed)
	}
}
