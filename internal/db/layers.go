package db

import (
	"context"
	"encoding/json"
	"fmt"

	"neomap/core-go/internal/layer"
	"neomap/core-go/internal/sqlcgen"
)

const auditActor = "neomap"

// LayerStore persists layers as JSONB documents in Postgres.
type LayerStore struct {
	pool *Pool
}

func NewLayerStore(pool *Pool) *LayerStore {
	return &LayerStore{pool: pool}
}

func (s *LayerStore) UpsertLayer(ctx context.Context, cfg layer.Config) error {
	q := s.pool.Queries()
	if q == nil {
		return ErrNoPool
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode layer %s: %w", cfg.Key, err)
	}
	return q.UpsertLayer(ctx, sqlcgen.UpsertLayerParams{Key: cfg.Key, Name: cfg.Name, Config: raw})
}

// RemoveLayer deletes the layer and records the deletion in audit_events.
// Removing an unknown key is not an error.
func (s *LayerStore) RemoveLayer(ctx context.Context, key string) error {
	return s.pool.InTx(ctx, func(q *sqlcgen.Queries) error {
		n, err := q.DeleteLayer(ctx, key)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		targetType := "layer"
		return q.InsertAuditEvent(ctx, sqlcgen.InsertAuditEventParams{
			Actor:      auditActor,
			Action:     "layer.delete",
			TargetType: &targetType,
			TargetID:   &key,
		})
	})
}

// ListLayers returns every stored layer in creation order.
func (s *LayerStore) ListLayers(ctx context.Context) ([]layer.Config, error) {
	q := s.pool.Queries()
	if q == nil {
		return nil, ErrNoPool
	}
	rows, err := q.ListLayers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]layer.Config, 0, len(rows))
	for _, row := range rows {
		cfg, err := layer.Hydrate(row.Config)
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", row.Key, err)
		}
		out = append(out, cfg)
	}
	return out, nil
}
