// Package store holds the LayerStore adapters that do not need Postgres.
package store

import (
	"context"
	"sync"

	"neomap/core-go/internal/layer"
)

// Memory keeps layers in process. Contents are lost on restart.
type Memory struct {
	mu     sync.RWMutex
	layers map[string]layer.Config
	order  []string
}

func NewMemory() *Memory {
	return &Memory{layers: make(map[string]layer.Config)}
}

func (m *Memory) UpsertLayer(_ context.Context, cfg layer.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.layers[cfg.Key]; !ok {
		m.order = append(m.order, cfg.Key)
	}
	m.layers[cfg.Key] = cfg.Clone()
	return nil
}

func (m *Memory) RemoveLayer(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.layers[key]; !ok {
		return nil
	}
	delete(m.layers, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) ListLayers(_ context.Context) ([]layer.Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]layer.Config, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.layers[k].Clone())
	}
	return out, nil
}
