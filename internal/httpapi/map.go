package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"neomap/core-go/internal/layer"
)

const (
	mapDefaultMaxPoints = 5000
	mapHardMaxPoints    = 50000
)

// mapProjection is what the map component draws: every requested layer with
// its render settings and data, plus the viewport that fits all of them.
type mapProjection struct {
	Layers []mapLayer     `json:"layers"`
	Bounds *layer.Bounds  `json:"bounds,omitempty"`
	Limits mapLimitPolicy `json:"limits"`
}

type mapLimitPolicy struct {
	MaxPointsPerLayer int `json:"max_points_per_layer"`
}

type mapLayer struct {
	Key               string          `json:"key"`
	Name              string          `json:"name"`
	Rendering         layer.Rendering `json:"rendering"`
	Color             string          `json:"color"`
	RelationshipColor *string         `json:"relationship_color,omitempty"`
	Radius            *float64        `json:"radius,omitempty"`
	Points            []layer.Point   `json:"points"`
	Edges             []layer.Edge    `json:"edges"`
	Bounds            *layer.Bounds   `json:"bounds,omitempty"`
	Truncation        mapTruncation   `json:"truncation"`
}

type mapTruncation struct {
	Points mapTruncationMetric `json:"points"`
	Edges  mapTruncationMetric `json:"edges"`
}

type mapTruncationMetric struct {
	Returned  int     `json:"returned"`
	Total     int     `json:"total"`
	Truncated bool    `json:"truncated"`
	Warning   *string `json:"warning,omitempty"`
}

func (h *Handler) handleMap(w http.ResponseWriter, r *http.Request) {
	if !h.ensureRegistry(w) {
		return
	}

	q := r.URL.Query()
	maxPoints, err := parseLimitParam(q.Get("max_points"), mapDefaultMaxPoints, mapHardMaxPoints)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid max_points", map[string]any{"error": err.Error()})
		return
	}

	var configs []layer.Config
	if raw := strings.TrimSpace(q.Get("layers")); raw != "" {
		for _, key := range strings.Split(raw, ",") {
			key = strings.TrimSpace(key)
			if key == "" {
				continue
			}
			c, ok := h.layers.Get(key)
			if !ok {
				h.writeError(w, http.StatusNotFound, "not_found", "layer not found", map[string]any{"key": key})
				return
			}
			configs = append(configs, c.Config())
		}
	} else {
		configs = h.layers.List()
	}

	h.writeJSON(w, http.StatusOK, buildMapProjection(configs, maxPoints))
}

func buildMapProjection(configs []layer.Config, maxPoints int) mapProjection {
	resp := mapProjection{
		Layers: make([]mapLayer, 0, len(configs)),
		Limits: mapLimitPolicy{MaxPointsPerLayer: maxPoints},
	}
	for _, cfg := range configs {
		resp.Layers = append(resp.Layers, projectLayer(cfg, maxPoints))
		resp.Bounds = unionBounds(resp.Bounds, cfg.Bounds)
	}
	return resp
}

func projectLayer(cfg layer.Config, maxPoints int) mapLayer {
	ml := mapLayer{
		Key:       cfg.Key,
		Name:      cfg.Name,
		Rendering: cfg.Rendering,
		Color:     cfg.Color.String(),
		Bounds:    cfg.Bounds,
	}

	switch cfg.Rendering {
	case layer.RenderingHeatmap:
		radius := cfg.Radius
		ml.Radius = &radius
	case layer.RenderingRelations:
		rc := cfg.RelationshipColor.String()
		ml.RelationshipColor = &rc
	}

	ml.Points, ml.Truncation.Points = truncate(cfg.Data, maxPoints, "point")
	if cfg.Rendering == layer.RenderingRelations {
		ml.Edges, ml.Truncation.Edges = truncate(cfg.RelationshipData, maxPoints, "relationship")
	} else {
		ml.Edges = []layer.Edge{}
	}
	return ml
}

func truncate[T any](items []T, limit int, noun string) ([]T, mapTruncationMetric) {
	m := mapTruncationMetric{Total: len(items)}
	out := items
	if len(items) > limit {
		out = items[:limit]
		m.Truncated = true
		warning := fmt.Sprintf("%s cap hit: showing %d of %d.", strings.ToUpper(noun[:1])+noun[1:], limit, len(items))
		m.Warning = &warning
	}
	if out == nil {
		out = []T{}
	}
	m.Returned = len(out)
	return out, m
}

// unionBounds returns the smallest box containing a and b; nil is empty.
func unionBounds(a, b *layer.Bounds) *layer.Bounds {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		c := *b
		return &c
	case b == nil:
		return a
	}
	out := *a
	out.SouthWest.Latitude = min(out.SouthWest.Latitude, b.SouthWest.Latitude)
	out.SouthWest.Longitude = min(out.SouthWest.Longitude, b.SouthWest.Longitude)
	out.NorthEast.Latitude = max(out.NorthEast.Latitude, b.NorthEast.Latitude)
	out.NorthEast.Longitude = max(out.NorthEast.Longitude, b.NorthEast.Longitude)
	return &out
}

func parseLimitParam(value string, fallback, hardMax int) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("must be an integer: %w", err)
	}
	if n < 1 {
		return 0, fmt.Errorf("must be at least 1")
	}
	if n > hardMax {
		return hardMax, nil
	}
	return n, nil
}
