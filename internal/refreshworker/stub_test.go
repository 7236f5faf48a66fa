package refreshworker

import (
	"context"

	"neomap/core-go/internal/layer"
	"neomap/core-go/internal/results"
)

// graphStub answers every query with one point.
type graphStub struct{}

func (graphStub) Execute(context.Context, string, map[string]any) ([]results.Row, error) {
	return []results.Row{{"latitude": 1.0, "longitude": 2.0}}, nil
}

func (graphStub) ListNodeLabels(context.Context) ([]layer.Option, error)        { return nil, nil }
func (graphStub) ListRelationshipTypes(context.Context) ([]layer.Option, error) { return nil, nil }
func (graphStub) ListProperties(context.Context, string) ([]layer.Option, error) {
	return nil, nil
}
func (graphStub) ListSpatialLayers(context.Context) ([]layer.Option, error) { return nil, nil }
func (graphStub) HasSpatialCapability(context.Context) (bool, error)       { return false, nil }
