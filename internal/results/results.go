// Package results converts raw query rows into map geometry.
package results

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"neomap/core-go/internal/layer"
)

// Row is one result record keyed by column name.
type Row map[string]any

const (
	ColumnLatitude       = "latitude"
	ColumnLongitude      = "longitude"
	ColumnTooltip        = "tooltip"
	ColumnStartLatitude  = "start_latitude"
	ColumnStartLongitude = "start_longitude"
	ColumnEndLatitude    = "end_latitude"
	ColumnEndLongitude   = "end_longitude"
)

// MalformedRowError reports a row that cannot be turned into geometry. A
// single malformed row rejects the whole batch.
type MalformedRowError struct {
	Row    int
	Column string
	Value  any
	Reason string
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("row %d: column %q %s (got %v)", e.Row, e.Column, e.Reason, e.Value)
}

// ToPoints requires latitude and longitude on every row; tooltip is optional.
func ToPoints(rows []Row) ([]layer.Point, error) {
	out := make([]layer.Point, 0, len(rows))
	for i, row := range rows {
		lat, err := coordinate(row, i, ColumnLatitude)
		if err != nil {
			return nil, err
		}
		lon, err := coordinate(row, i, ColumnLongitude)
		if err != nil {
			return nil, err
		}
		out = append(out, layer.Point{
			Latitude:  lat,
			Longitude: lon,
			Tooltip:   tooltip(row),
		})
	}
	return out, nil
}

// ToEdges requires the four endpoint coordinates on every row.
func ToEdges(rows []Row) ([]layer.Edge, error) {
	out := make([]layer.Edge, 0, len(rows))
	for i, row := range rows {
		var v [4]float64
		for j, col := range []string{ColumnStartLatitude, ColumnStartLongitude, ColumnEndLatitude, ColumnEndLongitude} {
			f, err := coordinate(row, i, col)
			if err != nil {
				return nil, err
			}
			v[j] = f
		}
		out = append(out, layer.Edge{
			Start:   layer.LatLng{Latitude: v[0], Longitude: v[1]},
			End:     layer.LatLng{Latitude: v[2], Longitude: v[3]},
			Tooltip: tooltip(row),
		})
	}
	return out, nil
}

// ComputeBounds scans latitude and longitude independently. It returns nil
// (the empty box) when there are no points.
func ComputeBounds(points []layer.Point) *layer.Bounds {
	if len(points) == 0 {
		return nil
	}
	minLat, minLon := math.Inf(1), math.Inf(1)
	maxLat, maxLon := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		minLat = math.Min(minLat, p.Latitude)
		maxLat = math.Max(maxLat, p.Latitude)
		minLon = math.Min(minLon, p.Longitude)
		maxLon = math.Max(maxLon, p.Longitude)
	}
	return &layer.Bounds{
		SouthWest: layer.LatLng{Latitude: minLat, Longitude: minLon},
		NorthEast: layer.LatLng{Latitude: maxLat, Longitude: maxLon},
	}
}

func coordinate(row Row, index int, column string) (float64, error) {
	raw, ok := row[column]
	if !ok || raw == nil {
		return 0, &MalformedRowError{Row: index, Column: column, Value: raw, Reason: "is missing"}
	}
	f, ok := toFloat(raw)
	if !ok {
		return 0, &MalformedRowError{Row: index, Column: column, Value: raw, Reason: "is not numeric"}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &MalformedRowError{Row: index, Column: column, Value: raw, Reason: "is not finite"}
	}
	return f, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func tooltip(row Row) string {
	v, ok := row[ColumnTooltip]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
