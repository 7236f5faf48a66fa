// Package layer holds the canonical description of one map layer: which
// nodes it selects, how they are turned into coordinates and how the result
// is rendered.
package layer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Type selects the query-construction strategy of a layer.
type Type string

const (
	TypeLatLon  Type = "latlon"
	TypePoint   Type = "point"
	TypeSpatial Type = "spatial"
	TypeCypher  Type = "cypher"
)

// Rendering selects how fetched data is drawn on the map.
type Rendering string

const (
	RenderingMarkers   Rendering = "markers"
	RenderingPolyline  Rendering = "polyline"
	RenderingRelations Rendering = "relations"
	RenderingHeatmap   Rendering = "heatmap"
	RenderingClusters  Rendering = "clusters"
)

const (
	DefaultName   = "New layer"
	DefaultRadius = 30
	MinRadius     = 1
	MaxRadius     = 100
)

// Option is a (value, display label) pair as offered by selection widgets.
// An empty Value means "unset".
type Option struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label" yaml:"label"`
}

func (o Option) IsSet() bool {
	return strings.TrimSpace(o.Value) != ""
}

// Color is an RGBA tuple; A is in [0,1].
type Color struct {
	R uint8   `json:"r" yaml:"r"`
	G uint8   `json:"g" yaml:"g"`
	B uint8   `json:"b" yaml:"b"`
	A float64 `json:"a" yaml:"a"`
}

func (c Color) String() string {
	return fmt.Sprintf("rgba(%d, %d, %d, %g)", c.R, c.G, c.B, c.A)
}

// Config is the single source of truth for a layer.
type Config struct {
	Key       string    `json:"ukey" yaml:"ukey"`
	Name      string    `json:"name" yaml:"name"`
	LayerType Type      `json:"layerType" yaml:"layerType"`
	Rendering Rendering `json:"rendering" yaml:"rendering"`

	NodeLabels                  []Option `json:"nodeLabel" yaml:"nodeLabel"`
	RelationshipLabels          []Option `json:"relationshipLabel" yaml:"relationshipLabel"`
	LatitudeProperty            Option   `json:"latitudeProperty" yaml:"latitudeProperty"`
	LongitudeProperty           Option   `json:"longitudeProperty" yaml:"longitudeProperty"`
	PointProperty               Option   `json:"pointProperty" yaml:"pointProperty"`
	TooltipProperty             Option   `json:"tooltipProperty" yaml:"tooltipProperty"`
	RelationshipTooltipProperty Option   `json:"relationshipTooltipProperty" yaml:"relationshipTooltipProperty"`
	SpatialLayer                Option   `json:"spatialLayer" yaml:"spatialLayer"`
	Cypher                      string   `json:"cypher" yaml:"cypher"`
	Limit                       Limit    `json:"limit" yaml:"limit"`

	Color             Color   `json:"color" yaml:"color"`
	RelationshipColor Color   `json:"relationshipColor" yaml:"relationshipColor"`
	Radius            float64 `json:"radius" yaml:"radius"`

	Catalog Catalog `json:"catalog" yaml:"-"`

	Data             []Point `json:"data" yaml:"-"`
	RelationshipData []Edge  `json:"relationshipData" yaml:"-"`
	Bounds           *Bounds `json:"bounds,omitempty" yaml:"-"`
}

// Catalog is the option data fetched from the database to populate the
// selection widgets. It is never user-authored.
type Catalog struct {
	NodeLabels         []Option `json:"nodes"`
	RelationshipLabels []Option `json:"relationships"`
	PropertyNames      []Option `json:"propertyNames"`
	SpatialLayers      []Option `json:"spatialLayers"`
	HasSpatialPlugin   bool     `json:"hasSpatialPlugin"`
}

// Default returns a fresh layer: no filters, lat/lon type, markers.
func Default(key string) Config {
	return Config{
		Key:                         key,
		Name:                        DefaultName,
		LayerType:                   TypeLatLon,
		Rendering:                   RenderingMarkers,
		NodeLabels:                  []Option{},
		RelationshipLabels:          []Option{},
		LatitudeProperty:            Option{Value: "latitude", Label: "latitude"},
		LongitudeProperty:           Option{Value: "longitude", Label: "longitude"},
		PointProperty:               Option{Value: "point", Label: "point"},
		TooltipProperty:             Option{},
		RelationshipTooltipProperty: Option{},
		SpatialLayer:                Option{},
		Color:                       Color{R: 0, G: 0, B: 255, A: 1},
		RelationshipColor:           Color{R: 0, G: 0, B: 255, A: 1},
		Radius:                      DefaultRadius,
		Catalog: Catalog{
			NodeLabels:         []Option{},
			RelationshipLabels: []Option{},
			PropertyNames:      []Option{},
			SpatialLayers:      []Option{},
		},
		Data:             []Point{},
		RelationshipData: []Edge{},
	}
}

var ErrMissingKey = errors.New("layer key is required")

// Hydrate decodes a previously stored layer. Fields absent from raw keep
// their default values.
func Hydrate(raw []byte) (Config, error) {
	cfg := Default("")
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode layer: %w", err)
	}
	// Stored bounds may be stale; the owner recomputes them from Data.
	cfg.Bounds = nil
	return cfg.Normalize()
}

// Normalize validates enum fields, clamps the radius and replaces nil slices.
func (c Config) Normalize() (Config, error) {
	c.Key = strings.TrimSpace(c.Key)
	if c.Key == "" {
		return Config{}, ErrMissingKey
	}
	if c.LayerType == "" {
		c.LayerType = TypeLatLon
	}
	if !c.LayerType.Valid() {
		return Config{}, fmt.Errorf("invalid layer type %q", c.LayerType)
	}
	if c.Rendering == "" {
		c.Rendering = RenderingMarkers
	}
	if !c.Rendering.Valid() {
		return Config{}, fmt.Errorf("invalid rendering %q", c.Rendering)
	}
	c.Radius = ClampRadius(c.Radius)
	if !c.Limit.Valid() {
		c.Limit = 0
	}
	if c.NodeLabels == nil {
		c.NodeLabels = []Option{}
	}
	if c.RelationshipLabels == nil {
		c.RelationshipLabels = []Option{}
	}
	if c.Data == nil {
		c.Data = []Point{}
	}
	if c.RelationshipData == nil {
		c.RelationshipData = []Edge{}
	}
	return c, nil
}

// Clone returns a deep copy so callers can never alias controller state.
func (c Config) Clone() Config {
	out := c
	out.NodeLabels = cloneOptions(c.NodeLabels)
	out.RelationshipLabels = cloneOptions(c.RelationshipLabels)
	out.Catalog.NodeLabels = cloneOptions(c.Catalog.NodeLabels)
	out.Catalog.RelationshipLabels = cloneOptions(c.Catalog.RelationshipLabels)
	out.Catalog.PropertyNames = cloneOptions(c.Catalog.PropertyNames)
	out.Catalog.SpatialLayers = cloneOptions(c.Catalog.SpatialLayers)
	out.Data = append([]Point{}, c.Data...)
	out.RelationshipData = append([]Edge{}, c.RelationshipData...)
	if c.Bounds != nil {
		b := *c.Bounds
		out.Bounds = &b
	}
	return out
}

func cloneOptions(in []Option) []Option {
	if in == nil {
		return nil
	}
	return append([]Option{}, in...)
}

func (t Type) Valid() bool {
	switch t {
	case TypeLatLon, TypePoint, TypeSpatial, TypeCypher:
		return true
	default:
		return false
	}
}

func (r Rendering) Valid() bool {
	switch r {
	case RenderingMarkers, RenderingPolyline, RenderingRelations, RenderingHeatmap, RenderingClusters:
		return true
	default:
		return false
	}
}

// ParseType canonicalizes user input into a Type.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("invalid layer type %q", s)
	}
	return t, nil
}

// ParseRendering canonicalizes user input into a Rendering.
func ParseRendering(s string) (Rendering, error) {
	r := Rendering(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("invalid rendering %q", s)
	}
	return r, nil
}

// ClampRadius keeps the heatmap radius inside [MinRadius, MaxRadius].
// Zero (unset) falls back to DefaultRadius.
func ClampRadius(r float64) float64 {
	switch {
	case r == 0:
		return DefaultRadius
	case r < MinRadius:
		return MinRadius
	case r > MaxRadius:
		return MaxRadius
	default:
		return r
	}
}
