package layer

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	cfg := Default("k1")
	if cfg.Key != "k1" {
		t.Fatalf("expected key k1, got %q", cfg.Key)
	}
	if cfg.LayerType != TypeLatLon || cfg.Rendering != RenderingMarkers {
		t.Fatalf("expected latlon/markers, got %s/%s", cfg.LayerType, cfg.Rendering)
	}
	if len(cfg.NodeLabels) != 0 || cfg.Limit.Valid() || cfg.Cypher != "" {
		t.Fatalf("expected empty filters, got %+v", cfg)
	}
	if cfg.TooltipProperty.IsSet() {
		t.Fatalf("expected no tooltip by default")
	}
	if cfg.Bounds != nil {
		t.Fatalf("expected empty bounds, got %+v", cfg.Bounds)
	}
}

func TestParseLimit(t *testing.T) {
	cases := map[string]Limit{
		"":      0,
		"100":   100,
		" 42 ":  42,
		"0":     0,
		"-5":    0,
		"abc":   0,
		"1.5":   0,
		"10; D": 0,
	}
	for in, want := range cases {
		if got := ParseLimit(in); got != want {
			t.Fatalf("ParseLimit(%q): expected %d, got %d", in, want, got)
		}
	}
}

func TestLimit_UnmarshalJSON(t *testing.T) {
	cases := []struct {
		raw  string
		want Limit
	}{
		{`null`, 0},
		{`100`, 100},
		{`"250"`, 250},
		{`"garbage"`, 0},
		{`-3`, 0},
		{`2.5`, 0},
		{`true`, 0},
	}
	for _, tc := range cases {
		var l Limit
		if err := json.Unmarshal([]byte(tc.raw), &l); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.raw, err)
		}
		if l != tc.want {
			t.Fatalf("unmarshal %s: expected %d, got %d", tc.raw, tc.want, l)
		}
	}

	b, err := json.Marshal(struct {
		L Limit `json:"limit"`
	}{})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"limit":null}` {
		t.Fatalf("expected unset limit to marshal as null, got %s", b)
	}
}

func TestLimit_UnmarshalYAML(t *testing.T) {
	var v struct {
		A Limit `yaml:"a"`
		B Limit `yaml:"b"`
		C Limit `yaml:"c"`
	}
	if err := yaml.Unmarshal([]byte("a: 10\nb: nope\nc: ~\n"), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.A != 10 || v.B != 0 || v.C != 0 {
		t.Fatalf("expected 10/0/0, got %d/%d/%d", v.A, v.B, v.C)
	}
}

func TestHydrate_FillsDefaultsAndDropsBounds(t *testing.T) {
	raw := `{
		"ukey": "abc",
		"name": "Cities",
		"layerType": "point",
		"nodeLabel": [{"value": "City", "label": "City"}],
		"limit": "100",
		"radius": 500,
		"bounds": [],
		"data": [{"latitude": 1, "longitude": 2}]
	}`
	cfg, err := Hydrate([]byte(raw))
	if err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if cfg.Name != "Cities" || cfg.LayerType != TypePoint {
		t.Fatalf("unexpected hydrated config: %+v", cfg)
	}
	if cfg.Rendering != RenderingMarkers {
		t.Fatalf("expected default rendering, got %q", cfg.Rendering)
	}
	if cfg.LatitudeProperty.Value != "latitude" {
		t.Fatalf("expected default latitude property, got %q", cfg.LatitudeProperty.Value)
	}
	if cfg.Limit != 100 {
		t.Fatalf("expected limit 100, got %d", cfg.Limit)
	}
	if cfg.Radius != MaxRadius {
		t.Fatalf("expected radius clamped to %d, got %v", MaxRadius, cfg.Radius)
	}
	if cfg.Bounds != nil {
		t.Fatalf("expected stored bounds to be dropped")
	}
	if len(cfg.Data) != 1 {
		t.Fatalf("expected data to be kept, got %d points", len(cfg.Data))
	}
}

func TestHydrate_Errors(t *testing.T) {
	if _, err := Hydrate([]byte(`{"name": "x"}`)); !errors.Is(err, ErrMissingKey) {
		t.Fatalf("expected ErrMissingKey, got %v", err)
	}
	if _, err := Hydrate([]byte(`{"ukey": "x", "layerType": "bogus"}`)); err == nil || !strings.Contains(err.Error(), "invalid layer type") {
		t.Fatalf("expected invalid layer type error, got %v", err)
	}
	if _, err := Hydrate([]byte(`{`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestClone_DoesNotAlias(t *testing.T) {
	cfg := Default("k")
	cfg.NodeLabels = []Option{{Value: "A", Label: "A"}}
	cfg.Bounds = &Bounds{}

	cp := cfg.Clone()
	cp.NodeLabels[0].Label = "changed"
	cp.Bounds.NorthEast.Latitude = 9

	if cfg.NodeLabels[0].Label != "A" {
		t.Fatalf("expected original labels untouched")
	}
	if cfg.Bounds.NorthEast.Latitude != 0 {
		t.Fatalf("expected original bounds untouched")
	}
}

func TestBounds_JSON(t *testing.T) {
	b := Bounds{SouthWest: LatLng{Latitude: -3, Longitude: 2}, NorthEast: LatLng{Latitude: 1, Longitude: 5}}
	raw, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `[[-3,2],[1,5]]` {
		t.Fatalf("expected [[-3,2],[1,5]], got %s", raw)
	}

	var back Bounds
	if err := json.Unmarshal([]byte(`[[1,2]]`), &back); err == nil {
		t.Fatalf("expected error for malformed bounds")
	}
}

func TestParseType(t *testing.T) {
	if got, err := ParseType(" Cypher "); err != nil || got != TypeCypher {
		t.Fatalf("expected cypher, got %q (%v)", got, err)
	}
	if _, err := ParseType("wkt"); err == nil {
		t.Fatalf("expected error for unknown type")
	}
	if _, err := ParseRendering("dots"); err == nil {
		t.Fatalf("expected error for unknown rendering")
	}
}
