package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"neomap/core-go/internal/layer"
)

// LoadLayers reads a layer seed file. The format follows the extension:
// .yaml/.yml or .toml. Each entry starts from the defaults, so a seed only
// needs the fields it changes. Field names are the stored JSON names
// (ukey, layerType, nodeLabel, ...).
func LoadLayers(path string) ([]layer.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var layers []layer.Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		layers, err = decodeYAML(raw)
	case ".toml":
		layers, err = decodeTOML(raw)
	default:
		return nil, fmt.Errorf("unsupported layers file extension %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	seen := make(map[string]bool, len(layers))
	for i, cfg := range layers {
		if seen[cfg.Key] {
			return nil, fmt.Errorf("%s: layer %d: duplicate key %q", path, i, cfg.Key)
		}
		seen[cfg.Key] = true
	}
	return layers, nil
}

func decodeYAML(raw []byte) ([]layer.Config, error) {
	var doc struct {
		Layers []yaml.Node `yaml:"layers"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	out := make([]layer.Config, 0, len(doc.Layers))
	for i := range doc.Layers {
		cfg := layer.Default("")
		if err := doc.Layers[i].Decode(&cfg); err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		cfg, err := cfg.Normalize()
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		out = append(out, cfg)
	}
	return out, nil
}

// decodeTOML goes through the JSON form so TOML seeds hydrate exactly like
// stored layers.
func decodeTOML(raw []byte) ([]layer.Config, error) {
	var doc struct {
		Layers []map[string]any `toml:"layers"`
	}
	if _, err := toml.Decode(string(raw), &doc); err != nil {
		return nil, err
	}
	out := make([]layer.Config, 0, len(doc.Layers))
	for i, m := range doc.Layers {
		b, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		cfg, err := layer.Hydrate(b)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		out = append(out, cfg)
	}
	return out, nil
}
