package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"neomap/core-go/internal/config"
	"neomap/core-go/internal/cypher"
	"neomap/core-go/internal/layer"
)

func init() {
	rootCmd.AddCommand(previewCmd)
}

var previewCmd = &cobra.Command{
	Use:   "preview <layer-file>",
	Short: "Print the Cypher a stored layer would run",
	Long: `Print the node and relationship queries for each layer in a file.

The file is either one stored layer as JSON (or a JSON array of layers), or a
YAML/TOML layers file in the LAYERS_FILE format.

Examples:
  neomap preview layer.json
  neomap preview layers.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runPreview,
}

func runPreview(cmd *cobra.Command, args []string) error {
	layers, err := readLayerFile(args[0])
	if err != nil {
		return err
	}
	writePreviews(cmd.OutOrStdout(), layers)
	return nil
}

func readLayerFile(path string) ([]layer.Config, error) {
	if strings.ToLower(filepath.Ext(path)) != ".json" {
		return config.LoadLayers(path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var docs []json.RawMessage
	if trimmed := strings.TrimSpace(string(raw)); strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(raw, &docs); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else {
		docs = []json.RawMessage{raw}
	}

	out := make([]layer.Config, 0, len(docs))
	for i, doc := range docs {
		cfg, err := layer.Hydrate(doc)
		if err != nil {
			return nil, fmt.Errorf("%s: layer %d: %w", path, i, err)
		}
		out = append(out, cfg)
	}
	return out, nil
}

func writePreviews(w io.Writer, layers []layer.Config) {
	for i, cfg := range layers {
		if i > 0 {
			fmt.Fprintln(w)
		}
		headerStyle.Fprintf(w, "%s", cfg.Name)
		subtleStyle.Fprintf(w, " (%s, %s/%s)\n", cfg.Key, cfg.LayerType, cfg.Rendering)

		p := cypher.PreviewQueries(cfg)
		subtleStyle.Fprintln(w, "-- node query")
		fmt.Fprintln(w, p.Node)
		if p.Relationship != "" {
			subtleStyle.Fprintln(w, "-- relationship query")
			fmt.Fprintln(w, p.Relationship)
		}
	}
}
