package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"neomap/core-go/internal/config"
	"neomap/core-go/internal/httpapi"
	"neomap/core-go/internal/layer"
)

var layersJSON bool

func init() {
	layersCmd.Flags().BoolVar(&layersJSON, "json", false, "Print the stored layers as JSON")
	rootCmd.AddCommand(layersCmd)
}

var layersCmd = &cobra.Command{
	Use:   "layers",
	Short: "List stored layers",
	Long: `List the layers held by the configured store (DATABASE_URL, REDIS_ADDR
or SQLITE_PATH).`,
	Args: cobra.NoArgs,
	RunE: runLayers,
}

func runLayers(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" && cfg.RedisAddr == "" && cfg.SQLitePath == "" {
		return fmt.Errorf("no layer store configured: set DATABASE_URL, REDIS_ADDR or SQLITE_PATH")
	}

	be, err := openBackend(cmd.Context(), httpapi.NewLogger(httpapi.LogOptions{Level: cfg.LogLevel, Version: Version}), cfg)
	if err != nil {
		return err
	}
	defer be.close()

	layers, err := be.store.ListLayers(cmd.Context())
	if err != nil {
		return fmt.Errorf("list layers: %w", err)
	}

	out := cmd.OutOrStdout()
	if layersJSON {
		if layers == nil {
			layers = []layer.Config{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(layers)
	}

	if len(layers) == 0 {
		fmt.Fprintf(out, "No layers in %s store\n", be.name)
		return nil
	}
	headerStyle.Fprintf(out, "%d layers in %s store\n\n", len(layers), be.name)
	printTable(out, []string{"KEY", "NAME", "TYPE", "RENDERING", "POINTS", "EDGES"}, layerRows(layers))
	return nil
}

func layerRows(layers []layer.Config) [][]string {
	rows := make([][]string, 0, len(layers))
	for _, l := range layers {
		rows = append(rows, []string{
			l.Key,
			l.Name,
			string(l.LayerType),
			string(l.Rendering),
			strconv.Itoa(len(l.Data)),
			strconv.Itoa(len(l.RelationshipData)),
		})
	}
	return rows
}
